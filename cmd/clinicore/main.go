package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/clinicore/clinicore/internal/app"
	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/auth"
	"github.com/clinicore/clinicore/internal/facilities"
	"github.com/clinicore/clinicore/internal/observability"
	"github.com/clinicore/clinicore/internal/patients"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/platform/cache"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/records"
	"github.com/clinicore/clinicore/internal/roles"
	"github.com/clinicore/clinicore/internal/shared"
	"github.com/clinicore/clinicore/internal/specialties"
	"github.com/clinicore/clinicore/internal/users"
	"github.com/clinicore/clinicore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessions := shared.NewSessionManager(redisClient, "clinicore_session", cfg.SessionSecret, cfg.SessionTTL)
	validate := validator.New()

	metrics := observability.NewMetrics()
	recorder := audit.NewRecorder(pool, logger, metrics.AuditFailures())

	source := perms.NewPGSource(pool)
	resolver := perms.NewResolver(source)
	guard := perms.Middleware{Resolver: resolver, Logger: logger}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, sessions, recorder)
	authHandler := auth.NewHandler(logger, authService, validate)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, recorder)
	usersHandler := users.NewHandler(logger, usersService, guard, audit.NewHook(recorder, users.Modulo), validate)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo)
	rolesHandler := roles.NewHandler(logger, rolesService, guard, audit.NewHook(recorder, roles.Modulo), validate)

	permsHandler := perms.NewHandler(logger, resolver, source)

	patientsRepo := patients.NewRepository(pool)
	patientsService := patients.NewService(patientsRepo)
	patientsHandler := patients.NewHandler(logger, patientsService, guard, audit.NewHook(recorder, patients.Modulo), validate)

	recordsRepo := records.NewRepository(pool)
	recordsService := records.NewService(recordsRepo)
	recordsHandler := records.NewHandler(logger, recordsService, guard, recorder, validate)

	specialtiesRepo := specialties.NewRepository(pool)
	specialtiesHandler := specialties.NewHandler(logger, specialtiesRepo, guard, audit.NewHook(recorder, specialties.Modulo), validate)

	facilitiesRepo := facilities.NewRepository(pool)
	facilitiesHandler := facilities.NewHandler(logger, facilitiesRepo, guard, audit.NewHook(recorder, facilities.Modulo), validate)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		AuthRepo:           authRepo,
		Recorder:           recorder,
		Guard:              guard,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermsHandler:       permsHandler,
		PatientsHandler:    patientsHandler,
		RecordsHandler:     recordsHandler,
		SpecialtiesHandler: specialtiesHandler,
		FacilitiesHandler:  facilitiesHandler,
		AuditHandler:       auditHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
