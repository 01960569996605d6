package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

const moduloAuth = "Autenticación"

var (
	// ErrPasswordTooShort rejects passwords under the minimum length.
	ErrPasswordTooShort = errors.New("el password debe tener al menos 8 caracteres")
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions *shared.SessionManager
	recorder *audit.Recorder
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *shared.SessionManager, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, sessions: sessions, recorder: recorder}
}

// LoginResult bundles the issued session with the authenticated identity.
type LoginResult struct {
	Session  *shared.Session
	Identity *perms.Identity
}

// Login validates credentials, issues a session and records the outcome.
// Failed attempts are logged with a null actor so the trail captures the
// attempted email even when no identity could be resolved.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: se requiere email y password", shared.ErrInvalidCredentials)
	}

	creds, err := s.repo.FindByEmail(ctx, email)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)) != nil {
		s.recorder.Record(ctx, audit.Entry{
			Accion: fmt.Sprintf("Intento de login fallido para email: %s", email),
			IP:     ip,
			Modulo: moduloAuth,
		})
		return nil, shared.ErrInvalidCredentials
	}
	if !creds.IsActive {
		return nil, shared.ErrAccountDisabled
	}

	sess, err := s.sessions.Issue(ctx, creds.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	now := time.Now().UTC()
	if err := s.repo.CreateSession(ctx, SessionRecord{
		ID:        sess.Token,
		UserID:    creds.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessions.TTL()),
		IP:        ip,
	}); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	actorID := creds.ID
	s.recorder.Record(ctx, audit.Entry{
		ActorID: &actorID,
		Accion:  "Inicio de sesión",
		IP:      ip,
		Modulo:  moduloAuth,
	})
	identity := creds.Identity
	return &LoginResult{Session: sess, Identity: &identity}, nil
}

// Register creates a self-service account and logs it in.
func (s *Service) Register(ctx context.Context, email, nombre, apellido, password, ip string) (*LoginResult, error) {
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	identity, err := s.repo.CreateUser(ctx, email, nombre, apellido, string(hash))
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Issue(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	now := time.Now().UTC()
	if err := s.repo.CreateSession(ctx, SessionRecord{
		ID:        sess.Token,
		UserID:    identity.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessions.TTL()),
		IP:        ip,
	}); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	actorID := identity.ID
	s.recorder.Record(ctx, audit.Entry{
		ActorID: &actorID,
		Accion:  "Auto-registro en el sistema",
		IP:      ip,
		Modulo:  moduloAuth,
	})
	return &LoginResult{Session: sess, Identity: identity}, nil
}

// Logout revokes the session and records the event.
func (s *Service) Logout(ctx context.Context, token string, identity *perms.Identity, ip string) error {
	if identity != nil {
		actorID := identity.ID
		s.recorder.Record(ctx, audit.Entry{
			ActorID: &actorID,
			Accion:  "Cierre de sesión",
			IP:      ip,
			Modulo:  moduloAuth,
		})
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return s.repo.DeleteSession(ctx, token)
}
