package shared

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "clinicore_session", "secret", time.Hour)
}

func TestIssueAndLoadRoundTrip(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Issue(ctx, 7)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)

	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.UserID)
	assert.Equal(t, sess.Token, loaded.Token)
}

func TestLoadFallsBackToCookie(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Issue(ctx, 3)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", sm.CookieName()+"="+sess.Token)

	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.UserID)
}

func TestLoadWithoutTokenReturnsErrNoSession(t *testing.T) {
	sm := newTestManager(t)

	_, err := sm.Load(context.Background(), httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRevokedSessionNoLongerLoads(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Issue(ctx, 9)
	require.NoError(t, err)
	require.NoError(t, sm.Revoke(ctx, sess.Token))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)

	_, err = sm.Load(ctx, req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokenFromRequestPrefersAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Cookie", "clinicore_session=def")

	assert.Equal(t, "abc", TokenFromRequest(req, "clinicore_session"))
}
