// Copyright (c) 2026 Pressdeck. All rights reserved.

package session

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/pkg/pagination"
)

// memoryStore is an in-memory Store for service tests.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func (s *memoryStore) Insert(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memoryStore) ListByUser(_ context.Context, userID string, now time.Time) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Session
	for _, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil && session.ExpiresAt.After(now) {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryStore) UpdateActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.LastActivityAt = at
	}
	return nil
}

func (s *memoryStore) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.RevokedAt != nil {
		return false, nil
	}
	session.RevokedAt = &at
	return true, nil
}

func (s *memoryStore) RevokeAll(_ context.Context, userID, exceptID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var revoked int64
	for _, session := range s.sessions {
		if session.UserID == userID && session.ID != exceptID && session.RevokedAt == nil {
			session.RevokedAt = &at
			revoked++
		}
	}
	return revoked, nil
}

func (s *memoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// nullAuditStore swallows audit entries in tests.
type nullAuditStore struct{}

func (nullAuditStore) Insert(context.Context, *audit.Entry) error { return nil }
func (nullAuditStore) List(context.Context, audit.Category, pagination.Params) ([]*audit.Entry, int, error) {
	return nil, 0, nil
}

// apperrMeta extracts the meta map from an AppError response error.
func apperrMeta(t *testing.T, err error) map[string]any {
	t.Helper()
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	return appErr.Meta
}

func newTestService(t *testing.T) (*Service, *memoryStore, *sec.TokenService, *time.Time) {
	t.Helper()

	tokens, err := sec.NewTokenService("0123456789abcdef0123456789abcdef", "pressdeck.app")
	require.NoError(t, err)

	store := newMemoryStore()
	recorder := audit.NewRecorder(nullAuditStore{}, slog.Default())
	service := NewService(store, tokens, recorder)

	clock := time.Now()
	service.now = func() time.Time { return clock }
	return service, store, tokens, &clock
}

/*
TestService_IssueAndValidate verifies the full round-trip: Issue mints a
verifiable token and Validate advances the idle anchor.
*/
func TestService_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	service, store, _, clock := newTestService(t)

	issued, err := service.Issue(ctx, "user-1", sec.RoleManager, Device{IPAddress: "10.0.0.1", UserAgent: "ua"})
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)

	// 1. Claims come back intact.
	claims, err := service.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Session.ID, claims.SessionID)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, string(sec.RoleManager), claims.Role)

	// 2. Validation moved the idle anchor to the current clock.
	*clock = clock.Add(30 * time.Minute)
	_, err = service.Validate(ctx, issued.Token)
	require.NoError(t, err)

	row, err := store.FindByID(ctx, issued.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, *clock, row.LastActivityAt)
}

/*
TestService_ValidateRejectsRevoked verifies that a cryptographically valid
token dies the moment its row is revoked.
*/
func TestService_ValidateRejectsRevoked(t *testing.T) {
	ctx := context.Background()
	service, _, _, _ := newTestService(t)

	issued, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)

	require.NoError(t, service.Revoke(ctx, "user-1", issued.Session.ID))

	_, err = service.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

/*
TestService_IdleTimeout verifies that a session with no activity for longer
than the idle window is rejected with the idle reason, well inside the
absolute lifetime.
*/
func TestService_IdleTimeout(t *testing.T) {
	ctx := context.Background()
	service, _, _, clock := newTestService(t)

	issued, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)

	*clock = clock.Add(IdleTimeout + time.Minute)
	_, err = service.Validate(ctx, issued.Token)
	require.ErrorIs(t, err, ErrSessionExpired)

	appErr := apperrMeta(t, err)
	assert.Equal(t, ExpiryReasonIdle, appErr["reason"])
}

/*
TestService_IdleTimeoutBoundary verifies the idle window edge: one second
shy of the timeout still validates, the exact timeout instant does not.
*/
func TestService_IdleTimeoutBoundary(t *testing.T) {
	ctx := context.Background()
	service, _, _, clock := newTestService(t)

	issued, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)

	// 1. Just inside the window: valid (and the anchor advances).
	*clock = clock.Add(IdleTimeout - time.Second)
	_, err = service.Validate(ctx, issued.Token)
	require.NoError(t, err)

	// 2. Exactly one full idle window since the last activity: expired.
	*clock = clock.Add(IdleTimeout)
	_, err = service.Validate(ctx, issued.Token)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, ExpiryReasonIdle, apperrMeta(t, err)["reason"])
}

/*
TestService_ActivityExtendsIdleOnly verifies that steady activity keeps a
session alive through many idle windows, but never past the absolute
lifetime recorded in the row.
*/
func TestService_ActivityExtendsIdleOnly(t *testing.T) {
	ctx := context.Background()
	service, _, _, clock := newTestService(t)

	issued, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)

	// 1. Activity every 30 minutes keeps it alive for hours.
	for i := 0; i < 6; i++ {
		*clock = clock.Add(30 * time.Minute)
		_, err = service.Validate(ctx, issued.Token)
		require.NoError(t, err)
	}

	// 2. The absolute ceiling still holds regardless of activity.
	*clock = issued.Session.ExpiresAt.Add(time.Second)
	_, err = service.Validate(ctx, issued.Token)
	require.ErrorIs(t, err, ErrSessionExpired)

	appErr := apperrMeta(t, err)
	assert.Equal(t, ExpiryReasonAbsolute, appErr["reason"])
}

/*
TestService_ValidateRejectsForgery verifies tampered and foreign tokens are
rejected as signature failures.
*/
func TestService_ValidateRejectsForgery(t *testing.T) {
	ctx := context.Background()
	service, _, _, _ := newTestService(t)

	issued, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)

	_, err = service.Validate(ctx, issued.Token+"x")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = service.Validate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

/*
TestService_RevokeIsOwnerScoped verifies one account cannot revoke another
account's session.
*/
func TestService_RevokeIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	service, _, _, _ := newTestService(t)

	issued, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)

	err = service.Revoke(ctx, "user-2", issued.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The rightful owner still can.
	assert.NoError(t, service.Revoke(ctx, "user-1", issued.Session.ID))
}

/*
TestService_RevokeAllSparesCurrent verifies the sign-out-everywhere
behavior.
*/
func TestService_RevokeAllSparesCurrent(t *testing.T) {
	ctx := context.Background()
	service, _, _, _ := newTestService(t)

	current, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)
	other, err := service.Issue(ctx, "user-1", sec.RoleMember, Device{})
	require.NoError(t, err)

	revoked, err := service.RevokeAll(ctx, "user-1", current.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), revoked)

	_, err = service.Validate(ctx, current.Token)
	assert.NoError(t, err)
	_, err = service.Validate(ctx, other.Token)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}
