// Copyright (c) 2026 Pressdeck. All rights reserved.

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/pkg/pointer"
	"github.com/pressdeck/pressdeck/pkg/uuidv7"
)

// # Service

// Service issues, validates, and revokes sessions. It implements the
// middleware SessionValidator contract.
type Service struct {
	store  Store
	tokens *sec.TokenService
	audit  *audit.Recorder

	// now is swappable for tests.
	now func() time.Time
}

// NewService constructs a session [Service].
func NewService(store Store, tokens *sec.TokenService, recorder *audit.Recorder) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		audit:  recorder,
		now:    time.Now,
	}
}

/*
Issue mints a session for an authenticated account.

Description: Creates the server-side row and signs a JWT carrying the
session ID, account ID, and role. The JWT's cryptographic expiry equals the
absolute lifetime; the idle timeout is enforced only through the row.

Parameters:
  - ctx: context.Context
  - accountID: The authenticated account
  - role: The account's role, embedded in the claims
  - device: Client IP and user agent bound to the session

Returns:
  - *Issued: The signed token (shown once) and the session record
  - error: Signing or persistence failures
*/
func (service *Service) Issue(ctx context.Context, accountID string, role sec.UserRole, device Device) (*Issued, error) {
	now := service.now()
	sess := &Session{
		ID:             uuidv7.New(),
		UserID:         accountID,
		IPAddress:      device.IPAddress,
		UserAgent:      device.UserAgent,
		LastActivityAt: now,
		ExpiresAt:      now.Add(AbsoluteTTL),
		CreatedAt:      now,
	}

	token, err := service.tokens.IssueSessionToken(sess.ID, accountID, string(role), AbsoluteTTL)
	if err != nil {
		return nil, err
	}
	sess.TokenHash = sec.HashToken(token)

	if err := service.store.Insert(ctx, sess); err != nil {
		return nil, err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(accountID),
		Action:     audit.ActionSessionIssued,
		Category:   audit.CategorySession,
		TargetType: "session",
		TargetID:   sess.ID,
		IPAddress:  device.IPAddress,
		UserAgent:  device.UserAgent,
	})

	return &Issued{Token: token, Session: sess}, nil
}

/*
Validate checks a presented token end to end and records activity.

Description: Two layers run in order. The JWT layer rejects forged and
cryptographically expired tokens without touching storage. The row layer
then enforces everything a stateless token cannot: revocation, the absolute
lifetime, and the idle timeout. Either layer failing rejects the session;
only full success advances the idle anchor.

Parameters:
  - ctx: context.Context
  - token: The raw JWT from cookie or Authorization header

Returns:
  - *sec.SessionClaims: The verified claims on success
  - error: ErrInvalidSignature, ErrSessionExpired (meta "reason"), or
    ErrSessionRevoked
*/
func (service *Service) Validate(ctx context.Context, token string) (*sec.SessionClaims, error) {
	claims, err := service.tokens.VerifySessionToken(token)
	if err != nil {
		if errors.Is(err, sec.ErrTokenExpired) {
			return nil, ErrSessionExpired.WithMeta("reason", ExpiryReasonAbsolute)
		}
		return nil, ErrInvalidSignature
	}

	sess, err := service.store.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// Rows only vanish when swept past their absolute expiry.
			return nil, ErrSessionExpired.WithMeta("reason", ExpiryReasonAbsolute)
		}
		return nil, err
	}

	// The claims must belong to this exact token, not merely to the row's
	// session ID.
	if !sec.ConstantTimeEquals(sess.TokenHash, sec.HashToken(token)) {
		return nil, ErrInvalidSignature
	}

	now := service.now()
	switch {
	case sess.Revoked():
		return nil, ErrSessionRevoked
	case !now.Before(sess.ExpiresAt):
		return nil, ErrSessionExpired.WithMeta("reason", ExpiryReasonAbsolute)
	case now.Sub(sess.LastActivityAt) >= IdleTimeout:
		return nil, ErrSessionExpired.WithMeta("reason", ExpiryReasonIdle)
	}

	if err := service.store.UpdateActivity(ctx, sess.ID, now); err != nil {
		return nil, err
	}

	return claims, nil
}

/*
Revoke invalidates one session owned by the acting account.

Parameters:
  - ctx: context.Context
  - actorID: The account making the request
  - sessionID: The session to revoke

Returns:
  - error: ErrSessionNotFound when the session does not exist or belongs to
    another account, otherwise storage failures
*/
func (service *Service) Revoke(ctx context.Context, actorID, sessionID string) error {
	sess, err := service.store.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != actorID {
		// Indistinguishable from a missing session on purpose.
		return ErrSessionNotFound
	}

	transitioned, err := service.store.Revoke(ctx, sessionID, service.now())
	if err != nil {
		return err
	}
	if transitioned {
		service.audit.Record(ctx, audit.Entry{
			ActorID:    pointer.To(actorID),
			Action:     audit.ActionSessionRevoked,
			Category:   audit.CategorySession,
			TargetType: "session",
			TargetID:   sessionID,
		})
	}
	return nil
}

/*
RevokeAll invalidates every live session of an account except one.

Description: Used by "sign out everywhere" and forced after a password
change or reset. Pass exceptID="" to revoke the current session too.

Parameters:
  - ctx: context.Context
  - accountID: The account whose sessions are revoked
  - exceptID: Session to spare, usually the current one

Returns:
  - int64: Number of sessions revoked
  - error: Storage failures
*/
func (service *Service) RevokeAll(ctx context.Context, accountID, exceptID string) (int64, error) {
	revoked, err := service.store.RevokeAll(ctx, accountID, exceptID, service.now())
	if err != nil {
		return 0, err
	}
	if revoked > 0 {
		service.audit.Record(ctx, audit.Entry{
			ActorID:    pointer.To(accountID),
			Action:     audit.ActionSessionRevoked,
			Category:   audit.CategorySession,
			TargetType: "account",
			TargetID:   accountID,
			Detail:     map[string]any{"revoked": revoked, "bulk": true},
		})
	}
	return revoked, nil
}

/*
List returns the account's live sessions, marking the current one.

Parameters:
  - ctx: context.Context
  - accountID: The account whose sessions are listed
  - currentID: Session ID of the request making the call

Returns:
  - []*Session: Live sessions, newest first
  - error: Storage failures
*/
func (service *Service) List(ctx context.Context, accountID, currentID string) ([]*Session, error) {
	sessions, err := service.store.ListByUser(ctx, accountID, service.now())
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		sess.Current = sess.ID == currentID
	}
	return sessions, nil
}

// RunSweeper deletes rows past their absolute expiry on a fixed interval
// until the context is cancelled. Garbage collection only; Validate never
// depends on it.
func (service *Service) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := service.store.DeleteExpired(ctx, service.now())
			if err != nil {
				logger.ErrorContext(ctx, "session_sweep_failed", slog.Any("error", err))
				continue
			}
			if deleted > 0 {
				logger.InfoContext(ctx, "session_sweep_completed", slog.Int64("deleted", deleted))
			}
		case <-ctx.Done():
			return
		}
	}
}
