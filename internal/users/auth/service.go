// Copyright (c) 2026 Pressdeck. All rights reserved.

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/internal/security/lockout"
	"github.com/pressdeck/pressdeck/internal/security/token"
	"github.com/pressdeck/pressdeck/internal/users/session"
	"github.com/pressdeck/pressdeck/pkg/pointer"
	"github.com/pressdeck/pressdeck/pkg/uuidv7"
)

// # Collaborator Interfaces

// SessionMinter is the slice of the session service the login flow needs.
type SessionMinter interface {
	Issue(ctx context.Context, accountID string, role sec.UserRole, device session.Device) (*session.Issued, error)
	RevokeAll(ctx context.Context, accountID, exceptID string) (int64, error)
}

// TokenBroker is the slice of the ephemeral-token broker the flows need.
type TokenBroker interface {
	Issue(ctx context.Context, purpose token.Purpose, subject, payload string, ttl time.Duration) (string, error)
	Redeem(ctx context.Context, plaintext string, purpose token.Purpose) (*token.Token, error)
}

// ChallengeVerifier checks the second factor during login.
type ChallengeVerifier interface {
	VerifyChallenge(ctx context.Context, accountID, code string, backupCode bool) error
}

// Mailer delivers out-of-band messages. Implementations must not block on
// slow providers; the flows treat delivery as best-effort.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, displayName, resetToken string) error
}

// # Service

// Service orchestrates login and the password lifecycle.
type Service struct {
	store     Store
	lockout   *lockout.Tracker
	tokens    TokenBroker
	sessions  SessionMinter
	twoFactor ChallengeVerifier
	mailer    Mailer
	audit     *audit.Recorder
}

// NewService constructs an auth [Service].
func NewService(
	store Store,
	tracker *lockout.Tracker,
	tokens TokenBroker,
	sessions SessionMinter,
	twoFactor ChallengeVerifier,
	mailer Mailer,
	recorder *audit.Recorder,
) *Service {
	return &Service{
		store:     store,
		lockout:   tracker,
		tokens:    tokens,
		sessions:  sessions,
		twoFactor: twoFactor,
		mailer:    mailer,
		audit:     recorder,
	}
}

// LoginResult is returned when a login fully succeeds. When two-factor is
// required, Login instead returns ErrTwoFactorRequired carrying the
// challenge token.
type LoginResult struct {
	Account *Account
	Session *session.Issued
}

// Lockout keys. Failures are tracked per identifier and per source IP, so
// neither a single-account attack nor a spray from one address slips
// through.
func identifierLockKey(email string) string { return "email:" + email }
func addressLockKey(ip string) string       { return "ip:" + ip }

/*
Login runs the first authentication stage.

Description: The order is fixed. The lockout gate runs before any credential
work, so a locked key costs no hash comparison. Credentials are then
verified: unknown identifiers burn a dummy hash comparison to stay
timing-indistinguishable from wrong passwords, and blocked or pending
accounts fail even with a correct password. Every failure shape counts
toward the lockout threshold on both keys. On success with two-factor
enabled, a single-use challenge token is issued instead of a session.

Parameters:
  - ctx: context.Context
  - email: The submitted identifier
  - password: The submitted password
  - device: Client IP and user agent

Returns:
  - *LoginResult: The account and minted session on full success
  - error: ErrAccountLocked (meta "locked_until"), ErrTwoFactorRequired
    (meta "challenge_token"), or ErrInvalidCredentials — the precise
    failure reason goes to the audit trail, not the client
*/
func (service *Service) Login(ctx context.Context, email, password string, device session.Device) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	keys := []string{identifierLockKey(email), addressLockKey(device.IPAddress)}

	for _, key := range keys {
		status, err := service.lockout.Check(ctx, key)
		if err != nil {
			return nil, err
		}
		if status.Locked {
			service.recordLogin(ctx, nil, audit.ActionLoginFailed, device, map[string]any{
				"email": email, "reason": "locked",
			})
			return nil, ErrAccountLocked.WithMeta("locked_until", status.LockedUntil)
		}
	}

	account, verifyErr := service.verifyCredentials(ctx, email, password)
	if verifyErr != nil {
		if !isCredentialFailure(verifyErr) {
			return nil, verifyErr
		}
		return nil, service.registerFailure(ctx, account, email, device, verifyErr, keys)
	}

	for _, key := range keys {
		if _, err := service.lockout.RecordAttempt(ctx, key, true); err != nil {
			return nil, err
		}
	}

	if account.TwoFactorEnabled {
		challenge, err := service.tokens.Issue(ctx, token.PurposeTwoFAChallenge, account.ID, "",
			token.TTLFor(token.PurposeTwoFAChallenge))
		if err != nil {
			return nil, err
		}
		service.recordLogin(ctx, &account.ID, audit.ActionTwoFactorRequired, device, nil)
		return nil, ErrTwoFactorRequired.WithMeta("challenge_token", challenge)
	}

	return service.finishLogin(ctx, account, device, false)
}

/*
CompleteTwoFactor runs the second authentication stage.

Description: Redeems the single-use challenge token from the first stage —
so a replayed or expired challenge fails before any code checking — then
verifies the TOTP or backup code and mints the session. Account status is
re-checked: an account blocked between the two stages does not get in.

Parameters:
  - ctx: context.Context
  - challengeToken: The opaque token from the TWO_FA_REQUIRED response
  - code: The submitted TOTP or backup code
  - backupCode: Which kind of code was submitted
  - device: Client IP and user agent

Returns:
  - *LoginResult: The account and minted session on success
  - error: Token kinds from redemption, INVALID_TWO_FA_CODE, or the
    account-status errors
*/
func (service *Service) CompleteTwoFactor(ctx context.Context, challengeToken, code string, backupCode bool, device session.Device) (*LoginResult, error) {
	redeemed, err := service.tokens.Redeem(ctx, challengeToken, token.PurposeTwoFAChallenge)
	if err != nil {
		return nil, err
	}

	account, err := service.store.FindByID(ctx, redeemed.Subject)
	if err != nil {
		return nil, err
	}
	if err := statusGate(account); err != nil {
		return nil, err
	}

	if err := service.twoFactor.VerifyChallenge(ctx, account.ID, code, backupCode); err != nil {
		return nil, err
	}

	return service.finishLogin(ctx, account, device, true)
}

/*
Register creates a standard member account.

Parameters:
  - ctx: context.Context
  - email: Login identifier, unique among live accounts
  - password: Plaintext password, hashed before storage
  - displayName: Human-readable name

Returns:
  - *Account: The created account
  - error: ErrEmailTaken, or hashing/storage failures
*/
func (service *Service) Register(ctx context.Context, email, password, displayName string) (*Account, error) {
	hash, err := sec.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &Account{
		ID:           uuidv7.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         sec.RoleMember,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := service.store.Insert(ctx, account); err != nil {
		return nil, err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(account.ID),
		Action:     "account_created",
		Category:   audit.CategoryAccount,
		TargetType: "account",
		TargetID:   account.ID,
	})
	return account, nil
}

/*
ChangePassword rotates the password of a signed-in account.

Description: Requires the current password even inside a valid session, and
revokes every other session afterwards so a stolen token does not survive
the rotation.

Parameters:
  - ctx: context.Context
  - accountID: The acting account
  - currentPassword: Must match the stored hash
  - newPassword: The replacement, hashed before storage
  - keepSessionID: The caller's session, spared from revocation

Returns:
  - error: ErrInvalidCredentials on a wrong current password, otherwise
    hashing/storage failures
*/
func (service *Service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, keepSessionID string) error {
	account, err := service.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(currentPassword, account.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := sec.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := service.store.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return err
	}

	if _, err := service.sessions.RevokeAll(ctx, accountID, keepSessionID); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(accountID),
		Action:     audit.ActionPasswordChanged,
		Category:   audit.CategoryAccount,
		TargetType: "account",
		TargetID:   accountID,
	})
	return nil
}

/*
RequestPasswordReset starts the forgot-password flow.

Description: Always reports success to the caller. An unknown email sends
nothing but is indistinguishable from a known one, preventing account
enumeration through this endpoint.

Parameters:
  - ctx: context.Context
  - email: The submitted identifier

Returns:
  - error: Only infrastructure failures; an unknown email is not an error
*/
func (service *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := service.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}

	resetToken, err := service.tokens.Issue(ctx, token.PurposePasswordReset, account.ID, "",
		token.TTLFor(token.PurposePasswordReset))
	if err != nil {
		return err
	}

	if err := service.mailer.SendPasswordReset(ctx, account.Email, account.DisplayName, resetToken); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(account.ID),
		Action:     audit.ActionPasswordResetIssued,
		Category:   audit.CategoryAccount,
		TargetType: "account",
		TargetID:   account.ID,
	})
	return nil
}

/*
ResetPassword completes the forgot-password flow.

Description: Redeems the single-use reset token, stores the new hash, and
revokes every session of the account.

Parameters:
  - ctx: context.Context
  - resetToken: The opaque token from the reset email
  - newPassword: The replacement password

Returns:
  - error: Token kinds from redemption, or hashing/storage failures
*/
func (service *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	redeemed, err := service.tokens.Redeem(ctx, resetToken, token.PurposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := sec.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := service.store.UpdatePasswordHash(ctx, redeemed.Subject, hash); err != nil {
		return err
	}

	if _, err := service.sessions.RevokeAll(ctx, redeemed.Subject, ""); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(redeemed.Subject),
		Action:     audit.ActionPasswordResetDone,
		Category:   audit.CategoryAccount,
		TargetType: "account",
		TargetID:   redeemed.Subject,
	})
	return nil
}

// # Internals

// verifyCredentials checks identifier, password, and account status, in
// that order. The password runs before the status gate so blocked and
// pending are only revealed to callers who know the password. The account
// is returned alongside status errors for audit attribution.
func (service *Service) verifyCredentials(ctx context.Context, email, password string) (*Account, error) {
	account, err := service.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			sec.BurnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !sec.CheckPasswordHash(password, account.PasswordHash) {
		return account, ErrInvalidCredentials
	}

	if err := statusGate(account); err != nil {
		return account, err
	}
	return account, nil
}

func statusGate(account *Account) error {
	switch account.Status {
	case StatusBlocked:
		return ErrAccountBlocked
	case StatusPending:
		return ErrAccountPending
	default:
		return nil
	}
}

// isCredentialFailure reports whether an error is one of the failure shapes
// that count toward the lockout threshold.
func isCredentialFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrAccountBlocked) ||
		errors.Is(err, ErrAccountPending)
}

// registerFailure counts a failed attempt on every lockout key, writes the
// precise reason to the audit trail, and returns the client-facing error:
// ErrAccountLocked when this attempt tripped the threshold, otherwise the
// deliberately vague ErrInvalidCredentials.
func (service *Service) registerFailure(ctx context.Context, account *Account, email string, device session.Device, cause error, keys []string) error {
	var lockedUntil time.Time
	for _, key := range keys {
		status, err := service.lockout.RecordAttempt(ctx, key, false)
		if err != nil {
			return err
		}
		if status.Locked && status.LockedUntil.After(lockedUntil) {
			lockedUntil = status.LockedUntil
		}
	}

	var actorID *string
	if account != nil {
		actorID = pointer.To(account.ID)
	}
	service.recordLogin(ctx, actorID, audit.ActionLoginFailed, device, map[string]any{
		"email": email, "reason": failureReason(cause),
	})

	if !lockedUntil.IsZero() {
		service.recordLogin(ctx, actorID, audit.ActionLoginLocked, device, map[string]any{
			"email": email, "locked_until": lockedUntil,
		})
		return ErrAccountLocked.WithMeta("locked_until", lockedUntil)
	}
	return ErrInvalidCredentials
}

// failureReason maps a credential failure to its audit label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrAccountBlocked):
		return "account_blocked"
	case errors.Is(err, ErrAccountPending):
		return "account_pending"
	default:
		return "bad_credentials"
	}
}

func (service *Service) finishLogin(ctx context.Context, account *Account, device session.Device, twoFactor bool) (*LoginResult, error) {
	issued, err := service.sessions.Issue(ctx, account.ID, account.Role, device)
	if err != nil {
		return nil, err
	}

	detail := map[string]any{"two_factor": twoFactor}
	service.recordLogin(ctx, &account.ID, audit.ActionLoginSucceeded, device, detail)

	return &LoginResult{Account: account, Session: issued}, nil
}

func (service *Service) recordLogin(ctx context.Context, actorID *string, action string, device session.Device, detail map[string]any) {
	service.audit.Record(ctx, audit.Entry{
		ActorID:   actorID,
		Action:    action,
		Category:  audit.CategoryAuth,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		Detail:    detail,
	})
}
