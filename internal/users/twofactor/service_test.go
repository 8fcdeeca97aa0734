// Copyright (c) 2026 Pressdeck. All rights reserved.

package twofactor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/pkg/pagination"
)

// memoryStore is an in-memory Store with compare-and-swap backup-code
// replacement, mirroring the Postgres implementation.
type memoryStore struct {
	mu      sync.Mutex
	secrets map[string]*Secrets
}

func newMemoryStore(accounts ...*Secrets) *memoryStore {
	store := &memoryStore{secrets: make(map[string]*Secrets)}
	for _, account := range accounts {
		copied := *account
		store.secrets[account.AccountID] = &copied
	}
	return store
}

func (s *memoryStore) Get(_ context.Context, accountID string) (*Secrets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, ok := s.secrets[accountID]
	if !ok {
		return nil, errAccountMissing
	}
	copied := *secrets
	return &copied, nil
}

func (s *memoryStore) SetPending(_ context.Context, accountID, secretEnc, backupCodesEnc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets := s.secrets[accountID]
	secrets.SecretEnc = secretEnc
	secrets.BackupCodesEnc = backupCodesEnc
	secrets.Enabled = false
	return nil
}

func (s *memoryStore) Enable(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[accountID].Enabled = true
	return nil
}

func (s *memoryStore) Disable(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets := s.secrets[accountID]
	secrets.Enabled = false
	secrets.SecretEnc = ""
	secrets.BackupCodesEnc = ""
	return nil
}

func (s *memoryStore) ReplaceBackupCodes(_ context.Context, accountID, oldEnc, newEnc string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets := s.secrets[accountID]
	if secrets.BackupCodesEnc != oldEnc {
		return false, nil
	}
	secrets.BackupCodesEnc = newEnc
	return true, nil
}

type nullAuditStore struct{}

func (nullAuditStore) Insert(context.Context, *audit.Entry) error { return nil }
func (nullAuditStore) List(context.Context, audit.Category, pagination.Params) ([]*audit.Entry, int, error) {
	return nil, 0, nil
}

func newTestService(t *testing.T, store Store) (*Service, *sec.Cipher, *time.Time) {
	t.Helper()

	cipher, err := sec.NewCipher("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	service := NewService(store, cipher, audit.NewRecorder(nullAuditStore{}, slog.Default()))

	// Anchored to a period boundary so skew arithmetic is exact.
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return clock }
	return service, cipher, &clock
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period: CodePeriod,
		Digits: otp.DigitsSix,
	})
	require.NoError(t, err)
	return code
}

func enrolledAccount(t *testing.T, service *Service, store *memoryStore) *Enrollment {
	t.Helper()
	ctx := context.Background()

	enrollment, err := service.Enroll(ctx, "acct-1")
	require.NoError(t, err)

	err = service.VerifyEnrollment(ctx, "acct-1", codeAt(t, enrollment.Secret, service.now()))
	require.NoError(t, err)
	return enrollment
}

func pendingAccount() *Secrets {
	return &Secrets{AccountID: "acct-1", Email: "a@b.c", Role: sec.RoleMember}
}

/*
TestService_EnrollmentLifecycle verifies provisioning, the pending state,
and activation with a live code.
*/
func TestService_EnrollmentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(pendingAccount())
	service, cipher, _ := newTestService(t, store)

	// 1. Enrollment returns the provisioning material.
	enrollment, err := service.Enroll(ctx, "acct-1")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.OTPAuthURL, "otpauth://")
	assert.Len(t, enrollment.BackupCodes, BackupCodeCount)

	// 2. The stored secret is an envelope, not plaintext, and the account
	//    is still pending.
	stored, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.NotEqual(t, enrollment.Secret, stored.SecretEnc)
	decrypted, err := cipher.DecryptString(stored.SecretEnc)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Secret, decrypted)

	// 3. A pending enrollment does not satisfy a login challenge.
	err = service.VerifyChallenge(ctx, "acct-1", codeAt(t, enrollment.Secret, service.now()), false)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	// 4. A live code activates it; a second enroll is then rejected.
	err = service.VerifyEnrollment(ctx, "acct-1", codeAt(t, enrollment.Secret, service.now()))
	require.NoError(t, err)

	_, err = service.Enroll(ctx, "acct-1")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

/*
TestService_VerifyChallenge_SkewWindow verifies codes from adjacent periods
are accepted up to the configured drift and rejected beyond it.
*/
func TestService_VerifyChallenge_SkewWindow(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(pendingAccount())
	service, _, clock := newTestService(t, store)
	enrollment := enrolledAccount(t, service, store)

	now := *clock

	// 1. Current code and codes two periods either side pass.
	for _, offset := range []time.Duration{0, -2 * CodePeriod * time.Second, 2 * CodePeriod * time.Second} {
		err := service.VerifyChallenge(ctx, "acct-1", codeAt(t, enrollment.Secret, now.Add(offset)), false)
		assert.NoError(t, err, "offset %s", offset)
	}

	// 2. Three periods of drift is too much.
	for _, offset := range []time.Duration{-3 * CodePeriod * time.Second, 3 * CodePeriod * time.Second} {
		err := service.VerifyChallenge(ctx, "acct-1", codeAt(t, enrollment.Secret, now.Add(offset)), false)
		assert.ErrorIs(t, err, ErrInvalidCode, "offset %s", offset)
	}

	// 3. A wrong code never passes.
	err := service.VerifyChallenge(ctx, "acct-1", "000000", false)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

/*
TestService_BackupCodeSingleUse verifies a backup code works exactly once
and the remaining list shrinks.
*/
func TestService_BackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(pendingAccount())
	service, cipher, _ := newTestService(t, store)
	enrollment := enrolledAccount(t, service, store)

	code := enrollment.BackupCodes[3]

	// 1. First use passes.
	require.NoError(t, service.VerifyChallenge(ctx, "acct-1", code, true))

	// 2. Second use of the same code fails.
	err := service.VerifyChallenge(ctx, "acct-1", code, true)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// 3. The other codes survive.
	stored, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	plaintext, err := cipher.Decrypt(stored.BackupCodesEnc)
	require.NoError(t, err)
	var remaining []string
	require.NoError(t, json.Unmarshal(plaintext, &remaining))
	assert.Len(t, remaining, BackupCodeCount-1)
	assert.NotContains(t, remaining, code)

	another := enrollment.BackupCodes[7]
	assert.NoError(t, service.VerifyChallenge(ctx, "acct-1", another, true))
}

/*
TestService_BackupCodeIsCaseInsensitive verifies codes match regardless of
how the user types them.
*/
func TestService_BackupCodeIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(pendingAccount())
	service, _, _ := newTestService(t, store)
	enrollment := enrolledAccount(t, service, store)

	sloppy := "  " + strings.ToLower(enrollment.BackupCodes[0]) + " "
	assert.NoError(t, service.VerifyChallenge(ctx, "acct-1", sloppy, true))
}

/*
TestService_RegenerateBackupCodes verifies regeneration requires a live
code and invalidates the old set.
*/
func TestService_RegenerateBackupCodes(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(pendingAccount())
	service, _, _ := newTestService(t, store)
	enrollment := enrolledAccount(t, service, store)

	// 1. A wrong code is rejected.
	_, err := service.RegenerateBackupCodes(ctx, "acct-1", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	// 2. A live code mints a fresh set; the old codes stop working.
	fresh, err := service.RegenerateBackupCodes(ctx, "acct-1", codeAt(t, enrollment.Secret, service.now()))
	require.NoError(t, err)
	assert.Len(t, fresh, BackupCodeCount)

	err = service.VerifyChallenge(ctx, "acct-1", enrollment.BackupCodes[0], true)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.NoError(t, service.VerifyChallenge(ctx, "acct-1", fresh[0], true))
}

/*
TestService_Disable verifies the code requirement and the admin carve-out.
*/
func TestService_Disable(t *testing.T) {
	ctx := context.Background()

	// 1. Members can disable with a live code.
	store := newMemoryStore(pendingAccount())
	service, _, _ := newTestService(t, store)
	enrollment := enrolledAccount(t, service, store)

	err := service.Disable(ctx, "acct-1", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	require.NoError(t, service.Disable(ctx, "acct-1", codeAt(t, enrollment.Secret, service.now())))
	stored, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.Empty(t, stored.SecretEnc)

	// 2. Admins cannot disable at all.
	adminStore := newMemoryStore(&Secrets{AccountID: "acct-1", Email: "root@b.c", Role: sec.RoleAdmin})
	adminService, _, _ := newTestService(t, adminStore)
	adminEnrollment := enrolledAccount(t, adminService, adminStore)

	err = adminService.Disable(ctx, "acct-1", codeAt(t, adminEnrollment.Secret, adminService.now()))
	assert.ErrorIs(t, err, ErrDisableForbidden)
}
