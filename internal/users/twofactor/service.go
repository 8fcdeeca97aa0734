// Copyright (c) 2026 Pressdeck. All rights reserved.

package twofactor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/pressdeck/pressdeck/internal/platform/constants"
	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/pkg/pointer"
)

// # Service

// Service runs enrollment and verification. All secret material crosses the
// store boundary encrypted.
type Service struct {
	store  Store
	cipher *sec.Cipher
	audit  *audit.Recorder

	// now is swappable for tests.
	now func() time.Time
}

// NewService constructs a two-factor [Service].
func NewService(store Store, cipher *sec.Cipher, recorder *audit.Recorder) *Service {
	return &Service{
		store:  store,
		cipher: cipher,
		audit:  recorder,
		now:    time.Now,
	}
}

/*
Enroll provisions a TOTP secret and backup codes for an account.

Description: The enrollment stays pending (codes are not yet required at
login) until VerifyEnrollment confirms the authenticator was set up with a
live code. Re-enrolling while pending replaces the previous material;
re-enrolling while active is rejected.

Parameters:
  - ctx: context.Context
  - accountID: The account starting enrollment

Returns:
  - *Enrollment: Secret, provisioning URI, and backup codes — shown once
  - error: ErrAlreadyEnrolled, or crypto/storage failures
*/
func (service *Service) Enroll(ctx context.Context, accountID string) (*Enrollment, error) {
	secrets, err := service.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if secrets.Enabled {
		return nil, ErrAlreadyEnrolled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      constants.AuthIssuer,
		AccountName: secrets.Email,
		Period:      CodePeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("totp_generate_failed: %w", err)
	}

	codes := make([]string, 0, BackupCodeCount)
	for i := 0; i < BackupCodeCount; i++ {
		code, err := sec.GenerateBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	secretEnc, err := service.cipher.EncryptString(key.Secret())
	if err != nil {
		return nil, err
	}
	codesEnc, err := service.encryptCodes(codes)
	if err != nil {
		return nil, err
	}

	if err := service.store.SetPending(ctx, accountID, secretEnc, codesEnc); err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

/*
VerifyEnrollment confirms a pending enrollment with a live code.

Parameters:
  - ctx: context.Context
  - accountID: The enrolling account
  - code: A current code from the authenticator

Returns:
  - error: ErrNotEnrolled when nothing is pending, ErrInvalidCode on a bad
    code, otherwise storage failures
*/
func (service *Service) VerifyEnrollment(ctx context.Context, accountID, code string) error {
	secrets, err := service.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if secrets.Enabled {
		return ErrAlreadyEnrolled
	}
	if secrets.SecretEnc == "" {
		return ErrNotEnrolled
	}

	ok, err := service.validateCode(secrets.SecretEnc, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := service.store.Enable(ctx, accountID); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(accountID),
		Action:     audit.ActionTwoFactorEnrolled,
		Category:   audit.CategoryTwoFactor,
		TargetType: "account",
		TargetID:   accountID,
	})
	return nil
}

/*
VerifyChallenge checks the second factor during login.

Description: With backupCode=false the code is validated as TOTP, accepting
a drift window of CodeSkew periods either side of now. With backupCode=true
the code is matched against the stored backup codes and, on a hit, removed
with a compare-and-swap so each code works exactly once even under
concurrent attempts.

Parameters:
  - ctx: context.Context
  - accountID: The account finishing login
  - code: The submitted TOTP or backup code
  - backupCode: Which kind of code was submitted

Returns:
  - error: ErrNotEnrolled, ErrInvalidCode, or crypto/storage failures
*/
func (service *Service) VerifyChallenge(ctx context.Context, accountID, code string, backupCode bool) error {
	secrets, err := service.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !secrets.Enabled {
		return ErrNotEnrolled
	}

	if backupCode {
		return service.consumeBackupCode(ctx, secrets, code)
	}

	ok, err := service.validateCode(secrets.SecretEnc, code)
	if err != nil {
		return err
	}
	if !ok {
		service.audit.Record(ctx, audit.Entry{
			ActorID:    pointer.To(accountID),
			Action:     audit.ActionTwoFactorRejected,
			Category:   audit.CategoryTwoFactor,
			TargetType: "account",
			TargetID:   accountID,
		})
		return ErrInvalidCode
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(accountID),
		Action:     audit.ActionTwoFactorAccepted,
		Category:   audit.CategoryTwoFactor,
		TargetType: "account",
		TargetID:   accountID,
	})
	return nil
}

/*
RegenerateBackupCodes replaces the remaining backup codes with a fresh set.

Parameters:
  - ctx: context.Context
  - accountID: The account requesting new codes
  - code: A current TOTP code authorizing the operation

Returns:
  - []string: The new backup codes, shown once
  - error: ErrNotEnrolled, ErrInvalidCode, or crypto/storage failures
*/
func (service *Service) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	secrets, err := service.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !secrets.Enabled {
		return nil, ErrNotEnrolled
	}

	ok, err := service.validateCode(secrets.SecretEnc, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	codes := make([]string, 0, BackupCodeCount)
	for i := 0; i < BackupCodeCount; i++ {
		c, err := sec.GenerateBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}

	codesEnc, err := service.encryptCodes(codes)
	if err != nil {
		return nil, err
	}
	if _, err := service.store.ReplaceBackupCodes(ctx, accountID, secrets.BackupCodesEnc, codesEnc); err != nil {
		return nil, err
	}

	return codes, nil
}

/*
Disable turns two-factor off for an account.

Description: Requires a current code so a hijacked session cannot silently
weaken the account. Administrator accounts cannot disable two-factor at all.

Parameters:
  - ctx: context.Context
  - accountID: The account disabling two-factor
  - code: A current TOTP code authorizing the operation

Returns:
  - error: ErrDisableForbidden for admins, ErrNotEnrolled, ErrInvalidCode,
    or storage failures
*/
func (service *Service) Disable(ctx context.Context, accountID, code string) error {
	secrets, err := service.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if secrets.Role == sec.RoleAdmin {
		return ErrDisableForbidden
	}
	if !secrets.Enabled {
		return ErrNotEnrolled
	}

	ok, err := service.validateCode(secrets.SecretEnc, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := service.store.Disable(ctx, accountID); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(accountID),
		Action:     audit.ActionTwoFactorDisabled,
		Category:   audit.CategoryTwoFactor,
		TargetType: "account",
		TargetID:   accountID,
	})
	return nil
}

// validateCode decrypts the secret and checks a TOTP code against the
// configured period, digits, and drift window.
func (service *Service) validateCode(secretEnc, code string) (bool, error) {
	secret, err := service.cipher.DecryptString(secretEnc)
	if err != nil {
		return false, err
	}

	return totp.ValidateCustom(code, secret, service.now(), totp.ValidateOpts{
		Period: CodePeriod,
		Skew:   CodeSkew,
		Digits: otp.DigitsSix,
	})
}

// consumeBackupCode matches and removes one backup code. The removal is a
// compare-and-swap on the previous envelope; losing the swap means another
// request consumed a code concurrently, and the submitted code is treated
// as spent.
func (service *Service) consumeBackupCode(ctx context.Context, secrets *Secrets, code string) error {
	if secrets.BackupCodesEnc == "" {
		return ErrInvalidCode
	}

	plaintext, err := service.cipher.Decrypt(secrets.BackupCodesEnc)
	if err != nil {
		return err
	}
	var codes []string
	if err := json.Unmarshal(plaintext, &codes); err != nil {
		return fmt.Errorf("backup_codes_corrupt: %w", err)
	}

	submitted := strings.ToUpper(strings.TrimSpace(code))
	match := -1
	for i, candidate := range codes {
		// Scan the whole list regardless of where the match lands.
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(submitted)) == 1 && match == -1 {
			match = i
		}
	}
	if match == -1 {
		service.audit.Record(ctx, audit.Entry{
			ActorID:    pointer.To(secrets.AccountID),
			Action:     audit.ActionTwoFactorRejected,
			Category:   audit.CategoryTwoFactor,
			TargetType: "account",
			TargetID:   secrets.AccountID,
			Detail:     map[string]any{"backup_code": true},
		})
		return ErrInvalidCode
	}

	remaining := append(append([]string{}, codes[:match]...), codes[match+1:]...)
	newEnc, err := service.encryptCodes(remaining)
	if err != nil {
		return err
	}

	swapped, err := service.store.ReplaceBackupCodes(ctx, secrets.AccountID, secrets.BackupCodesEnc, newEnc)
	if err != nil {
		return err
	}
	if !swapped {
		return ErrInvalidCode
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(secrets.AccountID),
		Action:     audit.ActionBackupCodeConsumed,
		Category:   audit.CategoryTwoFactor,
		TargetType: "account",
		TargetID:   secrets.AccountID,
		Detail:     map[string]any{"remaining": len(remaining)},
	})
	return nil
}

func (service *Service) encryptCodes(codes []string) (string, error) {
	raw, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("backup_codes_marshal_failed: %w", err)
	}
	return service.cipher.Encrypt(raw)
}
