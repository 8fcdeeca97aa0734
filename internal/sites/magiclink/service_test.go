// Copyright (c) 2026 Pressdeck. All rights reserved.

package magiclink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/internal/security/token"
	"github.com/pressdeck/pressdeck/pkg/pagination"
	"github.com/pressdeck/pressdeck/pkg/uuidv7"
)

// # Fakes

// memoryBroker mirrors the broker's single-use semantics in memory.
type memoryBroker struct {
	mu     sync.Mutex
	issued map[string]*token.Token
}

func newMemoryBroker() *memoryBroker {
	return &memoryBroker{issued: make(map[string]*token.Token)}
}

func (b *memoryBroker) Issue(_ context.Context, purpose token.Purpose, subject, payload string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	plaintext, err := sec.GenerateSecureToken(32)
	if err != nil {
		return "", err
	}
	b.issued[plaintext] = &token.Token{
		ID:        uuidv7.New(),
		Purpose:   purpose,
		Subject:   subject,
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
	}
	return plaintext, nil
}

func (b *memoryBroker) Redeem(_ context.Context, plaintext string, purpose token.Purpose) (*token.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.issued[plaintext]
	if !ok || record.Purpose != purpose {
		return nil, token.ErrNotFound
	}
	if record.Used {
		return nil, token.ErrAlreadyUsed
	}
	if !record.ExpiresAt.After(time.Now()) {
		return nil, token.ErrExpired
	}
	record.Used = true
	copied := *record
	return &copied, nil
}

// expire backdates a held token so expiry paths can be exercised.
func (b *memoryBroker) expire(plaintext string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if record, ok := b.issued[plaintext]; ok {
		record.ExpiresAt = time.Now().Add(-time.Second)
	}
}

// fakeMailer captures the out-of-band code.
type fakeMailer struct {
	mu    sync.Mutex
	codes []string
	sites []string
}

func (f *fakeMailer) SendMagicLoginCode(_ context.Context, _, code, siteName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	f.sites = append(f.sites, siteName)
	return nil
}

func (f *fakeMailer) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		return ""
	}
	return f.codes[len(f.codes)-1]
}

// fakeSites knows a single site.
type fakeSites struct {
	site Site
}

func (f *fakeSites) FindSite(_ context.Context, siteID string) (*Site, error) {
	if siteID != f.site.ID {
		return nil, ErrSiteNotFound
	}
	copied := f.site
	return &copied, nil
}

// fakeAccounts knows a single identity.
type fakeAccounts struct {
	id    string
	email string
}

func (f *fakeAccounts) FindIdentity(_ context.Context, accountID string) (string, string, error) {
	if accountID != f.id {
		return "", "", errors.New("identity not found")
	}
	return f.id, f.email, nil
}

type nullAuditStore struct{}

func (nullAuditStore) Insert(context.Context, *audit.Entry) error { return nil }
func (nullAuditStore) List(context.Context, audit.Category, pagination.Params) ([]*audit.Entry, int, error) {
	return nil, 0, nil
}

// # Harness

type linkFixture struct {
	service *Service
	broker  *memoryBroker
	mailer  *fakeMailer
	account *fakeAccounts
	site    Site
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()

	fixture := &linkFixture{
		broker: newMemoryBroker(),
		mailer: &fakeMailer{},
		account: &fakeAccounts{
			id:    uuidv7.New(),
			email: "owner@example.com",
		},
		site: Site{ID: uuidv7.New(), Name: "Example Blog", URL: "https://blog.example.com"},
	}
	fixture.service = NewService(
		fixture.broker,
		&fakeSites{site: fixture.site},
		fixture.account,
		fixture.mailer,
		audit.NewRecorder(nullAuditStore{}, slog.Default()),
	)
	return fixture
}

// # Tests

/*
TestMagicLogin_FullFlow walks the three hops: request the code, trade code
plus token for a login token, redeem the login token on the site side.
*/
func TestMagicLogin_FullFlow(t *testing.T) {
	ctx := context.Background()
	fixture := newLinkFixture(t)

	// 1. Request: the browser gets an opaque token, the inbox gets the code.
	otpToken, err := fixture.service.RequestOTP(ctx, fixture.account.id, fixture.site.ID)
	require.NoError(t, err)
	require.NotEmpty(t, otpToken)

	code := fixture.mailer.lastCode()
	require.Len(t, code, otpDigits)
	assert.NotContains(t, otpToken, code)

	// 2. Verify: code plus token yields the final login token.
	loginToken, err := fixture.service.VerifyOTP(ctx, fixture.account.id, otpToken, code)
	require.NoError(t, err)
	require.NotEmpty(t, loginToken)
	assert.NotEqual(t, otpToken, loginToken)

	// 3. Redeem on the site: the grant names the account and the site.
	grant, err := fixture.service.RedeemLogin(ctx, loginToken)
	require.NoError(t, err)
	assert.Equal(t, fixture.account.id, grant.AccountID)
	assert.Equal(t, fixture.account.email, grant.Email)
	assert.Equal(t, fixture.site.ID, grant.SiteID)

	// 4. Replaying the login token fails.
	_, err = fixture.service.RedeemLogin(ctx, loginToken)
	assert.ErrorIs(t, err, token.ErrAlreadyUsed)
}

/*
TestMagicLogin_WrongCodeBurnsToken verifies one wrong guess consumes the
OTP token, so the code cannot be brute-forced against a held token.
*/
func TestMagicLogin_WrongCodeBurnsToken(t *testing.T) {
	ctx := context.Background()
	fixture := newLinkFixture(t)

	otpToken, err := fixture.service.RequestOTP(ctx, fixture.account.id, fixture.site.ID)
	require.NoError(t, err)

	_, err = fixture.service.VerifyOTP(ctx, fixture.account.id, otpToken, "000000")
	assert.ErrorIs(t, err, ErrInvalidOTP)

	// The correct code no longer helps: the token is spent.
	_, err = fixture.service.VerifyOTP(ctx, fixture.account.id, otpToken, fixture.mailer.lastCode())
	assert.ErrorIs(t, err, token.ErrAlreadyUsed)
}

/*
TestMagicLogin_SubjectMismatch verifies a stolen OTP token is useless to a
different signed-in account.
*/
func TestMagicLogin_SubjectMismatch(t *testing.T) {
	ctx := context.Background()
	fixture := newLinkFixture(t)

	otpToken, err := fixture.service.RequestOTP(ctx, fixture.account.id, fixture.site.ID)
	require.NoError(t, err)

	_, err = fixture.service.VerifyOTP(ctx, uuidv7.New(), otpToken, fixture.mailer.lastCode())
	assert.ErrorIs(t, err, token.ErrNotFound)
}

/*
TestMagicLogin_OTPExpiry verifies a stale OTP token is refused.
*/
func TestMagicLogin_OTPExpiry(t *testing.T) {
	ctx := context.Background()
	fixture := newLinkFixture(t)

	otpToken, err := fixture.service.RequestOTP(ctx, fixture.account.id, fixture.site.ID)
	require.NoError(t, err)

	fixture.broker.expire(otpToken)

	_, err = fixture.service.VerifyOTP(ctx, fixture.account.id, otpToken, fixture.mailer.lastCode())
	assert.ErrorIs(t, err, token.ErrExpired)
}

/*
TestMagicLogin_UnknownSite verifies the request stage rejects sites that
are not in the directory before any code is generated.
*/
func TestMagicLogin_UnknownSite(t *testing.T) {
	ctx := context.Background()
	fixture := newLinkFixture(t)

	_, err := fixture.service.RequestOTP(ctx, fixture.account.id, uuidv7.New())
	assert.ErrorIs(t, err, ErrSiteNotFound)
	assert.Empty(t, fixture.mailer.codes)
}
