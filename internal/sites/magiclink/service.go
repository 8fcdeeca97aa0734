// Copyright (c) 2026 Pressdeck. All rights reserved.

package magiclink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/internal/security/token"
	"github.com/pressdeck/pressdeck/pkg/pointer"
)

// # Token Payloads

// otpPayload rides inside the OTP token: the expected code and the site the
// login is aimed at. The payload never leaves the broker's storage.
type otpPayload struct {
	Code   string `json:"code"`
	SiteID string `json:"site_id"`
}

// grantPayload rides inside the final login token.
type grantPayload struct {
	SiteID string `json:"site_id"`
}

// TokenBroker is the slice of the ephemeral-token broker this flow needs.
type TokenBroker interface {
	Issue(ctx context.Context, purpose token.Purpose, subject, payload string, ttl time.Duration) (string, error)
	Redeem(ctx context.Context, plaintext string, purpose token.Purpose) (*token.Token, error)
}

// # Service

// Service runs the three-hop magic-login flow.
type Service struct {
	tokens   TokenBroker
	sites    SiteDirectory
	accounts AccountDirectory
	mailer   Mailer
	audit    *audit.Recorder
}

// NewService constructs a magic-login [Service].
func NewService(tokens TokenBroker, sites SiteDirectory, accounts AccountDirectory, mailer Mailer, recorder *audit.Recorder) *Service {
	return &Service{
		tokens:   tokens,
		sites:    sites,
		accounts: accounts,
		mailer:   mailer,
		audit:    recorder,
	}
}

/*
RequestOTP starts a magic login for a site.

Description: Generates a short numeric code, mails it to the account, and
issues an OTP token whose hidden payload binds the code and the target
site. The caller's browser holds only the opaque token; the code travels
out of band.

Parameters:
  - ctx: context.Context
  - accountID: The signed-in dashboard account
  - siteID: The managed site to log into

Returns:
  - string: The opaque OTP token for the browser
  - error: ErrSiteNotFound, or mail/crypto/storage failures
*/
func (service *Service) RequestOTP(ctx context.Context, accountID, siteID string) (string, error) {
	site, err := service.sites.FindSite(ctx, siteID)
	if err != nil {
		return "", err
	}

	_, email, err := service.accounts.FindIdentity(ctx, accountID)
	if err != nil {
		return "", err
	}

	code, err := sec.GenerateNumericCode(otpDigits)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(otpPayload{Code: code, SiteID: site.ID})
	if err != nil {
		return "", fmt.Errorf("otp_payload_marshal_failed: %w", err)
	}

	otpToken, err := service.tokens.Issue(ctx, token.PurposeMagicLoginOTP, accountID, string(payload),
		token.TTLFor(token.PurposeMagicLoginOTP))
	if err != nil {
		return "", err
	}

	if err := service.mailer.SendMagicLoginCode(ctx, email, code, site.Name); err != nil {
		return "", err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(accountID),
		Action:     audit.ActionMagicOTPIssued,
		Category:   audit.CategoryMagicLogin,
		TargetType: "site",
		TargetID:   site.ID,
	})

	return otpToken, nil
}

/*
VerifyOTP exchanges the OTP token plus the emailed code for a login token.

Description: Redemption consumes the OTP token whether or not the code
matches, so the six-digit code can never be brute-forced against a held
token — one wrong guess burns it and the user starts over. The comparison
is constant-time.

Parameters:
  - ctx: context.Context
  - accountID: The signed-in account; must match the token's subject
  - otpToken: The opaque token from RequestOTP
  - code: The emailed code as typed by the user

Returns:
  - string: The final single-use login token for the remote site
  - error: Token kinds from redemption, or ErrInvalidOTP
*/
func (service *Service) VerifyOTP(ctx context.Context, accountID, otpToken, code string) (string, error) {
	redeemed, err := service.tokens.Redeem(ctx, otpToken, token.PurposeMagicLoginOTP)
	if err != nil {
		return "", err
	}
	if redeemed.Subject != accountID {
		return "", token.ErrNotFound
	}

	var payload otpPayload
	if err := json.Unmarshal([]byte(redeemed.Payload), &payload); err != nil {
		return "", fmt.Errorf("otp_payload_corrupt: %w", err)
	}

	if !sec.ConstantTimeEquals(payload.Code, code) {
		service.audit.Record(ctx, audit.Entry{
			ActorID:    pointer.To(accountID),
			Action:     audit.ActionMagicLoginRejected,
			Category:   audit.CategoryMagicLogin,
			TargetType: "site",
			TargetID:   payload.SiteID,
			Detail:     map[string]any{"reason": "bad_otp"},
		})
		return "", ErrInvalidOTP
	}

	grant, err := json.Marshal(grantPayload{SiteID: payload.SiteID})
	if err != nil {
		return "", fmt.Errorf("grant_payload_marshal_failed: %w", err)
	}

	loginToken, err := service.tokens.Issue(ctx, token.PurposeMagicLoginFinal, accountID, string(grant),
		token.TTLFor(token.PurposeMagicLoginFinal))
	if err != nil {
		return "", err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(accountID),
		Action:     audit.ActionMagicOTPVerified,
		Category:   audit.CategoryMagicLogin,
		TargetType: "site",
		TargetID:   payload.SiteID,
	})

	return loginToken, nil
}

/*
RedeemLogin exchanges the final token for a login grant.

Description: Called by the WordPress plugin on the target site, not by the
dashboard. Redemption is the single-use gate: a token intercepted and
replayed after the legitimate redemption fails with TOKEN_ALREADY_USED.

Parameters:
  - ctx: context.Context
  - loginToken: The opaque token forwarded to the site

Returns:
  - *LoginGrant: The account identity and target site
  - error: Token kinds from redemption
*/
func (service *Service) RedeemLogin(ctx context.Context, loginToken string) (*LoginGrant, error) {
	redeemed, err := service.tokens.Redeem(ctx, loginToken, token.PurposeMagicLoginFinal)
	if err != nil {
		return nil, err
	}

	var payload grantPayload
	if err := json.Unmarshal([]byte(redeemed.Payload), &payload); err != nil {
		return nil, fmt.Errorf("grant_payload_corrupt: %w", err)
	}

	id, email, err := service.accounts.FindIdentity(ctx, redeemed.Subject)
	if err != nil {
		return nil, err
	}

	service.audit.Record(ctx, audit.Entry{
		ActorID:    pointer.To(id),
		Action:     audit.ActionMagicLoginRedeemed,
		Category:   audit.CategoryMagicLogin,
		TargetType: "site",
		TargetID:   payload.SiteID,
	})

	return &LoginGrant{AccountID: id, Email: email, SiteID: payload.SiteID}, nil
}
