// Copyright (c) 2026 Pressdeck. All rights reserved.

/*
Package magiclink implements one-click sign-in from the dashboard into a
managed WordPress site.

The flow has three hops, each on a single-use token:

 1. RequestOTP — the signed-in dashboard user picks a site; a short numeric
    code goes out by email and an opaque OTP token goes to the browser.
 2. VerifyOTP — the user types the code; token and code are redeemed
    together and a final login token is minted.
 3. RedeemLogin — the remote site's plugin exchanges the final token for a
    login grant and signs the user in.
*/
package magiclink

import (
	"context"
	"net/http"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
)

// # Policy

// otpDigits is the length of the emailed verification code.
const otpDigits = 6

// # Domain Types

// Site is the directory view of a managed WordPress site.
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// LoginGrant is what the remote plugin receives for a redeemed login token.
type LoginGrant struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	SiteID    string `json:"site_id"`
}

// # Collaborator Interfaces

// Mailer delivers the OTP code out of band.
type Mailer interface {
	SendMagicLoginCode(ctx context.Context, email, code, siteName string) error
}

// SiteDirectory resolves sites the fleet manages.
type SiteDirectory interface {
	FindSite(ctx context.Context, siteID string) (*Site, error)
}

// AccountDirectory resolves the minimum account identity this flow needs.
type AccountDirectory interface {
	FindIdentity(ctx context.Context, accountID string) (id, email string, err error)
}

// # Domain Errors

var (
	// ErrInvalidOTP is returned when the emailed code does not match. The
	// OTP token is consumed by the attempt; a retry needs a fresh request.
	ErrInvalidOTP = apperr.New(http.StatusUnauthorized, "INVALID_OTP", "Verification code is incorrect")

	// ErrSiteNotFound is returned for sites outside the fleet.
	ErrSiteNotFound = apperr.New(http.StatusNotFound, "SITE_NOT_FOUND", "Site not found")
)
