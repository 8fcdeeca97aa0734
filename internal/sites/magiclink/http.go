// Copyright (c) 2026 Pressdeck. All rights reserved.

package magiclink

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pressdeck/pressdeck/internal/platform/middleware"
	requestutil "github.com/pressdeck/pressdeck/internal/platform/request"
	"github.com/pressdeck/pressdeck/internal/platform/respond"
	"github.com/pressdeck/pressdeck/internal/platform/validate"
)

// Handler exposes the magic-login endpoints. Request and verify require a
// dashboard session; redeem is called by the remote site's plugin and
// authenticates with the token itself.
type Handler struct {
	magicLoginService *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{magicLoginService: service}
}

// Routes returns a [chi.Router] for the magic-login endpoints.
//
// # Endpoints
//   - POST /request : Start a magic login for a site.
//   - POST /verify  : Exchange OTP token + code for a login token.
//   - POST /redeem  : Plugin-side exchange of the login token.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/redeem", handler.redeem)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/request", handler.request)
		r.Post("/verify", handler.verify)
	})

	return router
}

type requestOTPRequest struct {
	SiteID string `json:"site_id"`
}

/*
request starts a magic login: mails a code and returns the OTP token.

POST /api/v1/magic-login/request

Response:
  - 200: {"otp_token": ...}
  - 404: Site not in the fleet
*/
func (handler *Handler) request(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload requestOTPRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	if err := v.Required("site_id", payload.SiteID).UUID("site_id", payload.SiteID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	otpToken, err := handler.magicLoginService.RequestOTP(request.Context(), userID, payload.SiteID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{"otp_token": otpToken})
}

type verifyOTPRequest struct {
	OTPToken string `json:"otp_token"`
	Code     string `json:"code"`
}

/*
verify exchanges the OTP token and emailed code for a login token.

POST /api/v1/magic-login/verify

Response:
  - 200: {"login_token": ...}
  - 401: Bad code (token consumed) or token kinds
  - 409: TOKEN_ALREADY_USED on replay
*/
func (handler *Handler) verify(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload verifyOTPRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	err = v.
		Required("otp_token", payload.OTPToken).
		Required("code", payload.Code).
		ExactLen("code", payload.Code, otpDigits).
		Digits("code", payload.Code).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	loginToken, err := handler.magicLoginService.VerifyOTP(request.Context(), userID, payload.OTPToken, payload.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{"login_token": loginToken})
}

type redeemRequest struct {
	LoginToken string `json:"login_token"`
}

/*
redeem is the plugin-side exchange of the login token for a grant.

POST /api/v1/magic-login/redeem

Response:
  - 200: LoginGrant
  - 401: Token kinds
  - 409: TOKEN_ALREADY_USED on replay
*/
func (handler *Handler) redeem(writer http.ResponseWriter, request *http.Request) {
	var payload redeemRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	if err := v.Required("login_token", payload.LoginToken).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	grant, err := handler.magicLoginService.RedeemLogin(request.Context(), payload.LoginToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, grant)
}
