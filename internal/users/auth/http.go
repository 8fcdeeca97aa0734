// Copyright (c) 2026 Pressdeck. All rights reserved.

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pressdeck/pressdeck/internal/platform/constants"
	"github.com/pressdeck/pressdeck/internal/platform/middleware"
	requestutil "github.com/pressdeck/pressdeck/internal/platform/request"
	"github.com/pressdeck/pressdeck/internal/platform/respond"
	"github.com/pressdeck/pressdeck/internal/platform/validate"
	"github.com/pressdeck/pressdeck/internal/users/session"
)

// # Password Policy

const (
	passwordMinLength = 8
	// bcrypt truncates beyond 72 bytes; longer inputs are rejected instead
	// of silently clipped.
	passwordMaxLength = 72
)

// Handler exposes the authentication endpoints.
type Handler struct {
	authService    *Service
	sessionService *session.Service
	secureCookies  bool
}

// NewHandler constructs a new [Handler]. secureCookies should be true
// everywhere except local development.
func NewHandler(authService *Service, sessionService *session.Service, secureCookies bool) *Handler {
	return &Handler{
		authService:    authService,
		sessionService: sessionService,
		secureCookies:  secureCookies,
	}
}

// Routes returns a [chi.Router] for the auth endpoints.
//
// # Endpoints
//   - POST /register         : Create a member account.
//   - POST /login            : Password stage of login.
//   - POST /login/two-factor : Code stage of login.
//   - POST /logout           : Revoke the current session.
//   - POST /password/change  : Rotate the password (signed in).
//   - POST /password/forgot  : Start the reset flow.
//   - POST /password/reset   : Complete the reset flow.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/login/two-factor", handler.loginTwoFactor)
	router.Post("/password/forgot", handler.forgotPassword)
	router.Post("/password/reset", handler.resetPassword)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/password/change", handler.changePassword)
	})

	return router
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

/*
register creates a member account.

POST /api/v1/auth/register

Response:
  - 201: Account
  - 409: Email already in use
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var payload registerRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	err := v.
		Required(FieldEmail, payload.Email).
		Email(FieldEmail, payload.Email).
		Required(FieldPassword, payload.Password).
		MinLen(FieldPassword, payload.Password, passwordMinLength).
		MaxLen(FieldPassword, payload.Password, passwordMaxLength).
		Required(FieldDisplayName, payload.DisplayName).
		MaxLen(FieldDisplayName, payload.DisplayName, 100).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.authService.Register(request.Context(), payload.Email, payload.Password, payload.DisplayName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, account)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

/*
login runs the password stage.

POST /api/v1/auth/login

Response:
  - 200: {"account": ..., "token": ...} with the session cookie set
  - 401: INVALID_CREDENTIALS, or TWO_FA_REQUIRED with a challenge_token
    meta entry
  - 423: ACCOUNT_LOCKED with a locked_until meta entry
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var payload loginRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	err := v.
		Required(FieldEmail, payload.Email).
		Required(FieldPassword, payload.Password).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), payload.Email, payload.Password, deviceFrom(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeSession(writer, result)
}

type twoFactorRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
	BackupCode     bool   `json:"backup_code"`
}

/*
loginTwoFactor runs the code stage.

POST /api/v1/auth/login/two-factor

Response:
  - 200: {"account": ..., "token": ...} with the session cookie set
  - 401: Token kinds or INVALID_TWO_FA_CODE
  - 409: TOKEN_ALREADY_USED on a replayed challenge
*/
func (handler *Handler) loginTwoFactor(writer http.ResponseWriter, request *http.Request) {
	var payload twoFactorRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	err := v.
		Required(FieldChallengeToken, payload.ChallengeToken).
		Required(FieldCode, payload.Code).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.CompleteTwoFactor(
		request.Context(), payload.ChallengeToken, payload.Code, payload.BackupCode, deviceFrom(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeSession(writer, result)
}

/*
logout revokes the current session and clears the cookie.

POST /api/v1/auth/logout

Response:
  - 204: Signed out
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.sessionService.Revoke(request.Context(), claims.UserID, claims.SessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearSessionCookie(writer)
	respond.NoContent(writer)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

/*
changePassword rotates the password and revokes every other session.

POST /api/v1/auth/password/change

Response:
  - 204: Rotated
  - 401: Wrong current password
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload changePasswordRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	err = v.
		Required(FieldCurrentPassword, payload.CurrentPassword).
		Required(FieldNewPassword, payload.NewPassword).
		MinLen(FieldNewPassword, payload.NewPassword, passwordMinLength).
		MaxLen(FieldNewPassword, payload.NewPassword, passwordMaxLength).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(
		request.Context(), claims.UserID, payload.CurrentPassword, payload.NewPassword, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

/*
forgotPassword starts the reset flow. Always answers 204 so the endpoint
cannot be used to probe which emails exist.

POST /api/v1/auth/password/forgot
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var payload forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	err := v.
		Required(FieldEmail, payload.Email).
		Email(FieldEmail, payload.Email).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), payload.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

/*
resetPassword completes the reset flow.

POST /api/v1/auth/password/reset

Response:
  - 204: Password replaced, all sessions revoked
  - 401/409: Token kinds
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var payload resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var v validate.Validator
	err := v.
		Required(FieldToken, payload.Token).
		Required(FieldNewPassword, payload.NewPassword).
		MinLen(FieldNewPassword, payload.NewPassword, passwordMinLength).
		MaxLen(FieldNewPassword, payload.NewPassword, passwordMaxLength).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), payload.Token, payload.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Helpers

func deviceFrom(request *http.Request) session.Device {
	return session.Device{
		IPAddress: middleware.RealIP(request),
		UserAgent: request.UserAgent(),
	}
}

func (handler *Handler) writeSession(writer http.ResponseWriter, result *LoginResult) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    result.Session.Token,
		Path:     "/",
		Expires:  result.Session.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	respond.OK(writer, map[string]any{
		"account": result.Account,
		"token":   result.Session.Token,
	})
}

func (handler *Handler) clearSessionCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
