// Copyright (c) 2026 Pressdeck. All rights reserved.

package twofactor

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pressdeck/pressdeck/internal/platform/middleware"
	requestutil "github.com/pressdeck/pressdeck/internal/platform/request"
	"github.com/pressdeck/pressdeck/internal/platform/respond"
	"github.com/pressdeck/pressdeck/internal/platform/validate"
)

// Handler exposes two-factor management to the signed-in account. The login
// challenge itself lives on the auth endpoints; everything here assumes an
// authenticated session.
type Handler struct {
	twoFactorService *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{twoFactorService: service}
}

// Routes returns a [chi.Router] for the two-factor endpoints.
//
// # Endpoints
//   - POST /enroll        : Provision a secret and backup codes.
//   - POST /enroll/verify : Confirm enrollment with a live code.
//   - POST /backup-codes  : Regenerate backup codes.
//   - POST /disable       : Turn two-factor off (non-admins).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/enroll", handler.enroll)
		r.Post("/enroll/verify", handler.verifyEnrollment)
		r.Post("/backup-codes", handler.regenerateBackupCodes)
		r.Post("/disable", handler.disable)
	})

	return router
}

/*
enroll starts two-factor setup for the caller.

POST /api/v1/two-factor/enroll

Response:
  - 200: Enrollment (secret, otpauth URL, backup codes — shown once)
  - 409: Already enabled
*/
func (handler *Handler) enroll(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	enrollment, err := handler.twoFactorService.Enroll(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, enrollment)
}

type codeRequest struct {
	Code string `json:"code"`
}

func decodeCode(request *http.Request) (string, error) {
	var payload codeRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		return "", err
	}
	var v validate.Validator
	if err := v.Required("code", payload.Code).Err(); err != nil {
		return "", err
	}
	return payload.Code, nil
}

/*
verifyEnrollment confirms a pending enrollment with a live code.

POST /api/v1/two-factor/enroll/verify
Body: {"code": "123456"}

Response:
  - 204: Two-factor is now active
  - 401: Invalid code
*/
func (handler *Handler) verifyEnrollment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	code, err := decodeCode(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.twoFactorService.VerifyEnrollment(request.Context(), userID, code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
regenerateBackupCodes replaces the remaining backup codes with a fresh set.

POST /api/v1/two-factor/backup-codes
Body: {"code": "123456"}

Response:
  - 200: {"backup_codes": [...]} — shown once
  - 401: Invalid code
*/
func (handler *Handler) regenerateBackupCodes(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	code, err := decodeCode(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	codes, err := handler.twoFactorService.RegenerateBackupCodes(request.Context(), userID, code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string][]string{"backup_codes": codes})
}

/*
disable turns two-factor off for the caller.

POST /api/v1/two-factor/disable
Body: {"code": "123456"}

Response:
  - 204: Disabled
  - 403: Administrators cannot disable two-factor
*/
func (handler *Handler) disable(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	code, err := decodeCode(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.twoFactorService.Disable(request.Context(), userID, code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
