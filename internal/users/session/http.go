// Copyright (c) 2026 Pressdeck. All rights reserved.

package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pressdeck/pressdeck/internal/platform/middleware"
	requestutil "github.com/pressdeck/pressdeck/internal/platform/request"
	"github.com/pressdeck/pressdeck/internal/platform/respond"
	"github.com/pressdeck/pressdeck/internal/platform/validate"
)

// Handler exposes session management to the signed-in account.
type Handler struct {
	sessionService *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{sessionService: service}
}

// Routes returns a [chi.Router] for the session endpoints.
//
// # Endpoints
//   - GET    /            : List the caller's live sessions.
//   - DELETE /{sessionID} : Revoke one of the caller's sessions.
//   - DELETE /            : Revoke every session except the current one.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", handler.list)
		r.Delete("/", handler.revokeOthers)
		r.Delete("/{sessionID}", handler.revoke)
	})

	return router
}

/*
list returns the caller's live sessions, newest first. The session backing
this request carries current=true.

GET /api/v1/sessions

Response:
  - 200: []Session
  - 401: Not authenticated
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.sessionService.List(request.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
revoke invalidates one of the caller's sessions.

DELETE /api/v1/sessions/{sessionID}

Response:
  - 204: Revoked (idempotent)
  - 404: Unknown session, or a session owned by another account
*/
func (handler *Handler) revoke(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := requestutil.Param(request, "sessionID")
	var v validate.Validator
	if err := v.UUID("session_id", sessionID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.sessionService.Revoke(request.Context(), claims.UserID, sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
revokeOthers signs the account out everywhere except the current session.

DELETE /api/v1/sessions

Response:
  - 200: {"revoked": n}
*/
func (handler *Handler) revokeOthers(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	revoked, err := handler.sessionService.RevokeAll(request.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int64{"revoked": revoked})
}
