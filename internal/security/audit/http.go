// Copyright (c) 2026 Pressdeck. All rights reserved.

package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pressdeck/pressdeck/internal/platform/middleware"
	"github.com/pressdeck/pressdeck/internal/platform/respond"
	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/pkg/pagination"
)

// Handler exposes the read-only activity trail to administrators.
type Handler struct {
	auditService *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{auditService: service}
}

// Routes returns a [chi.Router] for the audit endpoints.
//
// # Endpoints
//   - GET / : Paginated activity listing (admin only).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(sec.RoleAdmin))
		r.Get("/", handler.list)
	})

	return router
}

/*
list returns a page of the security/activity trail.

GET /api/v1/audit?page=1&limit=20&category=auth

Response:
  - 200: Paginated []Entry
  - 401/403: Authentication or role failures
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)
	category := Category(request.URL.Query().Get("category"))

	entries, total, err := handler.auditService.List(request.Context(), category, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, pagination.NewMeta(params.Page, params.Limit, total))
}
