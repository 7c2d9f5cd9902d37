package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/api/middleware"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
)

// actorID extracts the authenticated user id seeded by the auth middleware.
func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return id, nil
}

func actorRole(r *http.Request) enums.UserRole {
	return enums.UserRole(middleware.RoleFromContext(r.Context()))
}

func isAdmin(r *http.Request) bool {
	return actorRole(r) == enums.UserRoleAdmin
}

// pathUUID parses a uuid route parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
