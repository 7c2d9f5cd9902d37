package middleware

import (
	"fmt"
	"net/http"

	"github.com/velmora/storefront-backend/api/responses"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/logger"
)

// RequireRole rejects requests whose authenticated role does not match.
// Must sit behind Auth so the role claim is already in context.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := RoleFromContext(r.Context())
			if actor == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if actor != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s role required", role)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
