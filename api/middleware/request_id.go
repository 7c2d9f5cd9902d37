package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID honors a caller-supplied X-Request-Id when it is a valid UUID
// and mints one otherwise. The id is echoed on the response and attached
// to the request-scoped logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
