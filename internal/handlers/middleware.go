package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/quotelane/lead_pipeline/internal/logger"
)

// RecoveryMiddleware recovers from panics and returns 500 Internal Server Error
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new RecoveryMiddleware
func NewRecoveryMiddleware() *RecoveryMiddleware {
	return &RecoveryMiddleware{}
}

// Recover wraps a handler with panic recovery
func (m *RecoveryMiddleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				ctx := r.Context()
				correlationID, ok := ctx.Value(logger.CorrelationIDKey).(string)
				if !ok {
					correlationID = uuid.New().String()
					ctx = context.WithValue(ctx, logger.CorrelationIDKey, correlationID)
				}

				logger.Error(ctx, "Panic recovered in HTTP handler",
					"panic", rec,
					"path", r.URL.Path,
				)

				respondError(w, ctx, http.StatusInternalServerError, "internal server error", nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
