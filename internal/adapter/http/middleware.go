package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

type actorContextKey struct{}

func LoggingMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())

			logger.Debug("http_request", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestID, map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			next.ServeHTTP(w, r)

			duration := time.Since(start)
			logger.Debug("http_response", "Request completed", requestID, map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
			})
		})
	}
}

func RecoveryMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())
					logger.Error("panic_recovered", "Panic recovered", requestID, nil, fmt.Errorf("%v", err))
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ActorMiddleware reads the identity headers set by the auth gateway. The
// gateway has already verified the session; these headers are trusted input,
// not credentials.
func ActorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := interfaces.Actor{
				ID:       r.Header.Get("X-Actor-Id"),
				Role:     domain.Role(r.Header.Get("X-Actor-Role")),
				BranchID: r.Header.Get("X-Branch-Id"),
			}

			if actor.ID == "" || actor.BranchID == "" || !domain.ValidRole(actor.Role) {
				respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing or invalid identity headers"})
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(r *http.Request) interfaces.Actor {
	actor, _ := r.Context().Value(actorContextKey{}).(interfaces.Actor)
	return actor
}
