package router

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/ratelimit"
)

// middlewareRateLimit throttles per authenticated subject, falling back to
// the client IP for anonymous requests. Store failures fail open: dropping
// traffic because the limiter store is down would be worse than a burst.
func middlewareRateLimit(limiter ratelimit.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			subject := r.RemoteAddr
			if clm := jwt.GetAuth(r.Context()); clm != nil {
				subject = fmt.Sprintf("user:%d", clm.UserID)
			}

			retryAfter, err := limiter.Allow(r.Context(), subject)
			if err != nil {
				if errors.Is(err, ratelimit.ErrLimited) {
					secs := int(math.Ceil(retryAfter.Seconds()))
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
					writeJSON(w, map[string]string{"message": "Too many requests"}, http.StatusTooManyRequests)
					return
				}

				slog.WarnContext(r.Context(), "rate limiter store failed", "error", err)
			}

			next.ServeHTTP(w, r)
		})
	}
}
