package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelpress/internal/ratelimit"
)

type RateLimiter interface {
	AllowN(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

type costFunc func(r *http.Request) int

func unitCost(*http.Request) int { return 1 }

// batchCost charges one token per record a compress run would transform.
func (s *Server) batchCost(*http.Request) int {
	return max(1, s.records.Len())
}

// limit guards a mutating route. Limiter errors fail open.
func (s *Server) limit(cost costFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.rateLimiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader))
			if caller == "" {
				caller = "anonymous"
			}
			route := routeLabel(r)
			subject := caller + ":" + route

			decision, err := s.rateLimiter.AllowN(r.Context(), subject, cost(r))
			if err != nil {
				s.logger.Warn().Err(err).Str("subject", subject).Msg("rate limiter check failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
		})
	}
}
