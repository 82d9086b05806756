package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// TokenRateLimitPolicy bounds how often one client may hit token-addressed
// routes. The balance link token is a bearer secret, so guessing has to be
// throttled both per source address and per token.
type TokenRateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int
}

func NewTokenRateLimitPolicy(name string, window time.Duration, limit int) TokenRateLimitPolicy {
	return TokenRateLimitPolicy{
		name:   strings.ToLower(strings.TrimSpace(name)),
		window: window,
		limit:  limit,
	}
}

func (p TokenRateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

func (p TokenRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "token"
	}
	return p.name
}

// TokenRateLimit applies fixed-window counters keyed by client IP and by
// the hashed ?token= value.
func TokenRateLimit(policy TokenRateLimitPolicy, limiter pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scopes := []struct{ kind, value string }{{"ip", clientIP(r)}}
			if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
				scopes = append(scopes, struct{ kind, value string }{"token", hashValue(token)})
			}

			for _, s := range scopes {
				if s.value == "" {
					continue
				}
				scope := policy.normalizedName() + ":" + s.kind + ":" + s.value
				allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(policy.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					respondRateLimited(ctx, logg, w, policy, s.kind, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy TokenRateLimitPolicy, scope string, count int64) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          policy.limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "token.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
