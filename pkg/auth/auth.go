// Package auth verifies the acting user on HTTP requests and applies
// per-client request rate limits at the transport edge.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"msgcore/pkg/config"
	"msgcore/pkg/logger"
)

type ctxActorKey struct{}

// ActorID returns the verified actor id from the request context, or an
// empty string.
func ActorID(ctx context.Context) string {
	if v := ctx.Value(ctxActorKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithActor injects an actor id, used by tests to skip the middleware.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxActorKey{}, userID)
}

// Middleware authenticates requests via X-User-ID plus an HMAC-SHA256
// X-User-Signature over the user id, checked against any configured
// signing key. With no keys configured the header is trusted as-is, for
// deployments behind an authenticating gateway. Probe endpoints bypass
// authentication.
func Middleware(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{rps: cfg.RateLimit.RPS, burst: cfg.RateLimit.Burst}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePath(r.URL.Path) && r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
			if userID == "" {
				logger.Warn("missing_user_header", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"missing user headers"}`, http.StatusUnauthorized)
				return
			}

			if len(cfg.SigningKeys) > 0 {
				sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))
				if sig == "" {
					logger.Warn("missing_signature_header", "path", r.URL.Path, "remote", r.RemoteAddr)
					http.Error(w, `{"error":"missing signature headers"}`, http.StatusUnauthorized)
					return
				}
				if !verify(userID, sig, cfg.SigningKeys) {
					logger.Warn("invalid_signature", "user", userID)
					http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
					return
				}
			}

			if !limiters.Allow(userID) {
				logger.Warn("request_rate_limited", "user", userID, "path", r.URL.Path)
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			if max := cfg.MaxRequestBody.Int64(); max > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}

			logger.Debug("request_allowed", "method", r.Method, "path", r.URL.Path, "user", userID)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), userID)))
		})
	}
}

func verify(userID, sig string, keys []string) bool {
	for _, k := range keys {
		mac := hmac.New(sha256.New, []byte(k))
		mac.Write([]byte(userID))
		expected := hex.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

func probePath(p string) bool {
	return p == "/healthz" || p == "/readyz" || p == "/metrics"
}

// ClientIP extracts the peer address without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
