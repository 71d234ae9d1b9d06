package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"cityos/internal/domain"
	"cityos/internal/infra/auth/header"
	"cityos/internal/infra/ratelimit"
	"cityos/internal/infra/signedctx"
	"cityos/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"

	requestIDKey       = "request_id"
	authClaimsKey      = "auth_claims"
	resolvedContextKey = "resolved_context"
)

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// identity populates auth claims. A missing bearer token is anonymous; an
// invalid one is rejected.
func (s *Server) identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := domain.AuthClaims{Roles: []string{}}
		switch s.cfg.AuthMode {
		case "header":
			claims = header.Claims(c.Request.Header)
		case "oidc":
			if s.authInitErr != nil || s.authenticator == nil {
				writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
				c.Abort()
				return
			}
			raw := c.GetHeader("Authorization")
			if strings.TrimSpace(raw) != "" {
				token := extractBearerToken(raw)
				if token == "" {
					writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
					c.Abort()
					return
				}
				authenticated, err := s.authenticator.Authenticate(c.Request.Context(), token)
				if err != nil {
					writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
					c.Abort()
					return
				}
				claims = authenticated
			}
		}
		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

func (s *Server) resolveContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := c.Get(authClaimsKey)
		auth, _ := claims.(domain.AuthClaims)
		rc := s.access.Resolve(c.Request.Context(), signalsFromRequest(c.Request), auth)
		c.Set(resolvedContextKey, rc)
		c.Next()
	}
}

func (s *Server) enforceRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimiter == nil || !s.rateLimit.Enabled() {
			c.Next()
			return
		}
		route := c.FullPath()
		key := ratelimit.KeyFor(getResolvedContext(c), c.ClientIP())
		decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimit.Requests, s.rateLimit.Window)
		if err != nil {
			s.logger.WithField("error", err.Error()).Warn("rate limiter unavailable")
			if s.rateLimit.FailClosed {
				writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
				c.Abort()
				return
			}
			c.Next()
			return
		}
		writeRateLimitHeaders(c, decision)
		if !decision.Allowed {
			s.metrics.RecordRateLimited(route)
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}

func signalsFromRequest(r *http.Request) usecase.Signals {
	cookies := map[string]string{}
	for _, name := range []string{usecase.CookieSelectedTenant, usecase.CookieSelectedStore} {
		if ck, err := r.Cookie(name); err == nil {
			cookies[name] = ck.Value
		}
	}
	return usecase.Signals{
		Headers: signedctx.FromHTTP(r.Header),
		Host:    r.Host,
		Cookies: cookies,
	}
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getResolvedContext(c *gin.Context) domain.ResolvedContext {
	raw, ok := c.Get(resolvedContextKey)
	if !ok {
		return domain.UnresolvedContext(domain.AuthClaims{})
	}
	rc, ok := raw.(domain.ResolvedContext)
	if !ok {
		return domain.UnresolvedContext(domain.AuthClaims{})
	}
	return rc
}
