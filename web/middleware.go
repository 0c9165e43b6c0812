package web

import (
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"litman/web/api"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// Paths reachable without credentials.
var publicPaths = []string{
	"/api/v1/health",
	"/api/v1/auth/token",
	"/favicon.ico",
	"/static/",
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

// AuthMiddleware guards every non-public route when the node has an
// account configured. It accepts HTTP basic credentials or a bearer token
// issued by /api/v1/auth/token, and records the username in the context.
func AuthMiddleware(deps api.Deps) rweb.Handler {
	return func(c rweb.Context) error {
		if !deps.Account.Enabled() || isPublic(c.Request().Path()) {
			return c.Next()
		}

		username, ok := authenticate(deps, c.Request().Header("Authorization"))
		if !ok {
			c.Response().SetHeader("WWW-Authenticate", `Basic realm="litman"`)
			c.SetStatus(http.StatusUnauthorized)
			return c.WriteJSON(api.APIResponse{Success: false, Error: "authentication required"})
		}

		c.Set("username", username)
		return c.Next()
	}
}

func authenticate(deps api.Deps, header string) (string, bool) {
	switch {
	case strings.HasPrefix(header, "Bearer "):
		if deps.Tokens == nil {
			return "", false
		}
		claims, err := deps.Tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			// Invalid tokens are routine; not logged
			return "", false
		}
		return claims.Username, true

	case strings.HasPrefix(header, "Basic "):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			return "", false
		}
		user, pass, found := strings.Cut(string(raw), ":")
		if !found || !deps.Account.Authenticate(user, pass) {
			return "", false
		}
		return user, true
	}
	return "", false
}

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware(c rweb.Context) error {
	c.Response().SetHeader("X-Content-Type-Options", "nosniff")
	c.Response().SetHeader("X-Frame-Options", "DENY")
	c.Response().SetHeader("Referrer-Policy", "strict-origin-when-cross-origin")

	csp := []string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-inline'", // confirm() on the bootstrap button
		"style-src 'self'",
		"img-src 'self' data:",
	}
	c.Response().SetHeader("Content-Security-Policy", strings.Join(csp, "; "))

	return c.Next()
}

// RateLimitMiddleware limits requests to paths under prefix to
// requestsPerMinute per client address. Other paths pass through.
func RateLimitMiddleware(prefix string, requestsPerMinute int) rweb.Handler {
	type visitor struct {
		lastSeen time.Time
		count    int
	}

	var mu sync.Mutex
	visitors := make(map[string]*visitor)

	return func(c rweb.Context) error {
		if !strings.HasPrefix(c.Request().Path(), prefix) {
			return c.Next()
		}

		ip := c.Request().Header("X-Forwarded-For")
		if ip == "" {
			ip = c.Request().Header("X-Real-IP")
		}
		if ip == "" {
			ip = "unknown"
		}

		now := time.Now()
		mu.Lock()
		for addr, v := range visitors {
			if now.Sub(v.lastSeen) > time.Minute {
				delete(visitors, addr)
			}
		}

		limited := false
		v, exists := visitors[ip]
		switch {
		case !exists:
			visitors[ip] = &visitor{lastSeen: now, count: 1}
		case now.Sub(v.lastSeen) < time.Minute:
			v.count++
			limited = v.count > requestsPerMinute
		default:
			v.lastSeen = now
			v.count = 1
		}
		mu.Unlock()

		if limited {
			logger.Info("Rate limit exceeded", "ip", ip, "path", c.Request().Path())
			c.SetStatus(http.StatusTooManyRequests)
			return c.WriteJSON(api.APIResponse{Success: false, Error: "too many requests"})
		}
		return c.Next()
	}
}

// LoggingMiddleware provides detailed request logging
func LoggingMiddleware(c rweb.Context) error {
	start := time.Now()

	logger.Debug("Request started",
		"method", c.Request().Method(),
		"path", c.Request().Path(),
		"ip", c.Request().Header("X-Forwarded-For"),
	)

	err := c.Next()

	logger.Debug("Request completed",
		"method", c.Request().Method(),
		"path", c.Request().Path(),
		"duration", time.Since(start),
		"error", err,
	)

	return err
}
