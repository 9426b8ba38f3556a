package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/logging"
)

// HeaderRequestID carries the per-request id in both directions.
const HeaderRequestID = "X-Request-ID"

// ContextRequestID is the gin context key holding the request id.
const ContextRequestID = "request_id"

const (
	corsAllowHeaders  = "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, " + HeaderRequestID
	corsAllowMethods  = "GET, POST, DELETE, OPTIONS"
	corsExposeHeaders = HeaderRequestID + ", Retry-After"
)

// Dashboards poll these once a second; a 200 on them is logged at debug.
var pollingRoutes = map[string]bool{
	"/health":                               true,
	"/api/v1/server/status":                 true,
	"/api/v1/server/console":                true,
	"/api/v1/server/metrics":                true,
	"/api/v1/server/console/autocomplete":   true,
	"/api/v1/server/activity/stats":         true,
	"/api/v1/server/console/history/search": true,
}

// CORS answers preflight requests and sets the allow headers for origins on
// the allowlist.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	wildcard := containsWildcard(cfg.AllowedOrigins)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		h := c.Writer.Header()

		switch {
		case origin != "" && IsOriginAllowed(origin, cfg.AllowedOrigins):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		case origin == "" && wildcard:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Logger tags every request with an id and writes one structured line per
// request once the handler chain has finished.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		}
		if raw := c.Request.URL.RawQuery; raw != "" {
			attrs = append(attrs, "query", raw)
		}
		if user := c.GetString(ContextUsername); user != "" {
			attrs = append(attrs, "user", user)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		logging.L().Log(c.Request.Context(), requestLevel(c.Request.Method, route, status), "http_request", attrs...)
	}
}

func requestLevel(method, route string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodGet && pollingRoutes[route]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// routeClass groups routes that share a rate budget.
type routeClass string

const (
	classExempt  routeClass = ""
	classRead    routeClass = "read"
	classControl routeClass = "control"
	classLogin   routeClass = "login"
)

// classifyRoute keys on the route template, so every backup id shares one
// budget. Status polling and the WebSocket upgrade are never limited.
func classifyRoute(method, route string) routeClass {
	switch {
	case route == "/health", route == "/api/v1/ws":
		return classExempt
	case method == http.MethodGet && route == "/api/v1/server/status":
		return classExempt
	case route == "/api/v1/auth/login":
		return classLogin
	case method == http.MethodGet, method == http.MethodHead:
		return classRead
	default:
		return classControl
	}
}

// RateLimit limits each client IP per route class: reads, control actions
// (start, stop, restart, commands, backups) and login attempts.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiter := newRateLimiter(cfg)

	return func(c *gin.Context) {
		if !limiter.enabled {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		class := classifyRoute(c.Request.Method, route)
		if class == classExempt {
			c.Next()
			return
		}

		ok, wait := limiter.allow(class, c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"class": string(class),
			})
			return
		}

		c.Next()
	}
}

// IsOriginAllowed reports whether origin matches the allowlist. Requests
// without an Origin header are allowed.
func IsOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}

	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "" {
			continue
		}
		if isWildcard(normalized) || normalized == origin {
			return true
		}
	}

	return false
}

func containsWildcard(allowedOrigins []string) bool {
	for _, allowedOrigin := range allowedOrigins {
		if isWildcard(strings.TrimSpace(allowedOrigin)) {
			return true
		}
	}
	return false
}

func isWildcard(origin string) bool {
	return origin == "*" || origin == "0.0.0.0/0"
}

// rateLimiter is a token bucket per class and client. A bucket holds up to
// one minute's budget and refills continuously.
type rateLimiter struct {
	enabled bool
	limits  map[routeClass]int
	now     func() time.Time

	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	limits := map[routeClass]int{
		classRead:    cfg.RequestsPerMinute,
		classControl: cfg.ControlPerMinute,
		classLogin:   cfg.LoginPerMinute,
	}
	for class, limit := range limits {
		if limit <= 0 {
			limits[class] = cfg.RequestsPerMinute
		}
	}

	return &rateLimiter{
		enabled:     cfg.Enabled && cfg.RequestsPerMinute > 0,
		limits:      limits,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
		lastCleanup: time.Now(),
	}
}

// allow takes a token for client in class. When the bucket is empty it
// returns how long until the next token.
func (rl *rateLimiter) allow(class routeClass, client string) (bool, time.Duration) {
	limit := rl.limits[class]
	if limit <= 0 {
		return true, 0
	}
	perSecond := float64(limit) / 60

	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) > time.Minute {
		rl.cleanup(now)
	}

	key := string(class) + "|" + client
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(limit), last: now}
		rl.buckets[key] = b
	}

	b.tokens = math.Min(float64(limit), b.tokens+now.Sub(b.last).Seconds()*perSecond)
	b.last = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
		return false, wait
	}
	b.tokens--
	return true, 0
}

// cleanup drops buckets idle for a full minute; they would be full again.
func (rl *rateLimiter) cleanup(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.last) >= time.Minute {
			delete(rl.buckets, key)
		}
	}
	rl.lastCleanup = now
}
