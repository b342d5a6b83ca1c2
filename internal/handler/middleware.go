package handler

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	apiKeyHeader    = "X-API-Key"
)

// RequestID tags every request with an id, reusing the caller's when present
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger writes one structured line per request
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", ClientIP(c.Request)),
			zap.Duration("took", time.Since(start)),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// APIKeyAuth rejects requests without the configured X-API-Key. An empty key
// disables the check, and so does debug mode.
func APIKeyAuth(apiKey string, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || debug {
			c.Next()
			return
		}
		got := c.GetHeader(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}

// RateLimiter allows each client a fixed number of requests per window
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter of requests per window for each client IP
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		idle:    window,
		now:     time.Now,
	}
}

// Allow reports whether the client may make another request now
func (l *RateLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cl, ok := l.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Prune drops clients not seen for a full window
func (l *RateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for ip, cl := range l.clients {
		if now.Sub(cl.lastSeen) > l.idle {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// Middleware answers 429 once a client exceeds its allowance
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(ClientIP(c.Request)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests from this IP, please try again later.",
			})
			return
		}
		c.Next()
	}
}

// ClientIP returns the first X-Forwarded-For address, falling back to the peer address
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
