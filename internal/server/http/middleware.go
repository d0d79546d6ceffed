package httpserver

import (
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/errs"
)

// Logging logs one line per request: metadata only, never tokens or bodies.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// Recovery turns panics into 500 responses and logs the stack.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal"})
			}
		}()
		c.Next()
	}
}

// ipLimiters keeps one token bucket per client IP; idle buckets expire.
type ipLimiters struct {
	mu    sync.Mutex
	byIP  *cache.Cache
	limit rate.Limit
	burst int
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.byIP.Get(ip); ok {
		l.byIP.SetDefault(ip, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.byIP.SetDefault(ip, lim)
	return lim
}

// RateLimiter rejects clients exceeding perSec requests per second.
func RateLimiter(perSec float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = 1
	}
	l := &ipLimiters{byIP: cache.New(10*time.Minute, 20*time.Minute), limit: rate.Limit(perSec), burst: burst}
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{Error: "rate_limited", Message: "too many requests"})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[7:])
	return tok, tok != ""
}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			s.abortWithError(c, errs.ErrInvalidToken)
			return
		}
		u, err := s.auth.AuthenticateUser(c.Request.Context(), raw)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), u))
		c.Next()
	}
}

func (s *Server) requireDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			s.abortWithError(c, errs.ErrInvalidToken)
			return
		}
		d, err := s.auth.AuthenticateDevice(c.Request.Context(), raw)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(WithDevice(c.Request.Context(), d))
		c.Next()
	}
}

// requireAdmin must run after requireUser.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := UserFromCtx(c.Request.Context())
		if !ok || !u.IsAdmin {
			s.abortWithError(c, errs.ErrForbidden)
			return
		}
		c.Next()
	}
}
