// Package httpserver exposes the thermostat HTTP API.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/and161185/thermolink/internal/schema"
	"github.com/and161185/thermolink/internal/service"
)

// Options tunes transport behaviour.
type Options struct {
	RateLimitPerSec float64 // per client IP; <= 0 disables
	RateBurst       int
	CORSOrigins     []string      // empty allows none
	KeepAlive       time.Duration // SSE comment interval
}

// Server wires services into gin handlers.
type Server struct {
	auth      service.AuthService
	reports   service.ReportService
	devices   service.DeviceService
	admin     service.AdminService
	validator *schema.Validator
	log       *zap.Logger
	opts      Options
	now       func() time.Time
}

// New constructs a Server with injected services.
func New(
	auth service.AuthService,
	reports service.ReportService,
	devices service.DeviceService,
	admin service.AdminService,
	validator *schema.Validator,
	log *zap.Logger,
	opts Options,
) *Server {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	return &Server{
		auth:      auth,
		reports:   reports,
		devices:   devices,
		admin:     admin,
		validator: validator,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// Handler returns the full HTTP handler including CORS.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.opts.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	return cors(s.Router())
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Logging(s.log), Recovery(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/api/v1")
	if s.opts.RateLimitPerSec > 0 {
		v1.Use(RateLimiter(s.opts.RateLimitPerSec, s.opts.RateBurst))
	}

	auth := v1.Group("/auth")
	{
		auth.POST("/user/login", s.userLogin)
		auth.GET("/device/challenge/:device_id", s.deviceChallenge)
		auth.POST("/device/login", s.deviceLogin)
	}

	device := v1.Group("/device", s.requireDevice())
	{
		device.GET("/schedule", s.deviceSchedule)
		device.POST("/report", s.deviceReport)
	}

	user := v1.Group("/user", s.requireUser())
	{
		user.GET("/device", s.listDevices)
		user.GET("/device/:device_id", s.getDevice)
		user.GET("/device/:device_id/reports", s.listReports)
		user.GET("/device/:device_id/reports/stream", s.streamReports)
		user.GET("/device/:device_id/schedule", s.getSchedule)
		user.POST("/device/:device_id/schedule", s.setSchedule)
	}

	admin := v1.Group("/admin", s.requireUser(), s.requireAdmin())
	{
		admin.POST("/user", s.adminCreateUser)
		admin.GET("/user", s.adminListUsers)
		admin.GET("/user/:user_id", s.adminGetUser)
		admin.DELETE("/user/:user_id", s.adminDeleteUser)
		admin.POST("/device", s.adminCreateDevice)
		admin.GET("/device", s.adminListDevices)
		admin.GET("/device/:device_id", s.adminGetDevice)
		admin.DELETE("/device/:device_id", s.adminDeleteDevice)
		admin.PUT("/device/:device_id/owner", s.adminSetOwner)
	}

	return r
}
