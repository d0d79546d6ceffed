// Command thermod starts the thermostat HTTP API and the optional gRPC ops listener.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/thermolink/internal/broadcast"
	"github.com/and161185/thermolink/internal/challenge"
	"github.com/and161185/thermolink/internal/config"
	"github.com/and161185/thermolink/internal/crypto"
	"github.com/and161185/thermolink/internal/limiter"
	"github.com/and161185/thermolink/internal/migrate"
	"github.com/and161185/thermolink/internal/repository"
	"github.com/and161185/thermolink/internal/repository/postgres"
	"github.com/and161185/thermolink/internal/repository/sqlite"
	"github.com/and161185/thermolink/internal/schema"
	grpcserver "github.com/and161185/thermolink/internal/server/grpc"
	httpserver "github.com/and161185/thermolink/internal/server/http"
	"github.com/and161185/thermolink/internal/service"
	"github.com/and161185/thermolink/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// backend bundles what the chosen storage driver provides.
type backend struct {
	users   repository.UserRepository
	devices repository.DeviceRepository
	reports repository.ReportRepository
	lim     limiter.Limiter
	db      grpcserver.Pinger
	close   func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	limCfg := limiter.Config{Window: cfg.Limiter.Window, MaxFails: cfg.Limiter.MaxFails, BlockFor: cfg.Limiter.BlockFor}

	switch cfg.Database.Driver {
	case "sqlite":
		st, err := sqlite.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return &backend{
			users:   sqlite.NewUserRepo(st),
			devices: sqlite.NewDeviceRepo(st),
			reports: sqlite.NewReportRepo(st),
			lim:     limiter.NewMemory(limCfg),
			db:      st,
			close:   func() { _ = st.Close() },
		}, nil
	default:
		if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		return &backend{
			users:   postgres.NewUserRepo(db),
			devices: postgres.NewDeviceRepo(db),
			reports: postgres.NewReportRepo(db),
			lim:     limiter.NewPG(db.Pool, limCfg),
			db:      db,
			close:   db.Close,
		}, nil
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// main loads configuration, opens storage and serves until SIGINT/SIGTERM.
func main() {
	cfgPath := flag.String("config", os.Getenv("THERMO_CONFIG"), "YAML config file (env THERMO_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
		zap.String("driver", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer be.close()

	tokens, err := token.New([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTAlgorithm)
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}
	validator, err := schema.New()
	if err != nil {
		logger.Fatal("schemas", zap.Error(err))
	}
	hub := broadcast.NewHub(cfg.Stream.InboxCapacity)

	// Services
	authSvc := service.NewAuthService(be.users, be.devices,
		challenge.NewStore(challenge.WithTTL(cfg.Auth.ChallengeTTL)),
		crypto.NewVerifier(), tokens, cfg.Auth.TokenTTL, be.lim)
	reportSvc := service.NewReportService(be.reports, be.devices, hub, cfg.Stream.Lookback, logger)
	deviceSvc := service.NewDeviceService(be.devices)
	adminSvc := service.NewAdminService(be.users, be.devices, logger)

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := adminSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			logger.Fatal("bootstrap admin", zap.Error(err))
		}
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpserver.New(authSvc, reportSvc, deviceSvc, adminSvc, validator, logger, httpserver.Options{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateBurst:       cfg.Server.RateBurst,
		CORSOrigins:     cfg.Server.CORSOrigins,
		KeepAlive:       cfg.Stream.KeepAlive,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.Addr), zap.Bool("tls", cfg.Server.TLSEnabled()))
		var err error
		if cfg.Server.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var ops *grpcserver.Ops
	if cfg.Server.OpsAddr != "" {
		var extra []grpc.ServerOption
		if cfg.Server.TLSEnabled() {
			creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
			if err != nil {
				logger.Fatal("failed to load TLS cert/key", zap.Error(err))
			}
			extra = append(extra, grpc.Creds(creds))
		}
		ops = grpcserver.NewOps(be.db, 5*time.Second, logger, extra...)
		if cfg.Log.Development {
			ops.EnableReflection()
		}
		lis, err := net.Listen("tcp", cfg.Server.OpsAddr)
		if err != nil {
			logger.Fatal("listen ops", zap.Error(err))
		}
		go func() {
			logger.Info("ops listening", zap.String("addr", cfg.Server.OpsAddr))
			if err := ops.Serve(ctx, lis); err != nil {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	if ops != nil {
		ops.Shutdown()
	}
	// Ends every open report stream so Shutdown does not wait on them.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
		_ = srv.Close()
	}

	logger.Info("shutdown complete")
}
