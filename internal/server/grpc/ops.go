// Package grpcserver runs the operational gRPC endpoint: the standard
// health service reflecting database reachability.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "thermolink.Thermostat"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ops serves grpc.health.v1 and keeps it in sync with the database.
type Ops struct {
	srv      *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	serving bool
	stopped bool
}

// NewOps builds the ops server. interval <= 0 defaults to 5s. extra options
// (credentials, keepalive) are appended to the interceptor chain.
func NewOps(db Pinger, interval time.Duration, log *zap.Logger, extra ...grpc.ServerOption) *Ops {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	opts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	}, extra...)
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs)

	return &Ops{srv: srv, health: hs, db: db, interval: interval, log: log}
}

// EnableReflection registers server reflection (dev only). Call before Serve.
func (o *Ops) EnableReflection() { reflection.Register(o.srv) }

// Probe pings the database once and updates the health status.
func (o *Ops) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, o.interval)
	defer cancel()
	err := o.db.Ping(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	ok := err == nil
	if ok != o.serving {
		if ok {
			o.log.Info("database reachable")
		} else {
			o.log.Warn("database unreachable", zap.Error(err))
		}
	}
	o.serving = ok
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	o.health.SetServingStatus("", st)
	o.health.SetServingStatus(ServiceName, st)
}

// Serve probes immediately, then every interval, and serves lis until
// ctx is done or Shutdown is called.
func (o *Ops) Serve(ctx context.Context, lis net.Listener) error {
	o.Probe(ctx)

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(o.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				o.Shutdown()
				return
			case <-done:
				return
			case <-t.C:
				o.Probe(ctx)
			}
		}
	}()

	if err := o.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown flips every status to NOT_SERVING and stops gracefully.
func (o *Ops) Shutdown() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	o.health.Shutdown()
	o.srv.GracefulStop()
}
