package grpcserver

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service reported next to the overall "" entry.
const ServiceName = "gatekeeper.AccessControl"

// Health is a gRPC server exposing grpc.health.v1.Health.
type Health struct {
	srv *grpc.Server
	hs  *health.Server
	log *zap.Logger
}

// NewHealth builds the server with recover and logging interceptors. It starts
// NOT_SERVING; call SetServing once the HTTP API is listening.
func NewHealth(log *zap.Logger, withReflection bool) *Health {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(
			RecoverStream(log),
			LoggingStream(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if withReflection {
		reflection.Register(s)
	}
	h := &Health{srv: s, hs: hs, log: log}
	h.SetServing(false)
	return h
}

// SetServing flips both the overall and the named service status.
func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Serve blocks serving lis until Stop.
func (h *Health) Serve(lis net.Listener) error {
	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop reports NOT_SERVING, then stops gracefully, forcing a hard stop when
// ctx ends first.
func (h *Health) Stop(ctx context.Context) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.log.Warn("grpc graceful stop timed out")
		h.srv.Stop()
		<-done
	}
}
