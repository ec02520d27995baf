package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer exposes grpc.health.v1 with a status that mirrors readiness
type GRPCServer struct {
	checker  *Server
	health   *grpchealth.Server
	server   *grpc.Server
	port     int
	interval time.Duration
}

// NewGRPCServer creates a gRPC health server backed by checker
func NewGRPCServer(checker *Server, port int) *GRPCServer {
	h := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	reflection.Register(srv)

	g := &GRPCServer{
		checker:  checker,
		health:   h,
		server:   srv,
		port:     port,
		interval: 5 * time.Second,
	}
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	g.health.SetServingStatus(checker.serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

// Refresh copies the current readiness into the serving status
func (g *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok, _ := g.checker.Check(ctx); ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(g.checker.serviceName, status)
	return status
}

// Start listens on the configured port and refreshes the status until ctx ends
func (g *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc health port: %w", err)
	}
	return g.Serve(ctx, lis)
}

// Serve runs on lis in the background
func (g *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		g.checker.logger.WithField("addr", lis.Addr().String()).Info("gRPC health server starting")
		if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			g.checker.logger.WithError(err).Error("gRPC health server error")
		}
	}()

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		g.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				g.Stop()
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()
	return nil
}

// Stop marks every service not serving and stops the server
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

// Probe asks a grpc.health.v1 endpoint for the status of service
func Probe(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}
