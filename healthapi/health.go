// Package healthapi runs a gRPC health service reporting whether this
// radiod instance is up: cmd/radiod marks it SERVING as soon as the
// engine has started and the health listener is running, and
// NOT_SERVING once shutdown has begun. Front-end block delivery is not
// observed.
//
// Uses grpc-go's own pre-generated grpc.health.v1.Health service and
// health.Server implementation rather than a hand-written proto —
// the corpus's domain-stack table calls for the library's built-in
// health service specifically, not a custom gRPC API.
package healthapi

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps grpc-go's health.Server with the serving-state
// transitions radiod needs: one overall service name plus per-channel
// service names are not needed here, only the instance-wide state.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// New builds the health gRPC server, initially NOT_SERVING.
func New() *Server {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h)

	return &Server{grpcServer: gs, health: h}
}

// SetServing marks the instance SERVING; cmd/radiod calls it right after
// starting the health listener.
func (s *Server) SetServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// SetNotServing marks the instance NOT_SERVING; cmd/radiod calls it when
// shutdown begins.
func (s *Server) SetNotServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
}

// Serve blocks accepting health-check connections on lis until the
// listener is closed or the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully shuts the gRPC server down.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
