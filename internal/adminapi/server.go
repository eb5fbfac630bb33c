package adminapi

import (
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
)

// Server wraps the gRPC server for the admin API.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	handler    *Handler
}

// NewServer binds the admin API. An addr starting with "unix:" (or
// containing a path separator) listens on a unix socket, anything else
// is treated as a TCP address.
func NewServer(addr string, svc *Service) (*Server, error) {
	network := "tcp"
	target := addr
	if strings.HasPrefix(addr, "unix:") {
		network = "unix"
		target = strings.TrimPrefix(addr, "unix:")
	} else if strings.ContainsRune(addr, '/') {
		network = "unix"
	}

	lis, err := net.Listen(network, target)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	s := grpc.NewServer()
	h := NewHandler(svc)
	h.RegisterWithGRPC(s)

	return &Server{
		grpcServer: s,
		listener:   lis,
		handler:    h,
	}, nil
}

// Serve starts serving gRPC requests.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Handler returns the JSON-RPC handler for direct access.
func (s *Server) Handler() *Handler {
	return s.handler
}
