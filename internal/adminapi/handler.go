// handler.go implements a JSON-RPC-style handler over gRPC unary calls,
// avoiding protoc code generation for an API with a handful of methods.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RPCRequest is a generic JSON-RPC-style request.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is a generic JSON-RPC-style response.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handler dispatches JSON-RPC requests to the Service.
type Handler struct {
	service  *Service
	dispatch map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// NewHandler creates a handler backed by the given service.
func NewHandler(svc *Service) *Handler {
	h := &Handler{service: svc}
	h.dispatch = map[string]handlerFunc{
		"session.list":  h.handleListSessions,
		"server.stats":  h.handleServerStats,
		"cache.stats":   h.handleCacheStats,
		"cache.refresh": h.handleRefreshCache,
		"audit.verify":  h.handleVerifyAudit,
	}
	return h
}

// Handle processes a JSON-RPC request and returns a response.
func (h *Handler) Handle(ctx context.Context, req *RPCRequest) *RPCResponse {
	fn, ok := h.dispatch[req.Method]
	if !ok {
		return &RPCResponse{Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	result, err := fn(ctx, req.Params)
	if err != nil {
		return &RPCResponse{Error: err.Error()}
	}

	resultJSON, _ := json.Marshal(result)
	return &RPCResponse{Result: resultJSON}
}

// RegisterWithGRPC registers the handler as a generic gRPC service.
// Clients send RPCRequest JSON and receive RPCResponse JSON.
func (h *Handler) RegisterWithGRPC(s *grpc.Server) {
	sd := grpc.ServiceDesc{
		ServiceName: "qthlink.v1.AdminService",
		HandlerType: (*adminServiceHandler)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Call",
				Handler:    h.grpcCallHandler,
			},
		},
		Streams: []grpc.StreamDesc{},
	}
	s.RegisterService(&sd, h)
}

// adminServiceHandler is the interface type for gRPC service registration.
type adminServiceHandler interface{}

func (h *Handler) grpcCallHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req RPCRequest
	if err := dec(&req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	resp := h.Handle(ctx, &req)
	return resp, nil
}

func (h *Handler) handleListSessions(_ context.Context, _ json.RawMessage) (any, error) {
	return h.service.ListSessions(), nil
}

func (h *Handler) handleServerStats(_ context.Context, _ json.RawMessage) (any, error) {
	return h.service.ServerStats(), nil
}

func (h *Handler) handleCacheStats(_ context.Context, _ json.RawMessage) (any, error) {
	return h.service.CacheStats(), nil
}

func (h *Handler) handleRefreshCache(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.service.RefreshCache(ctx)
}

func (h *Handler) handleVerifyAudit(_ context.Context, _ json.RawMessage) (any, error) {
	valid, count, err := h.service.VerifyAuditChain()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"valid": valid,
		"count": count,
	}, nil
}
