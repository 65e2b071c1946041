package statusd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "paramsearch.v1.SearchStatus"

	getStatusMethod = "/" + ServiceName + "/GetStatus"
)

// SearchStatusServer is the server API of paramsearch.v1.SearchStatus
type SearchStatusServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var searchStatusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SearchStatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    getStatusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "paramsearch/v1/status.proto",
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SearchStatusServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getStatusMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SearchStatusServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// GetStatus calls SearchStatus/GetStatus on the given connection
func GetStatus(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCServer exposes the search snapshot and the standard health service
type GRPCServer struct {
	source Source
	health *health.Server
}

// NewGRPCServer creates a GRPCServer for the given search
func NewGRPCServer(source Source) *GRPCServer {
	return &GRPCServer{
		source: source,
		health: health.NewServer(),
	}
}

// Register adds the status and health services to gs and marks them serving
func (s *GRPCServer) Register(gs *grpc.Server) {
	gs.RegisterService(&searchStatusServiceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Watch blocks until the search starts shutting down (or ctx ends) and then
// flips the health status to NOT_SERVING
func (s *GRPCServer) Watch(ctx context.Context) {
	select {
	case <-s.source.Done():
	case <-ctx.Done():
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	logger.Debug("health status set to not serving")
}

func (s *GRPCServer) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.source.Snapshot())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStruct converts a JSON-encodable value into a protobuf Struct
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return structpb.NewStruct(m)
}
