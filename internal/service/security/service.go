// Package security exposes the access audit trail to operators over gRPC.
//
// Messages are google.protobuf.Struct, so the service needs no generated
// code. Clients call:
//
//	/soulmate.security.v1.SecurityService/GetReport
//	/soulmate.security.v1.SecurityService/ListEvents  {"limit": 50, "severity": "high", "user_id": "..."}
package security

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/service/access"
)

const ServiceName = "soulmate.security.v1.SecurityService"

// Server is the gRPC-facing contract.
type Server interface {
	GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Service implements Server on top of the access monitor.
type Service struct {
	monitor *access.Monitor
}

func NewService(monitor *access.Monitor) *Service {
	return &Service{monitor: monitor}
}

// GetReport returns the in-memory summary. The request is ignored.
func (s *Service) GetReport(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(s.monitor.Report())
}

// ListEvents queries the durable trail.
//
// Behavior:
//   - limit defaults to 100 and is capped at 1000.
//   - severity, when set, must be low, medium, high or critical.
//   - user_id filters by actor.
func (s *Service) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	limit := int(fields["limit"].GetNumberValue())
	if limit <= 0 {
		limit = 100
	}
	if limit > access.DefaultCapacity {
		limit = access.DefaultCapacity
	}
	severity := fields["severity"].GetStringValue()
	switch access.Severity(severity) {
	case "", access.SeverityLow, access.SeverityMedium, access.SeverityHigh, access.SeverityCritical:
	default:
		return nil, svcErr.InvalidArgument("severity must be low, medium, high or critical")
	}

	events, err := s.monitor.Stored(ctx, limit, severity, fields["user_id"].GetStringValue())
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if events == nil {
		events = []access.Event{}
	}
	return toStruct(map[string]any{"events": events})
}

// toStruct goes through JSON so struct tags decide the field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, svcErr.Map(err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return out, nil
}

func unaryHandler(call func(Server, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(Server), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc is registered by hand in place of generated stubs.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReport", Handler: unaryHandler(Server.GetReport, "GetReport")},
		{MethodName: "ListEvents", Handler: unaryHandler(Server.ListEvents, "ListEvents")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "soulmate/security/v1/security.proto",
}
