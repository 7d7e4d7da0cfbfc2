package api

import (
	"context"
	"errors"
	"math"
	"strings"

	"retreat/internal/database"
	"retreat/internal/models"
	"retreat/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	availabilityServiceName = "retreat.availability.v1.AvailabilityService"
	checkAvailabilityMethod = "/" + availabilityServiceName + "/CheckAvailability"
	listResourcesMethod     = "/" + availabilityServiceName + "/ListResources"
)

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, resourceID int64, date, start, end string) (*service.Availability, error)
}

type resourceLister interface {
	ListResources(ctx context.Context, kind string, onlyAvailable bool) ([]models.Resource, error)
}

// AvailabilityServer is the gRPC surface. Messages are google.protobuf.Struct,
// so clients need no generated stubs.
type AvailabilityServer interface {
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListResources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type AvailabilityService struct {
	reservations availabilityChecker
	resources    resourceLister
}

func NewAvailabilityService(reservations availabilityChecker, resources resourceLister) *AvailabilityService {
	return &AvailabilityService{reservations: reservations, resources: resources}
}

func (s *AvailabilityService) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	resourceID, ok := intField(fields, "resource_id")
	if !ok || resourceID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "resource_id is required")
	}
	date := strings.TrimSpace(fields["date"].GetStringValue())
	if date == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}

	av, err := s.reservations.CheckAvailability(ctx, resourceID, date,
		fields["start_time"].GetStringValue(), fields["end_time"].GetStringValue())
	if err != nil {
		return nil, grpcError(err)
	}

	conflicts := make([]interface{}, 0, len(av.Conflicts))
	for _, c := range av.Conflicts {
		conflicts = append(conflicts, map[string]interface{}{
			"id":         c.ID,
			"start_time": c.StartTime.String(),
			"end_time":   c.EndTime.String(),
			"status":     c.Status,
			"booked_by":  c.BookedBy,
		})
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"resource_id": av.ResourceID,
		"date":        av.Date,
		"start_time":  av.StartTime.String(),
		"end_time":    av.EndTime.String(),
		"available":   av.Available,
		"cost":        av.Cost,
		"conflicts":   conflicts,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func (s *AvailabilityService) ListResources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	kind := strings.TrimSpace(fields["kind"].GetStringValue())
	onlyAvailable := fields["only_available"].GetBoolValue()

	list, err := s.resources.ListResources(ctx, kind, onlyAvailable)
	if err != nil {
		return nil, grpcError(err)
	}

	items := make([]interface{}, 0, len(list))
	for i := range list {
		r := &list[i]
		items = append(items, map[string]interface{}{
			"id":           r.ID,
			"kind":         r.Kind,
			"name":         r.Name,
			"category":     r.Category,
			"capacity":     r.Capacity,
			"hourly_rate":  r.HourlyRate,
			"is_available": r.IsAvailable,
		})
	}

	out, err := structpb.NewStruct(map[string]interface{}{"resources": items})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// intField reads a whole number; JSON-ish clients send numbers as doubles.
func intField(fields map[string]*structpb.Value, name string) (int64, bool) {
	v, ok := fields[name]
	if !ok {
		return 0, false
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, false
	}
	return int64(n.NumberValue), true
}

func grpcError(err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, database.ErrNotFound):
		return status.Error(codes.NotFound, "resource not found")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkAvailabilityMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).CheckAvailability(ctx, req.(*structpb.Struct))
	})
}

func listResourcesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).ListResources(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listResourcesMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).ListResources(ctx, req.(*structpb.Struct))
	})
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
		{MethodName: "ListResources", Handler: listResourcesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "retreat/availability/v1/availability.proto",
}

// RegisterAvailabilityServer attaches srv to s.
func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}
