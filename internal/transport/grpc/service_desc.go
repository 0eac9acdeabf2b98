package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "appointly.scheduling.v1.SchedulingService"

// SchedulingServiceServer is the server API. Every request and response is a
// google.protobuf.Struct whose fields follow the JSON shapes in messages.go.
type SchedulingServiceServer interface {
	GetAvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompareAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateRecurringAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelRecurrenceGroup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RescheduleAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkNoShow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveWorkingHoursTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitScheduleException(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReviewScheduleException(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveBreakRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SchedulingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetAvailableSlots", SchedulingServiceServer.GetAvailableSlots),
		unary("CompareAvailability", SchedulingServiceServer.CompareAvailability),
		unary("CreateAppointment", SchedulingServiceServer.CreateAppointment),
		unary("CreateRecurringAppointments", SchedulingServiceServer.CreateRecurringAppointments),
		unary("GetAppointment", SchedulingServiceServer.GetAppointment),
		unary("ConfirmAppointment", SchedulingServiceServer.ConfirmAppointment),
		unary("CancelAppointment", SchedulingServiceServer.CancelAppointment),
		unary("CancelRecurrenceGroup", SchedulingServiceServer.CancelRecurrenceGroup),
		unary("RescheduleAppointment", SchedulingServiceServer.RescheduleAppointment),
		unary("CompleteAppointment", SchedulingServiceServer.CompleteAppointment),
		unary("MarkNoShow", SchedulingServiceServer.MarkNoShow),
		unary("SaveWorkingHoursTemplate", SchedulingServiceServer.SaveWorkingHoursTemplate),
		unary("SubmitScheduleException", SchedulingServiceServer.SubmitScheduleException),
		unary("ReviewScheduleException", SchedulingServiceServer.ReviewScheduleException),
		unary("SaveBreakRule", SchedulingServiceServer.SaveBreakRule),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "appointly/scheduling/v1/scheduling.proto",
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}
