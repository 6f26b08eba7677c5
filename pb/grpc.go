package pb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodec marshals the plain structs above over the wire, standing in for
// the protoc-generated codec a .proto file would normally produce — the
// control plane has no .proto source, so it registers its own
// encoding.Codec instead of vendoring one.
type jsonCodec struct{}

const codecName = "sandboxcore-json"

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallContentSubtype forces every outgoing call on a client built with
// NewSandboxCoreClient to use this codec; ClientCodec returns the matching
// grpc.DialOption.
func ClientCodec() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName))
}

const serviceName = "sandboxcore.SandboxCore"

// ServiceDesc is the hand-rolled equivalent of a protoc-gen-go-grpc
// _ServiceDesc: the (method name -> handler) table grpc.Server.RegisterService
// uses to route an inbound RPC to a SandboxCoreServer method.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SandboxCoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetReportQueueSize", Handler: setReportQueueSizeHandler},
		{MethodName: "AllocateReportQueue", Handler: allocateReportQueueHandler},
		{MethodName: "SetReportQueueNotificationPort", Handler: setReportQueueNotificationPortHandler},
		{MethodName: "GetReportQueueMemoryDescriptor", Handler: getReportQueueMemoryDescriptorHandler},
		{MethodName: "FreeReportQueues", Handler: freeReportQueuesHandler},
		{MethodName: "TrackRoot", Handler: trackRootHandler},
		{MethodName: "Introspect", Handler: introspectHandler},
	},
	Metadata: "sandboxcore.proto",
}

// RegisterSandboxCoreServer wires srv into s the way a generated
// RegisterSandboxCoreServer function would.
func RegisterSandboxCoreServer(s *grpc.Server, srv SandboxCoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func setReportQueueSizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(QueueSizeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandboxCoreServer).SetReportQueueSize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SetReportQueueSize"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandboxCoreServer).SetReportQueueSize(ctx, req.(*QueueSizeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func allocateReportQueueHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClientRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandboxCoreServer).AllocateReportQueue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AllocateReportQueue"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandboxCoreServer).AllocateReportQueue(ctx, req.(*ClientRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func setReportQueueNotificationPortHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(NotificationPortRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandboxCoreServer).SetReportQueueNotificationPort(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SetReportQueueNotificationPort"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandboxCoreServer).SetReportQueueNotificationPort(ctx, req.(*NotificationPortRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getReportQueueMemoryDescriptorHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClientRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandboxCoreServer).GetReportQueueMemoryDescriptor(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetReportQueueMemoryDescriptor"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandboxCoreServer).GetReportQueueMemoryDescriptor(ctx, req.(*ClientRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func freeReportQueuesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClientRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandboxCoreServer).FreeReportQueues(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/FreeReportQueues"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandboxCoreServer).FreeReportQueues(ctx, req.(*ClientRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func trackRootHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TrackRootRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandboxCoreServer).TrackRoot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/TrackRoot"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandboxCoreServer).TrackRoot(ctx, req.(*TrackRootRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func introspectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandboxCoreServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Introspect"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandboxCoreServer).Introspect(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type sandboxCoreClient struct {
	cc *grpc.ClientConn
}

// NewSandboxCoreClient builds a SandboxCoreClient over cc. Dial cc with
// ClientCodec() so the negotiated content-subtype matches the server's
// registered jsonCodec.
func NewSandboxCoreClient(cc *grpc.ClientConn) SandboxCoreClient {
	return &sandboxCoreClient{cc: cc}
}

func (c *sandboxCoreClient) SetReportQueueSize(ctx context.Context, in *QueueSizeRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SetReportQueueSize", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandboxCoreClient) AllocateReportQueue(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/AllocateReportQueue", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandboxCoreClient) SetReportQueueNotificationPort(ctx context.Context, in *NotificationPortRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SetReportQueueNotificationPort", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandboxCoreClient) GetReportQueueMemoryDescriptor(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) (*MemoryDescriptor, error) {
	out := new(MemoryDescriptor)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetReportQueueMemoryDescriptor", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandboxCoreClient) FreeReportQueues(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/FreeReportQueues", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandboxCoreClient) TrackRoot(ctx context.Context, in *TrackRootRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/TrackRoot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandboxCoreClient) Introspect(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PipInfoList, error) {
	out := new(PipInfoList)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Introspect", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
