// Package pb holds the control-plane's wire-shaped Go types: plain structs
// and interfaces matching a .proto service definition, with no protoc step.
package pb

import (
	"context"

	"google.golang.org/grpc"
)

// Code is the control-plane RPC outcome, returned inside every Ack.
type Code int32

const (
	CodeSuccess Code = iota
	CodeAlreadyRegistered
	CodeParseError
	CodeResourceExhausted
	CodeNotFound
	CodeInvalidArgument
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeAlreadyRegistered:
		return "already-registered"
	case CodeParseError:
		return "parse-error"
	case CodeResourceExhausted:
		return "resource-exhausted"
	case CodeNotFound:
		return "not-found"
	case CodeInvalidArgument:
		return "invalid-argument"
	default:
		return "unknown"
	}
}

// Ack is the response shape for every mutating RPC.
type Ack struct {
	Code    Code
	Message string
}

// QueueSizeRequest sets the queue_size_mib tunable for a future
// AllocateReportQueue call on behalf of ClientPid.
type QueueSizeRequest struct {
	ClientPid    int32
	QueueSizeMib uint32
}

// ClientRequest names a client_pid alone — used by RPCs that act on the
// client's next pending queue (AllocateReportQueue,
// GetReportQueueMemoryDescriptor, FreeReportQueues).
type ClientRequest struct {
	ClientPid int32
}

// NotificationPortRequest pairs a notification handle with a client_pid,
// consumed FIFO against that client's queue allocation order.
type NotificationPortRequest struct {
	ClientPid int32
	Port      uint64
}

// TrackRootRequest registers a new sandboxed process tree: the raw File
// Access Manifest bytes plus the client and root process pids that own it.
type TrackRootRequest struct {
	ClientPid int32
	RootPid   int32
	Fam       []byte
}

// MemoryDescriptor is the shared-memory handle for one client queue,
// returned by GetReportQueueMemoryDescriptor.
type MemoryDescriptor struct {
	ClientPid  int32
	QueueIndex int32
	SizeBytes  int64
	Handle     uint64
}

// Empty is the Introspect request (no arguments).
type Empty struct{}

// PipInfo mirrors sandboxpip.Info over the wire.
type PipInfo struct {
	PipId      uint64
	ClientPid  int32
	RootPid    int32
	RootPath   string
	State      string
	TreeCount  uint32
	Reports    uint64
	Denials    uint64
	QueueDrops uint64
}

// PipInfoList is the Introspect response.
type PipInfoList struct {
	Pips []*PipInfo
}

// SandboxCoreServer is the service interface internal/controlplane implements.
type SandboxCoreServer interface {
	SetReportQueueSize(context.Context, *QueueSizeRequest) (*Ack, error)
	AllocateReportQueue(context.Context, *ClientRequest) (*Ack, error)
	SetReportQueueNotificationPort(context.Context, *NotificationPortRequest) (*Ack, error)
	GetReportQueueMemoryDescriptor(context.Context, *ClientRequest) (*MemoryDescriptor, error)
	FreeReportQueues(context.Context, *ClientRequest) (*Ack, error)
	TrackRoot(context.Context, *TrackRootRequest) (*Ack, error)
	Introspect(context.Context, *Empty) (*PipInfoList, error)
}

// SandboxCoreClient is the hand-rolled client stub a CLI or integration
// test dials against, matching SandboxCoreServer's method shapes plus the
// grpc.CallOption variadic every generated client carries.
type SandboxCoreClient interface {
	SetReportQueueSize(ctx context.Context, in *QueueSizeRequest, opts ...grpc.CallOption) (*Ack, error)
	AllocateReportQueue(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) (*Ack, error)
	SetReportQueueNotificationPort(ctx context.Context, in *NotificationPortRequest, opts ...grpc.CallOption) (*Ack, error)
	GetReportQueueMemoryDescriptor(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) (*MemoryDescriptor, error)
	FreeReportQueues(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) (*Ack, error)
	TrackRoot(ctx context.Context, in *TrackRootRequest, opts ...grpc.CallOption) (*Ack, error)
	Introspect(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PipInfoList, error)
}

// UnimplementedSandboxCoreServer embeds into SandboxCoreServer
// implementations to satisfy forward compatibility, the same convention a
// protoc-gen-go server stub would provide.
type UnimplementedSandboxCoreServer struct{}

func (UnimplementedSandboxCoreServer) SetReportQueueSize(context.Context, *QueueSizeRequest) (*Ack, error) {
	return nil, nil
}
func (UnimplementedSandboxCoreServer) AllocateReportQueue(context.Context, *ClientRequest) (*Ack, error) {
	return nil, nil
}
func (UnimplementedSandboxCoreServer) SetReportQueueNotificationPort(context.Context, *NotificationPortRequest) (*Ack, error) {
	return nil, nil
}
func (UnimplementedSandboxCoreServer) GetReportQueueMemoryDescriptor(context.Context, *ClientRequest) (*MemoryDescriptor, error) {
	return nil, nil
}
func (UnimplementedSandboxCoreServer) FreeReportQueues(context.Context, *ClientRequest) (*Ack, error) {
	return nil, nil
}
func (UnimplementedSandboxCoreServer) TrackRoot(context.Context, *TrackRootRequest) (*Ack, error) {
	return nil, nil
}
func (UnimplementedSandboxCoreServer) Introspect(context.Context, *Empty) (*PipInfoList, error) {
	return nil, nil
}
