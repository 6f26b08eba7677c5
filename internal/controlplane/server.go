// Package controlplane implements the gRPC control plane: the RPCs a client
// uses to allocate report queues and register a root process for sandboxing
// (spec.md §6.1), gated by an admission check on every mutating call.
package controlplane

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ocx/sandboxcore/internal/clientio"
	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/trie"
	"github.com/ocx/sandboxcore/pb"
)

// Authorizer gates every mutating RPC behind a caller identity check.
// internal/identity.Verifier implements this against the caller's SPIFFE
// SVID; tests and single-tenant deployments can pass AllowAll instead.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// AllowAll is an Authorizer that admits every call, for tests and
// deployments that don't run an identity layer in front of the core.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context) error { return nil }

// Server implements pb.SandboxCoreServer against a clientio.Manager and a
// tracker.Tracker, following the teacher's PlanManager handler shape
// (its only lock is the one guarding pending queue sizes; clientio/tracker
// own their own locking) of
// validating, mutating a table, and returning a typed Ack plus slog line.
type Server struct {
	pb.UnimplementedSandboxCoreServer

	io    *clientio.Manager
	tr    *tracker.Tracker
	arena *trie.Arena
	auth  Authorizer
	log   *slog.Logger
	sizes pendingSizes
}

// New constructs a Server. auth may be nil, in which case every call is
// admitted (equivalent to AllowAll).
func New(io *clientio.Manager, tr *tracker.Tracker, arena *trie.Arena, auth Authorizer, log *slog.Logger) *Server {
	if auth == nil {
		auth = AllowAll{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{io: io, tr: tr, arena: arena, auth: auth, log: log}
}

func (s *Server) authorize(ctx context.Context) error {
	if err := s.auth.Authorize(ctx); err != nil {
		return status.Error(codes.PermissionDenied, err.Error())
	}
	return nil
}

// SetReportQueueSize records queue_size_mib for a client's next
// AllocateReportQueue call. Queue sizing is a parameter of allocation
// itself in this implementation (internal/reportqueue.AllocateQueue takes
// the size directly), so this RPC stores the value for AllocateReportQueue
// to pick up — see Server.setPendingSize/takePendingSize.
func (s *Server) SetReportQueueSize(ctx context.Context, req *pb.QueueSizeRequest) (*pb.Ack, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.setPendingSize(req.ClientPid, req.QueueSizeMib)
	return &pb.Ack{Code: pb.CodeSuccess}, nil
}

// AllocateReportQueue allocates one new queue for client_pid, sized by the
// most recent SetReportQueueSize call (or the tunable default).
func (s *Server) AllocateReportQueue(ctx context.Context, req *pb.ClientRequest) (*pb.Ack, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	mib := s.takePendingSize(req.ClientPid)
	s.io.AllocateQueue(req.ClientPid, mib)
	s.log.Info("controlplane: allocated report queue", "client_pid", req.ClientPid, "queue_size_mib", mib)
	return &pb.Ack{Code: pb.CodeSuccess}, nil
}

// SetReportQueueNotificationPort attaches a notification handle to the
// client's next queue awaiting one, FIFO with GetReportQueueMemoryDescriptor.
func (s *Server) SetReportQueueNotificationPort(ctx context.Context, req *pb.NotificationPortRequest) (*pb.Ack, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if err := s.io.SetNotificationPort(req.ClientPid, req.Port); err != nil {
		return &pb.Ack{Code: pb.CodeNotFound, Message: err.Error()}, nil
	}
	return &pb.Ack{Code: pb.CodeSuccess}, nil
}

// GetReportQueueMemoryDescriptor hands back the shared-memory descriptor for
// the client's next queue awaiting one.
func (s *Server) GetReportQueueMemoryDescriptor(ctx context.Context, req *pb.ClientRequest) (*pb.MemoryDescriptor, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	desc, err := s.io.MemoryDescriptorForNext(req.ClientPid)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &pb.MemoryDescriptor{
		ClientPid:  desc.ClientPID,
		QueueIndex: int32(desc.QueueIndex),
		SizeBytes:  int64(desc.SizeBytes),
		Handle:     desc.Handle,
	}, nil
}

// FreeReportQueues tears down every queue for client_pid and force-terminates
// its tracked pips — the normal client-shutdown path, same cleanup the
// abnormal-client sweep drives asynchronously.
func (s *Server) FreeReportQueues(ctx context.Context, req *pb.ClientRequest) (*pb.Ack, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.io.FreeQueues(req.ClientPid)
	return &pb.Ack{Code: pb.CodeSuccess}, nil
}

// TrackRoot parses the submitted File Access Manifest, constructs a
// SandboxedPip, and registers root_pid as its root under the tracker.
func (s *Server) TrackRoot(ctx context.Context, req *pb.TrackRootRequest) (*pb.Ack, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}

	pip, err := sandboxpip.New(req.ClientPid, req.RootPid, req.Fam, s.arena)
	if err != nil {
		s.log.Warn("controlplane: rejecting malformed manifest", "client_pid", req.ClientPid, "root_pid", req.RootPid, "err", err)
		return &pb.Ack{Code: pb.CodeParseError, Message: err.Error()}, nil
	}

	if err := s.tr.TrackRoot(req.RootPid, pip); err != nil {
		switch err {
		case tracker.ErrAlreadyTracked:
			return &pb.Ack{Code: pb.CodeAlreadyRegistered, Message: err.Error()}, nil
		case tracker.ErrArenaExhausted:
			return &pb.Ack{Code: pb.CodeResourceExhausted, Message: err.Error()}, nil
		default:
			return &pb.Ack{Code: pb.CodeInvalidArgument, Message: err.Error()}, nil
		}
	}

	s.io.Touch(req.ClientPid)
	s.log.Info("controlplane: tracked root", "client_pid", req.ClientPid, "root_pid", req.RootPid, "pip_id", pip.PipID())
	return &pb.Ack{Code: pb.CodeSuccess}, nil
}

// Introspect is the sole read-only RPC; it is never gated by Authorize per
// spec.md §6.1's explicit carve-out.
func (s *Server) Introspect(ctx context.Context, _ *pb.Empty) (*pb.PipInfoList, error) {
	infos := s.tr.Introspect()
	out := make([]*pb.PipInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, &pb.PipInfo{
			PipId:      info.PipID,
			ClientPid:  info.ClientPID,
			RootPid:    info.RootPID,
			RootPath:   info.RootPath,
			State:      info.State.String(),
			TreeCount:  info.TreeCount,
			Reports:    info.Counters.Reports,
			Denials:    info.Counters.Denials,
			QueueDrops: info.Counters.QueueDrops,
		})
	}
	return &pb.PipInfoList{Pips: out}, nil
}
