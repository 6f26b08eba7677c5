// Command sandboxcored is the sandbox core host daemon: it wires the
// trie/FAM/policy/SandboxedPip/Tracker/Dispatcher/ReportQueue/ClientIO
// components (spec.md components A-H) behind a gRPC control plane, and
// taps the dispatcher's output into Prometheus metrics, a Socket.IO live
// diagnostics bridge, and optional Supabase audit persistence.
//
// Its eBPF wiring follows the teacher's former cmd/probe/main.go and
// cmd/interceptor/main.go: placeholder maps and a commented-out LSM
// attach, since this tree ships no compiled bpf2go objects, plus a real
// ringbuf.Reader loop translating raw kernel events into Dispatcher calls.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/ocx/sandboxcore/internal/auditstore"
	"github.com/ocx/sandboxcore/internal/bridge"
	"github.com/ocx/sandboxcore/internal/clientio"
	"github.com/ocx/sandboxcore/internal/config"
	"github.com/ocx/sandboxcore/internal/controlplane"
	"github.com/ocx/sandboxcore/internal/corelog"
	"github.com/ocx/sandboxcore/internal/dispatch"
	"github.com/ocx/sandboxcore/internal/identity"
	"github.com/ocx/sandboxcore/internal/metrics"
	"github.com/ocx/sandboxcore/internal/reportqueue"
	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/trie"
	"github.com/ocx/sandboxcore/internal/wire"
	"github.com/ocx/sandboxcore/pb"
)

const mib = 1 << 20

func main() {
	cfg := config.Get()
	log := corelog.SetDefault(cfg.Server.Env)

	arena := trie.NewArena(int64(cfg.Queue.ArenaSizeMiB) * mib)
	tr := tracker.New(arena, log)
	queues := reportqueue.New(arena)
	io := clientio.New(queues, tr, log, time.Duration(cfg.Tracker.AbnormalTimeoutSec)*time.Second, time.Duration(cfg.Tracker.SweepIntervalSec)*time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	io.StartSweep(ctx)

	auth := buildAuthorizer(cfg, log)

	onTerminated, onReport, stopTaps := buildTaps(cfg, tr, queues, log)
	defer stopTaps()

	d := dispatch.New(tr, queues, time.Duration(cfg.Tracker.DrainTimeoutSec)*time.Second, log, onTerminated, onReport)

	srv := controlplane.New(io, tr, arena, auth, log)
	grpcServer := grpc.NewServer()
	pb.RegisterSandboxCoreServer(grpcServer, srv)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error("sandboxcored: failed to bind control plane listener", "addr", cfg.Server.GRPCAddr, "err", err)
		os.Exit(1)
	}
	go func() {
		log.Info("sandboxcored: control plane listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Warn("sandboxcored: control plane server stopped", "err", err)
		}
	}()

	kernel, err := loadKernelTap(d, log)
	if err != nil {
		log.Error("sandboxcored: failed to load kernel tap", "err", err)
		os.Exit(1)
	}
	defer kernel.Close()

	<-ctx.Done()
	log.Info("sandboxcored: shutting down")
	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		grpcServer.Stop()
	}
	io.Stop()
}

// buildAuthorizer constructs the control plane's Authorizer: a real
// internal/identity.Verifier gated on the SPIRE agent at
// cfg.Identity.SocketPath when identity is enabled, or AllowAll for
// single-tenant/test deployments (spec.md §6.1).
func buildAuthorizer(cfg *config.Config, log *slog.Logger) controlplane.Authorizer {
	if !cfg.Identity.Enabled {
		return controlplane.AllowAll{}
	}
	sv, err := identity.NewSPIFFEVerifier(cfg.Identity.SocketPath)
	if err != nil {
		log.Error("sandboxcored: failed to connect to SPIRE agent, refusing to start with identity enabled", "socket_path", cfg.Identity.SocketPath, "err", err)
		os.Exit(1)
	}
	return identity.NewVerifier(sv, cfg.Identity.AllowedSVIDs)
}

// buildTaps wires the optional Prometheus/Socket.IO/Supabase taps per
// config, returning the onTerminated/onReport callbacks dispatch.New
// expects (either nil, to skip entirely) and a cleanup func.
func buildTaps(cfg *config.Config, tr *tracker.Tracker, queues *reportqueue.Multiplexer, log *slog.Logger) (
	onTerminated func(*sandboxpip.Pip, wire.TeardownReason),
	onReport func(*wire.AccessReport),
	stop func(),
) {
	var terminatedFuncs []func(*sandboxpip.Pip, wire.TeardownReason)
	var stopFuncs []func()

	if cfg.Metrics.Enabled {
		rec := metrics.New(tr, queues, prometheus.DefaultRegisterer)
		terminatedFuncs = append(terminatedFuncs, rec.OnTerminated)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("sandboxcored: metrics server stopped", "err", err)
			}
		}()
		stopFuncs = append(stopFuncs, func() { _ = srv.Close() })
		log.Info("sandboxcored: metrics listening", "addr", cfg.Metrics.Addr)
	}

	if cfg.Bridge.Enabled {
		b := bridge.New(log)
		mux := http.NewServeMux()
		b.Serve(mux)
		srv := &http.Server{Addr: cfg.Bridge.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("sandboxcored: bridge http server stopped", "err", err)
			}
		}()
		stopFuncs = append(stopFuncs, func() { _ = srv.Close(); _ = b.Close() })
		onReport = b.Tap
		log.Info("sandboxcored: bridge listening", "addr", cfg.Bridge.Addr)
	}

	if cfg.AuditStore.Enabled {
		store, err := auditstore.New(cfg.Database.Supabase.URL, cfg.Database.Supabase.ServiceKey, log)
		if err != nil {
			log.Warn("sandboxcored: audit store disabled", "err", err)
		} else {
			terminatedFuncs = append(terminatedFuncs, store.RecordTreeCompletion)
		}
	}

	if len(terminatedFuncs) > 0 {
		onTerminated = func(pip *sandboxpip.Pip, reason wire.TeardownReason) {
			for _, f := range terminatedFuncs {
				f(pip, reason)
			}
		}
	}
	stop = func() {
		for _, f := range stopFuncs {
			f()
		}
	}
	return onTerminated, onReport, stop
}

// kernelTap owns the eBPF maps and ring-buffer reader feeding raw kernel
// events into a Dispatcher. Loading real LSM-attached objects requires a
// bpf2go-generated object file this tree does not ship (no clang/libbpf
// toolchain available here); eventsMap is a placeholder sized and typed
// the way the real map would be, and the LSM attach calls are
// left commented for the same reason the teacher's left theirs commented.
type kernelTap struct {
	eventsMap *ebpf.Map
	reader    *ringbuf.Reader
}

func loadKernelTap(d *dispatch.Dispatcher, log *slog.Logger) (*kernelTap, error) {
	eventsMap, err := ebpf.NewMap(&ebpf.MapSpec{
		Type:       ebpf.RingBuf,
		MaxEntries: 4 * mib,
	})
	if err != nil {
		return nil, fmt.Errorf("creating events ring buffer map: %w", err)
	}

	// Real deployments attach LSM/tracepoint programs here, e.g.:
	//   link.AttachLSM(link.LSMOptions{Program: objs.SandboxcoreLookup})
	//   link.AttachLSM(link.LSMOptions{Program: objs.SandboxcoreExec})
	//   link.Tracepoint("sched", "sched_process_exit", objs.HandleExit, nil)
	// which requires bpf2go-generated objects this tree does not carry.

	reader, err := ringbuf.NewReader(eventsMap)
	if err != nil {
		return nil, fmt.Errorf("opening ringbuf reader: %w", err)
	}

	kt := &kernelTap{eventsMap: eventsMap, reader: reader}
	go kt.processEvents(d, log)
	return kt, nil
}

func (kt *kernelTap) Close() error {
	return kt.reader.Close()
}

// rawEvent mirrors the fixed C-struct layout a real LSM/tracepoint program
// would emit into the ring buffer: pid, thread id, hook op, and a
// NUL-terminated path, sized identically to wire.AccessReport's path field
// so a single decode handles every hook point.
type rawEvent struct {
	PID  int32
	TID  int32
	Op   uint32
	Path [wire.PathSize]byte
}

func (kt *kernelTap) processEvents(d *dispatch.Dispatcher, log *slog.Logger) {
	for {
		record, err := kt.reader.Read()
		if err != nil {
			if err == ringbuf.ErrClosed {
				return
			}
			log.Warn("sandboxcored: ringbuf read error", "err", err)
			continue
		}

		var ev rawEvent
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &ev); err != nil {
			log.Warn("sandboxcored: malformed ring buffer record", "err", err)
			continue
		}
		dispatchEvent(d, ev)
	}
}

func pathString(buf [wire.PathSize]byte) string {
	n := bytes.IndexByte(buf[:], 0)
	if n < 0 {
		n = len(buf)
	}
	return string(buf[:n])
}

func dispatchEvent(d *dispatch.Dispatcher, ev rawEvent) {
	path := pathString(ev.Path)
	switch wire.Operation(ev.Op) {
	case wire.OpProbe:
		d.Lookup(ev.PID, int(ev.TID), path)
	case wire.OpExec:
		d.Exec(ev.PID, int(ev.TID), path)
	case wire.OpCreate:
		d.Create(ev.PID, int(ev.TID), path)
	case wire.OpReadlink:
		d.Readlink(ev.PID, int(ev.TID), path)
	}
}
