// Package bridge implements the live diagnostics tap: a non-blocking
// rebroadcast of every wire.AccessReport the dispatcher produces to
// connected operator UIs, grounded on the teacher's "Synapse Bridge"
// (setupSocketServer/BroadcastToNamespace, formerly in cmd/probe/main.go).
package bridge

import (
	"log/slog"
	"net/http"

	socketio "github.com/googollee/go-socket.io"

	"github.com/ocx/sandboxcore/internal/wire"
)

const namespace = "/"
const eventName = "access_report"

// event is the JSON shape pushed to the browser; wire.AccessReport's fixed
// byte layout is an internal transport detail, not something to expose to
// a Socket.IO client.
type event struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
	PipID     uint64 `json:"pip_id"`
	ClientPID int32  `json:"client_pid"`
	RootPID   int32  `json:"root_pid"`
	PID       int32  `json:"pid"`
	Path      string `json:"path"`
}

// Bridge fronts a socketio.Server. Broadcast never blocks on a slow or
// absent client: go-socket.io's BroadcastToNamespace fans out to each
// connected socket's own write queue.
type Bridge struct {
	server *socketio.Server
	log    *slog.Logger
}

// New builds a Bridge and its underlying socketio.Server, wiring bare
// connect/disconnect handlers the way the teacher's setupSocketServer did.
func New(log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	server := socketio.NewServer(nil)
	b := &Bridge{server: server, log: log}

	server.OnConnect(namespace, func(s socketio.Conn) error {
		b.log.Debug("bridge: operator UI connected", "conn_id", s.ID())
		return nil
	})
	server.OnDisconnect(namespace, func(s socketio.Conn, reason string) {
		b.log.Debug("bridge: operator UI disconnected", "conn_id", s.ID(), "reason", reason)
	})
	server.OnError(namespace, func(s socketio.Conn, err error) {
		b.log.Warn("bridge: socket error", "err", err)
	})

	return b
}

// Serve registers the bridge's Socket.IO handler on mux and runs the
// server's own event loop in a background goroutine until Close.
func (b *Bridge) Serve(mux *http.ServeMux) {
	mux.Handle("/socket.io/", b.server)
	go func() {
		if err := b.server.Serve(); err != nil {
			b.log.Warn("bridge: socket.io server stopped", "err", err)
		}
	}()
}

// Close shuts the underlying socketio.Server down.
func (b *Bridge) Close() error {
	return b.server.Close()
}

// Tap is a dispatch.Dispatcher onReport callback: it rebroadcasts report to
// every connected operator UI. Safe to pass even before any client has
// connected — BroadcastToNamespace is then simply a no-op.
func (b *Bridge) Tap(report *wire.AccessReport) {
	b.server.BroadcastToNamespace(namespace, eventName, event{
		Operation: report.Operation.String(),
		Status:    report.Status.String(),
		PipID:     report.PipID,
		ClientPID: report.ClientPID,
		RootPID:   report.RootPID,
		PID:       report.PID,
		Path:      report.PathString(),
	})
}
