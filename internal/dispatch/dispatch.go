// Package dispatch implements the event dispatcher: one entry point per
// kernel hook point, each running the same five-step algorithm of spec.md
// §4.F — resolve the pip, extract/cache the path, evaluate policy, report
// if warranted, return the verdict to the caller.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/ocx/sandboxcore/internal/clock"
	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/internal/policy"
	"github.com/ocx/sandboxcore/internal/reportqueue"
	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/wire"
)

// Decision is the allow/deny verdict returned to the kernel caller.
type Decision struct {
	Allow bool
}

// Dispatcher wires the tracker and report queue multiplexer behind the
// per-hook entry points. It holds no per-call state of its own; all
// mutable state lives in the tracker table and each pip.
type Dispatcher struct {
	tracker      *tracker.Tracker
	queues       *reportqueue.Multiplexer
	log          *slog.Logger
	drainTimeout time.Duration
	onTerminated func(*sandboxpip.Pip, wire.TeardownReason)
	onReport     func(*wire.AccessReport)
}

// New constructs a Dispatcher. onTerminated, if non-nil, fires after every
// process-tree-completed report is enqueued (internal/metrics and
// internal/auditstore hang off this). onReport, if non-nil, fires for every
// report this dispatcher builds, enqueued or not (internal/bridge's live
// diagnostics tap hangs off this).
func New(tr *tracker.Tracker, queues *reportqueue.Multiplexer, drainTimeout time.Duration, log *slog.Logger, onTerminated func(*sandboxpip.Pip, wire.TeardownReason), onReport func(*wire.AccessReport)) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{tracker: tr, queues: queues, log: log, drainTimeout: drainTimeout, onTerminated: onTerminated, onReport: onReport}
}

// Lookup is the preflight hook: it resolves and caches path in the calling
// thread's last-lookup slot for a follow-up hook (Exec/Create/Readlink) to
// reuse without re-entering kernel namei machinery (spec.md §4.F step 2).
func (d *Dispatcher) Lookup(pid int32, threadID int, path string) Decision {
	return d.evaluate(pid, threadID, path, policy.OpProbe, true)
}

// Exec evaluates AllowRead-gated access to the image being executed,
// reusing the preceding Lookup's cached path when the caller has none.
func (d *Dispatcher) Exec(pid int32, threadID int, path string) Decision {
	return d.evaluate(pid, threadID, path, policy.OpExec, false)
}

// Create evaluates write access for a new path entry.
func (d *Dispatcher) Create(pid int32, threadID int, path string) Decision {
	return d.evaluate(pid, threadID, path, policy.OpCreate, false)
}

// Readlink evaluates probe access for a symlink target read.
func (d *Dispatcher) Readlink(pid int32, threadID int, path string) Decision {
	return d.evaluate(pid, threadID, path, policy.OpReadlink, false)
}

// VnodeScope is the generic vnode-level hook (attribute/existence checks
// that don't fit Lookup/Exec/Create/Readlink's named shapes) for the op the
// kernel caller observed.
func (d *Dispatcher) VnodeScope(pid int32, threadID int, path string, op policy.Op) Decision {
	return d.evaluate(pid, threadID, path, op, false)
}

// FileopScope is the generic file-operation hook (read/write/enumerate)
// fired after a vnode has already been resolved.
func (d *Dispatcher) FileopScope(pid int32, threadID int, path string, op policy.Op) Decision {
	return d.evaluate(pid, threadID, path, op, false)
}

// Fork records a child pid under its parent's pip.
func (d *Dispatcher) Fork(parentPID, childPID int32) {
	if err := d.tracker.ForkChild(parentPID, childPID); err != nil {
		d.log.Warn("dispatch: fork hook failed", "parent_pid", parentPID, "child_pid", childPID, "err", err)
	}
}

// Exit untracks pid and drives its pip's lifecycle, emitting the
// process-tree-completed report the moment the tree actually reaches zero
// (immediately here, or later via the drain timeout callback).
func (d *Dispatcher) Exit(pid int32) {
	pip, terminatedNow := d.tracker.ProcExit(pid, d.drainTimeout, func(p *sandboxpip.Pip) {
		d.emitTreeCompleted(p, wire.ReasonTimeout)
	})
	if pip != nil && terminatedNow {
		d.emitTreeCompleted(pip, wire.ReasonNormal)
	}
}

func (d *Dispatcher) evaluate(pid int32, threadID int, path string, op policy.Op, isPreflight bool) Decision {
	pip, ok := d.tracker.Find(pid)
	if !ok {
		return Decision{Allow: true}
	}

	resolved := path
	if resolved == "" {
		if cached, ok := pip.LastLookup(threadID); ok {
			resolved = cached
		}
	}
	if isPreflight {
		pip.SetLastLookup(threadID, resolved)
	}

	res := policy.Evaluate(pip.FAM.ScopeRoot, resolved, op)
	if !res.Allowed {
		pip.Counters.IncrDenials()
	}

	wantsReport := res.Report || !res.Allowed || pip.FAMFlags().Has(fam.ReportAll)
	if wantsReport {
		d.report(pip, pid, resolved, op, res)
	}

	return Decision{Allow: res.Allowed}
}

func (d *Dispatcher) report(pip *sandboxpip.Pip, pid int32, path string, op policy.Op, res policy.Result) {
	if rec, ok := pip.CacheLookup(path); ok {
		if rec.MarkReported(op) {
			return // already reported for this (path, operation); suppress.
		}
	}

	status := wire.StatusAllowed
	if !res.Allowed {
		status = wire.StatusDenied
	}
	report := wire.NewAccessReport(wire.Operation(op), status, pip.PipID(), pip.ClientPID, pip.RootPID, pid, path)
	report.RequestedAccess = uint32(policy.RequiredMask(op))
	report.Stats.EnqueueNS = clock.NowNS()
	report.Stats.DequeueNS = wire.StatUnavailable
	pip.Counters.IncrReports()
	if d.onReport != nil {
		d.onReport(&report)
	}

	if d.queues.Enqueue(pip.ClientPID, report, true) {
		return
	}

	pip.Counters.IncrQueueDrops()
	d.log.Warn("dispatch: report queue full, dropping", "client_pid", pip.ClientPID, "pip_id", pip.PipID())
	if pip.FAMFlags().Has(fam.FailOnQueueOverflow) {
		if d.tracker.EvictByPip(pip) {
			d.emitTreeCompleted(pip, wire.ReasonQueueStarvation)
		}
	}
}

func (d *Dispatcher) emitTreeCompleted(pip *sandboxpip.Pip, reason wire.TeardownReason) {
	report := wire.NewAccessReport(wire.OpProcessTreeCompleted, wire.StatusAllowed, pip.PipID(), pip.ClientPID, pip.RootPID, pip.RootPID, pip.RootPath())
	report.TeardownReason = reason
	report.Stats.EnqueueNS = clock.NowNS()
	report.Stats.DequeueNS = wire.StatUnavailable
	if d.onReport != nil {
		d.onReport(&report)
	}
	d.queues.Enqueue(pip.ClientPID, report, false)
	if d.onTerminated != nil {
		d.onTerminated(pip, reason)
	}
}
