// Package metrics wires the sandbox core's live counters into Prometheus,
// generalizing the teacher's internal/monitoring "live metrics struct"
// concept onto the actual github.com/prometheus/client_golang dependency
// the teacher's go.mod already carried but never imported from working
// code.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ocx/sandboxcore/internal/reportqueue"
	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/wire"
)

// Recorder registers gauges that poll live tracker/queue state on every
// scrape plus counters fed by Dispatcher's onTerminated callback, since a
// pip's own Counters are lost once tracker.EvictByPip/ProcExit drops it.
type Recorder struct {
	treesCompleted *prometheus.CounterVec
	reports        prometheus.Counter
	denials        prometheus.Counter
	queueDrops     prometheus.Counter
	cacheRaces     prometheus.Counter
	famFailures    prometheus.Counter
}

// New builds a Recorder, registers every metric against reg, and wires the
// live gauges to tr and queues.
func New(tr *tracker.Tracker, queues *reportqueue.Multiplexer, reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		treesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandboxcore",
			Name:      "process_trees_completed_total",
			Help:      "Process trees torn down, labeled by teardown reason.",
		}, []string{"reason"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "pip_reports_total",
			Help: "Access reports emitted over the lifetime of completed pips.",
		}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "pip_denials_total",
			Help: "Policy denials recorded over the lifetime of completed pips.",
		}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "pip_queue_drops_total",
			Help: "Reports dropped to a full queue over the lifetime of completed pips.",
		}),
		cacheRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "pip_cache_races_total",
			Help: "Lookup-cache insert races observed over the lifetime of completed pips.",
		}),
		famFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "pip_fam_failures_total",
			Help: "FAM parse/evaluate failures recorded over the lifetime of completed pips.",
		}),
	}

	reg.MustRegister(
		r.treesCompleted, r.reports, r.denials, r.queueDrops, r.cacheRaces, r.famFailures,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sandboxcore", Name: "tracked_pids",
			Help: "Pids currently resolvable to a live pip.",
		}, func() float64 { return float64(tr.Size()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "tracker_duplicate_tracks_total",
			Help: "TrackRoot/TrackChild calls that found an existing mapping.",
		}, func() float64 { return float64(tr.Counters.DuplicateTracks.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "tracker_missing_untracks_total",
			Help: "Untrack/ProcExit calls for a pid the tracker never saw.",
		}, func() float64 { return float64(tr.Counters.MissingUntracks.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sandboxcore", Name: "reportqueue_enqueue_drops_total",
			Help: "Enqueue calls that found every queue for a client full.",
		}, func() float64 { return float64(queues.Counters.EnqueueDrops.Load()) }),
	)

	return r
}

// OnTerminated is passed to dispatch.New as its onTerminated callback: it
// folds a just-terminated pip's final CounterSnapshot into the cumulative
// totals above. It runs after the tracker has already dropped the pip, so
// the pip argument is its last reference here.
func (r *Recorder) OnTerminated(pip *sandboxpip.Pip, reason wire.TeardownReason) {
	r.treesCompleted.WithLabelValues(reason.String()).Inc()
	snap := pip.Counters.Snapshot()
	r.reports.Add(float64(snap.Reports))
	r.denials.Add(float64(snap.Denials))
	r.queueDrops.Add(float64(snap.QueueDrops))
	r.cacheRaces.Add(float64(snap.CacheRaces))
	r.famFailures.Add(float64(snap.FAMFailures))
}
