package sandboxpip

import "sync/atomic"

// Counters are the per-pip diagnostic tallies exposed via Introspect and
// rolled up into process-wide metrics.
type Counters struct {
	reports     atomic.Uint64
	denials     atomic.Uint64
	queueDrops  atomic.Uint64
	cacheRaces  atomic.Uint64
	famFailures atomic.Uint64
}

func (c *Counters) IncrReports()     { c.reports.Add(1) }
func (c *Counters) IncrDenials()     { c.denials.Add(1) }
func (c *Counters) IncrQueueDrops()  { c.queueDrops.Add(1) }
func (c *Counters) IncrCacheRaces()  { c.cacheRaces.Add(1) }
func (c *Counters) IncrFAMFailures() { c.famFailures.Add(1) }

// CounterSnapshot is a point-in-time copy safe to hand to callers.
type CounterSnapshot struct {
	Reports     uint64
	Denials     uint64
	QueueDrops  uint64
	CacheRaces  uint64
	FAMFailures uint64
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Reports:     c.reports.Load(),
		Denials:     c.denials.Load(),
		QueueDrops:  c.queueDrops.Load(),
		CacheRaces:  c.cacheRaces.Load(),
		FAMFailures: c.famFailures.Load(),
	}
}
