// Package clock provides the single shared monotonic source every
// AccessReport.Stats.EnqueueNS is assigned from, so that reports from
// different threads remain comparable by the client (spec.md §5).
package clock

import "time"

var start = time.Now()

// NowNS returns nanoseconds elapsed since process start, monotonically
// non-decreasing even under concurrent callers (time.Since uses the
// runtime's monotonic clock reading internally).
func NowNS() uint64 {
	return uint64(time.Since(start).Nanoseconds())
}
