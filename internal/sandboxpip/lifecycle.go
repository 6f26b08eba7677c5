package sandboxpip

import "time"

// OnChildTracked moves Registered -> Running the first time a descendant
// beyond the root is tracked, and bumps the live tree count. Returns the
// new count.
func (p *Pip) OnChildTracked() uint32 {
	n := p.treeCount.Add(1)
	p.state.CompareAndSwap(int32(Registered), int32(Running))
	return n
}

// OnChildExited decrements the live tree count. If it reaches zero the pip
// terminates outright (no root-exited drain was pending); terminated
// reports whether this call crossed zero.
func (p *Pip) OnChildExited() (remaining uint32, terminated bool) {
	n := p.treeCount.Add(^uint32(0)) // -1
	if n == 0 {
		p.transitionTerminated()
		return 0, true
	}
	return n, false
}

// OnRootExited marks the root process gone and releases the root's own
// slot in the live tree count. If descendants remain, the pip
// enters Draining and arms the nested_process_termination_timeout; onTimeout
// fires from a background timer goroutine if the tree hasn't drained by
// then. If no descendants remain, the pip terminates immediately.
func (p *Pip) OnRootExited(timeout time.Duration, onTimeout func(*Pip)) {
	if p.treeCount.Load() == 0 || p.treeCount.Add(^uint32(0)) == 0 {
		p.transitionTerminated()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if State(p.state.Load()) == Terminated {
		return
	}
	p.state.Store(int32(Draining))
	if timeout <= 0 {
		return
	}
	p.drainTimer = time.AfterFunc(timeout, func() {
		if p.transitionTerminated() && onTimeout != nil {
			onTimeout(p)
		}
	})
}

// CancelDrainTimer disarms a pending drain timeout, e.g. because the tree
// fully drained before it fired. Safe to call when no timer is armed.
func (p *Pip) CancelDrainTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drainTimer != nil {
		p.drainTimer.Stop()
		p.drainTimer = nil
	}
}

// MarkQueueStarved force-terminates the pip because its client stopped
// draining its report queue past report_queue_starvation_timeout_ms
// (spec.md §4.G boundary behavior). Idempotent.
func (p *Pip) MarkQueueStarved() {
	p.transitionTerminated()
}

// ForceTerminate moves the pip straight to Terminated regardless of its
// current state, e.g. when its owning client disconnects and
// internal/reportqueue sweeps the tracker table (spec.md §4.G
// free_queues). Idempotent; returns whether this call actually transitioned
// the pip (false if it was already Terminated).
func (p *Pip) ForceTerminate() bool {
	return p.transitionTerminated()
}

// transitionTerminated moves the pip to Terminated exactly once, cancelling
// any armed drain timer. Returns true the one time it actually transitions.
func (p *Pip) transitionTerminated() bool {
	for {
		cur := State(p.state.Load())
		if cur == Terminated {
			return false
		}
		if p.state.CompareAndSwap(int32(cur), int32(Terminated)) {
			p.mu.Lock()
			if p.drainTimer != nil {
				p.drainTimer.Stop()
				p.drainTimer = nil
			}
			p.mu.Unlock()
			return true
		}
	}
}
