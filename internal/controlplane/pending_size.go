package controlplane

import "sync"

// pendingSizes holds the last SetReportQueueSize value per client, consumed
// (and cleared) by the next AllocateReportQueue — these two RPCs are
// separate calls in spec.md §6.1 even though internal/reportqueue's
// AllocateQueue takes a size directly, so the server bridges the gap here
// rather than widening the queue package's own API for a control-plane-only
// concern.
type pendingSizes struct {
	mu   sync.Mutex
	byPID map[int32]uint32
}

func (s *Server) setPendingSize(clientPID int32, mib uint32) {
	s.sizes.mu.Lock()
	defer s.sizes.mu.Unlock()
	if s.sizes.byPID == nil {
		s.sizes.byPID = make(map[int32]uint32)
	}
	s.sizes.byPID[clientPID] = mib
}

// takePendingSize returns and clears the stored size for clientPID, or 0
// (internal/reportqueue's "use the tunable default" sentinel) if none was set.
func (s *Server) takePendingSize(clientPID int32) uint32 {
	s.sizes.mu.Lock()
	defer s.sizes.mu.Unlock()
	mib := s.sizes.byPID[clientPID]
	delete(s.sizes.byPID, clientPID)
	return mib
}
