// Package auditstore persists completed process trees to Supabase,
// grounded on the teacher's internal/database.SupabaseClient client
// construction and table-scoped CRUD idiom (sc.client.From(table).Insert).
// Writes are fire-and-forget: a slow or unreachable Supabase project must
// never hold up the dispatcher's hot path.
package auditstore

import (
	"fmt"
	"log/slog"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/wire"
)

const table = "process_tree_reports"

// record is the row shape written to the process_tree_reports table, one
// per completed process tree.
type record struct {
	PipID          uint64 `json:"pip_id"`
	ClientPID      int32  `json:"client_pid"`
	RootPID        int32  `json:"root_pid"`
	RootPath       string `json:"root_path"`
	TeardownReason string `json:"teardown_reason"`
	Reports        uint64 `json:"reports"`
	Denials        uint64 `json:"denials"`
	QueueDrops     uint64 `json:"queue_drops"`
	CacheRaces     uint64 `json:"cache_races"`
	FAMFailures    uint64 `json:"fam_failures"`
}

// Store wraps a Supabase client scoped to the process_tree_reports table.
type Store struct {
	client *supabase.Client
	log    *slog.Logger
}

// New builds a Store against url/key (internal/config's Database.Supabase
// fields), mirroring the teacher's NewSupabaseClient construction.
func New(url, key string, log *slog.Logger) (*Store, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("auditstore: SUPABASE_URL and SUPABASE_SERVICE_KEY must both be set")
	}
	if log == nil {
		log = slog.Default()
	}
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("auditstore: failed to create Supabase client: %w", err)
	}
	return &Store{client: client, log: log}, nil
}

// RecordTreeCompletion is a dispatch.Dispatcher onTerminated callback: it
// fires a background insert of pip's final state and returns immediately,
// never blocking the caller on network I/O.
func (s *Store) RecordTreeCompletion(pip *sandboxpip.Pip, reason wire.TeardownReason) {
	snap := pip.Counters.Snapshot()
	rec := record{
		PipID:          pip.PipID(),
		ClientPID:      pip.ClientPID,
		RootPID:        pip.RootPID,
		RootPath:       pip.RootPath(),
		TeardownReason: reason.String(),
		Reports:        snap.Reports,
		Denials:        snap.Denials,
		QueueDrops:     snap.QueueDrops,
		CacheRaces:     snap.CacheRaces,
		FAMFailures:    snap.FAMFailures,
	}
	go s.insert(rec)
}

func (s *Store) insert(rec record) {
	var result []record
	_, err := s.client.From(table).Insert(rec, false, "", "", "").ExecuteTo(&result)
	if err != nil {
		s.log.Warn("auditstore: insert failed", "pip_id", rec.PipID, "err", err)
	}
}
