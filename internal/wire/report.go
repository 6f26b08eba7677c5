// Package wire defines the fixed-size, packed AccessReport record that
// crosses the kernel/user-space boundary unchanged, in both directions.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Operation enumerates the file-system operations the core can observe.
type Operation uint32

const (
	OpProbe Operation = iota
	OpRead
	OpWrite
	OpEnumerate
	OpExec
	OpReadlink
	OpCreate
	// OpProcessTreeCompleted is a synthetic operation value used for the
	// terminal report of a pip's lifecycle; it never originates from a
	// real syscall hook.
	OpProcessTreeCompleted
)

func (o Operation) String() string {
	switch o {
	case OpProbe:
		return "probe"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpEnumerate:
		return "enumerate"
	case OpExec:
		return "exec"
	case OpReadlink:
		return "readlink"
	case OpCreate:
		return "create"
	case OpProcessTreeCompleted:
		return "process-tree-completed"
	default:
		return "unknown"
	}
}

// Status is the allow/deny disposition of an access.
type Status uint32

const (
	StatusAllowed Status = 0
	StatusDenied  Status = 1
)

func (s Status) String() string {
	if s == StatusDenied {
		return "denied"
	}
	return "allowed"
}

// TeardownReason qualifies a synthetic process-tree-completed report.
// It is carried in the Reserved field, repurposed per DESIGN.md Open
// Question 2 (spec.md §9 item 2). ReasonClientDisconnect is defined for
// forced client teardown, but no code path sets it: tearing down a client
// (reportqueue.FreeQueues sweeping the tracker) force-terminates its pips
// without emitting a process-tree-completed report.
type TeardownReason uint32

const (
	ReasonNormal           TeardownReason = 0
	ReasonTimeout          TeardownReason = 1
	ReasonClientDisconnect TeardownReason = 2
	ReasonQueueStarvation  TeardownReason = 3
)

func (r TeardownReason) String() string {
	switch r {
	case ReasonNormal:
		return "normal"
	case ReasonTimeout:
		return "timeout"
	case ReasonClientDisconnect:
		return "client_disconnect"
	case ReasonQueueStarvation:
		return "queue_starvation"
	default:
		return "unknown"
	}
}

// StatUnavailable is the documented sentinel for a timing field the host
// platform cannot supply (spec.md §9 Open Question 3: CPU-time measurement
// is optional and portable implementations must declare an explicit
// unavailable value rather than fabricate zero).
const StatUnavailable uint64 = ^uint64(0)

// PathSize is the fixed, NUL-terminated path field width.
const PathSize = 1024

// Stats carries timing information; EnqueueNS is monotonically assigned
// from a single shared clock (internal/clock), DequeueNS is filled in by
// the consumer and may be StatUnavailable if the consumer never reports it.
type Stats struct {
	EnqueueNS uint64
	DequeueNS uint64
}

// AccessReport is the fixed-size wire record of spec.md §6. Size:
// 4 (op) + 4 (requested_access) + 4 (status) + 4 (reserved/reason) +
// 8 (pip_id) + 4*4 (client_pid, root_pid, pid, reserved2) + 8 + 8 (stats) +
// 1024 (path) = 1080 bytes.
type AccessReport struct {
	Operation        Operation
	RequestedAccess  uint32
	Status           Status
	TeardownReason   TeardownReason
	PipID            uint64
	ClientPID        int32
	RootPID          int32
	PID              int32
	reserved2        int32
	Stats            Stats
	Path             [PathSize]byte
}

// Size is the exact on-wire byte length of AccessReport.
const Size = 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4 + 4 + 8 + 8 + PathSize

// NewAccessReport builds a report with the path field NUL-terminated
// (truncated to fit if necessary — the wire format's compile-time choice
// per spec.md §6, documented in DESIGN.md).
func NewAccessReport(op Operation, status Status, pipID uint64, clientPID, rootPID, pid int32, path string) AccessReport {
	var r AccessReport
	r.Operation = op
	r.Status = status
	r.PipID = pipID
	r.ClientPID = clientPID
	r.RootPID = rootPID
	r.PID = pid
	r.SetPath(path)
	return r
}

// SetPath copies path into the fixed-size buffer, truncating and always
// leaving a NUL terminator.
func (r *AccessReport) SetPath(path string) {
	n := len(path)
	if n > PathSize-1 {
		n = PathSize - 1
	}
	var buf [PathSize]byte
	copy(buf[:n], path[:n])
	r.Path = buf
}

// PathString returns the path as a Go string, stopping at the first NUL.
func (r *AccessReport) PathString() string {
	idx := bytes.IndexByte(r.Path[:], 0)
	if idx < 0 {
		idx = len(r.Path)
	}
	return string(r.Path[:idx])
}

// Encode serializes the report into its fixed little-endian layout.
func (r AccessReport) Encode() ([]byte, error) {
	buf := make([]byte, 0, Size)
	w := bytes.NewBuffer(buf)

	fields := []any{
		uint32(r.Operation),
		r.RequestedAccess,
		uint32(r.Status),
		uint32(r.TeardownReason),
		r.PipID,
		r.ClientPID,
		r.RootPID,
		r.PID,
		r.reserved2,
		r.Stats.EnqueueNS,
		r.Stats.DequeueNS,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("encode access report: %w", err)
		}
	}
	w.Write(r.Path[:])
	return w.Bytes(), nil
}

// Decode parses a fixed little-endian AccessReport from buf.
func Decode(buf []byte) (AccessReport, error) {
	var r AccessReport
	if len(buf) < Size {
		return r, fmt.Errorf("decode access report: truncated buffer (%d < %d)", len(buf), Size)
	}
	reader := bytes.NewReader(buf)

	var op, reqAccess, status, reason uint32
	for _, f := range []any{&op, &reqAccess, &status, &reason} {
		if err := binary.Read(reader, binary.LittleEndian, f); err != nil {
			return r, fmt.Errorf("decode access report header: %w", err)
		}
	}
	r.Operation = Operation(op)
	r.RequestedAccess = reqAccess
	r.Status = Status(status)
	r.TeardownReason = TeardownReason(reason)

	for _, f := range []any{&r.PipID, &r.ClientPID, &r.RootPID, &r.PID, &r.reserved2, &r.Stats.EnqueueNS, &r.Stats.DequeueNS} {
		if err := binary.Read(reader, binary.LittleEndian, f); err != nil {
			return r, fmt.Errorf("decode access report body: %w", err)
		}
	}

	if _, err := reader.Read(r.Path[:]); err != nil {
		return r, fmt.Errorf("decode access report path: %w", err)
	}
	return r, nil
}
