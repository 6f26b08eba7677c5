package sandboxpip

// Info is the read-only snapshot returned by Introspect, the shape the
// control plane's Introspect RPC serializes back to callers.
type Info struct {
	PipID     uint64
	ClientPID int32
	RootPID   int32
	RootPath  string
	State     State
	TreeCount uint32
	Counters  CounterSnapshot
}
