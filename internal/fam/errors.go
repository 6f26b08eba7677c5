package fam

import "errors"

// Typed parse failures (spec.md §4.B). No partial Manifest is ever returned
// alongside a non-nil error.
var (
	ErrTruncated       = errors.New("fam: truncated buffer")
	ErrBadMagic        = errors.New("fam: bad magic")
	ErrVersionMismatch = errors.New("fam: version mismatch")
	ErrOversizeRecord  = errors.New("fam: oversize record")
)
