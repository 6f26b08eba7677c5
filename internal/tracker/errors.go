package tracker

import "errors"

var (
	// ErrAlreadyTracked is returned by TrackRoot/TrackChild when the pid is
	// already present in the table — a duplicate fork/track notification
	// from the kernel, not a caller bug (spec.md §4.E boundary behavior).
	ErrAlreadyTracked = errors.New("tracker: pid already tracked")
	// ErrNotTracked is returned when a pid has no entry — most commonly a
	// duplicate or out-of-order exit notification.
	ErrNotTracked = errors.New("tracker: pid not tracked")
	// ErrArenaExhausted surfaces a Failure result from the backing trie's
	// bounded node arena.
	ErrArenaExhausted = errors.New("tracker: node arena exhausted")
)
