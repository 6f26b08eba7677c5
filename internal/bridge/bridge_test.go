package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/sandboxcore/internal/wire"
)

func TestTapWithoutConnectedClientsIsNonBlocking(t *testing.T) {
	b := New(nil)
	report := wire.NewAccessReport(wire.OpReadlink, wire.StatusDenied, 1, 10, 100, 101, "/secret/k")
	assert.NotPanics(t, func() { b.Tap(&report) })
}
