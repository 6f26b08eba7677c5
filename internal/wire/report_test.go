package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessReportRoundTrip(t *testing.T) {
	r := NewAccessReport(OpRead, StatusAllowed, 42, 100, 200, 201, "/tmp/a.txt")
	r.Stats.EnqueueNS = 123456
	r.Stats.DequeueNS = StatUnavailable

	buf, err := r.Encode()
	require.NoError(t, err)
	assert.Len(t, buf, Size)

	decoded, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, OpRead, decoded.Operation)
	assert.Equal(t, StatusAllowed, decoded.Status)
	assert.Equal(t, uint64(42), decoded.PipID)
	assert.Equal(t, int32(100), decoded.ClientPID)
	assert.Equal(t, int32(200), decoded.RootPID)
	assert.Equal(t, int32(201), decoded.PID)
	assert.Equal(t, "/tmp/a.txt", decoded.PathString())
	assert.Equal(t, uint64(123456), decoded.Stats.EnqueueNS)
	assert.Equal(t, StatUnavailable, decoded.Stats.DequeueNS)
}

func TestAccessReportPathTruncation(t *testing.T) {
	long := make([]byte, PathSize+10)
	for i := range long {
		long[i] = 'x'
	}
	r := NewAccessReport(OpProbe, StatusDenied, 1, 1, 1, 1, string(long))
	assert.Len(t, r.PathString(), PathSize-1)
}

func TestDecodeTruncatedBuffer(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOperationAndStatusStrings(t *testing.T) {
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "process-tree-completed", OpProcessTreeCompleted.String())
	assert.Equal(t, "denied", StatusDenied.String())
	assert.Equal(t, "allowed", StatusAllowed.String())
}
