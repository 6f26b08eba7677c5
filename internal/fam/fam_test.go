package fam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	return &Manifest{
		PipID:                             7,
		Flags:                             ReportAll | MonitorChildren,
		RootProcessPath:                   "/usr/bin/clang",
		Salt:                              []byte{},
		QueueSizeMiB:                      32,
		NestedProcessTerminationTimeoutMS: 5000,
		ReportQueueStarvationTimeoutMS:    10000,
		ScopeRoot: &ScopeNode{
			Name:       "",
			PolicyMask: AllowAll,
			ConePolicy: AllowAll,
			Children: []*ScopeNode{
				{
					Name:       "tmp",
					PolicyMask: Deny | ReportAccess,
					ConePolicy: Deny,
					Children: []*ScopeNode{
						{Name: "obj", PolicyMask: Deny | ReportAccess, ConePolicy: Deny},
					},
				},
			},
		},
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	m := sampleManifest()
	buf, err := Serialize(m)
	require.NoError(t, err)

	parsed, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, m, parsed)
}

func TestParseBadMagic(t *testing.T) {
	buf, err := Serialize(sampleManifest())
	require.NoError(t, err)
	buf[0] ^= 0xFF

	_, err = Parse(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParseVersionMismatch(t *testing.T) {
	buf, err := Serialize(sampleManifest())
	require.NoError(t, err)
	// version is the two bytes following the 4-byte magic.
	buf[4] = 0xFF
	buf[5] = 0xFF

	_, err = Parse(buf)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestParseTruncated(t *testing.T) {
	buf, err := Serialize(sampleManifest())
	require.NoError(t, err)

	_, err = Parse(buf[:len(buf)-20])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseOversizeRecord(t *testing.T) {
	buf, err := Serialize(sampleManifest())
	require.NoError(t, err)

	// Corrupt the salt length prefix (first field after the 28-byte
	// header: magic(4)+version(2)+flags(2)+pipid(8)+queue(4)+nested(4)+
	// starvation(4)) to claim an absurd length.
	saltLenOffset := 4 + 2 + 2 + 8 + 4 + 4 + 4
	buf[saltLenOffset] = 0xFF
	buf[saltLenOffset+1] = 0xFF

	_, err = Parse(buf)
	assert.ErrorIs(t, err, ErrOversizeRecord)
}

func TestEffectiveQueueSizeMiB(t *testing.T) {
	m := &Manifest{QueueSizeMiB: 0}
	assert.Equal(t, uint32(DefaultQueueSizeMiB), m.EffectiveQueueSizeMiB())

	m.QueueSizeMiB = 5000
	assert.Equal(t, uint32(MaxQueueSizeMiB), m.EffectiveQueueSizeMiB())

	m.QueueSizeMiB = 64
	assert.Equal(t, uint32(64), m.EffectiveQueueSizeMiB())
}
