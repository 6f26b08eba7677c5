package controlplane

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sandboxcore/internal/clientio"
	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/internal/reportqueue"
	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/trie"
	"github.com/ocx/sandboxcore/pb"
)

const testClientPID int32 = 7
const testRootPID int32 = 700

func newTestServer(t *testing.T) *Server {
	t.Helper()
	q := reportqueue.New(nil)
	tr := tracker.New(nil, nil)
	io := clientio.New(q, tr, nil, 0, 0)
	return New(io, tr, trie.NewArena(0), nil, nil)
}

func validFAM(t *testing.T) []byte {
	t.Helper()
	m := &fam.Manifest{
		RootProcessPath: "/bin/tool",
		ScopeRoot:       &fam.ScopeNode{PolicyMask: fam.AllowAll, ConePolicy: fam.AllowAll},
		Salt:            []byte{},
	}
	buf, err := fam.Serialize(m)
	require.NoError(t, err)
	return buf
}

func TestTrackRootSuccess(t *testing.T) {
	s := newTestServer(t)
	ack, err := s.TrackRoot(context.Background(), &pb.TrackRootRequest{
		ClientPid: testClientPID,
		RootPid:   testRootPID,
		Fam:       validFAM(t),
	})
	require.NoError(t, err)
	assert.Equal(t, pb.CodeSuccess, ack.Code)

	got, ok := s.tr.Find(testRootPID)
	require.True(t, ok)
	assert.Equal(t, testClientPID, got.ClientPID)
}

func TestTrackRootMalformedManifestReturnsParseError(t *testing.T) {
	s := newTestServer(t)
	ack, err := s.TrackRoot(context.Background(), &pb.TrackRootRequest{
		ClientPid: testClientPID,
		RootPid:   testRootPID,
		Fam:       []byte("not a manifest"),
	})
	require.NoError(t, err)
	assert.Equal(t, pb.CodeParseError, ack.Code)
}

func TestTrackRootNestedBuildReusesRootPid(t *testing.T) {
	s := newTestServer(t)
	req := &pb.TrackRootRequest{ClientPid: testClientPID, RootPid: testRootPID, Fam: validFAM(t)}
	_, err := s.TrackRoot(context.Background(), req)
	require.NoError(t, err)
	first, ok := s.tr.Find(testRootPID)
	require.True(t, ok)

	ack, err := s.TrackRoot(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, pb.CodeSuccess, ack.Code, "a reused root_pid evicts the stale pip instead of being rejected (spec.md §4.E)")

	second, ok := s.tr.Find(testRootPID)
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, sandboxpip.Terminated, first.State())
}

func TestAllocateReportQueueUsesPendingSize(t *testing.T) {
	s := newTestServer(t)
	_, err := s.SetReportQueueSize(context.Background(), &pb.QueueSizeRequest{ClientPid: testClientPID, QueueSizeMib: 4})
	require.NoError(t, err)

	ack, err := s.AllocateReportQueue(context.Background(), &pb.ClientRequest{ClientPid: testClientPID})
	require.NoError(t, err)
	assert.Equal(t, pb.CodeSuccess, ack.Code)

	// A second allocation without SetReportQueueSize falls back to the default.
	ack2, err := s.AllocateReportQueue(context.Background(), &pb.ClientRequest{ClientPid: testClientPID})
	require.NoError(t, err)
	assert.Equal(t, pb.CodeSuccess, ack2.Code)
}

func TestNotificationPortAndDescriptorFlow(t *testing.T) {
	s := newTestServer(t)
	_, err := s.AllocateReportQueue(context.Background(), &pb.ClientRequest{ClientPid: testClientPID})
	require.NoError(t, err)

	ack, err := s.SetReportQueueNotificationPort(context.Background(), &pb.NotificationPortRequest{ClientPid: testClientPID, Port: 555})
	require.NoError(t, err)
	assert.Equal(t, pb.CodeSuccess, ack.Code)

	desc, err := s.GetReportQueueMemoryDescriptor(context.Background(), &pb.ClientRequest{ClientPid: testClientPID})
	require.NoError(t, err)
	assert.Equal(t, testClientPID, desc.ClientPid)
	assert.Equal(t, int32(0), desc.QueueIndex)
}

func TestFreeReportQueuesTerminatesTrackedPips(t *testing.T) {
	s := newTestServer(t)
	_, err := s.TrackRoot(context.Background(), &pb.TrackRootRequest{
		ClientPid: testClientPID,
		RootPid:   testRootPID,
		Fam:       validFAM(t),
	})
	require.NoError(t, err)

	ack, err := s.FreeReportQueues(context.Background(), &pb.ClientRequest{ClientPid: testClientPID})
	require.NoError(t, err)
	assert.Equal(t, pb.CodeSuccess, ack.Code)

	_, ok := s.tr.Find(testRootPID)
	assert.False(t, ok)
}

func TestIntrospectListsTrackedPips(t *testing.T) {
	s := newTestServer(t)
	_, err := s.TrackRoot(context.Background(), &pb.TrackRootRequest{
		ClientPid: testClientPID,
		RootPid:   testRootPID,
		Fam:       validFAM(t),
	})
	require.NoError(t, err)

	list, err := s.Introspect(context.Background(), &pb.Empty{})
	require.NoError(t, err)
	require.Len(t, list.Pips, 1)
	assert.Equal(t, testClientPID, list.Pips[0].ClientPid)
	assert.Equal(t, testRootPID, list.Pips[0].RootPid)
}

type denyAuthorizer struct{}

func (denyAuthorizer) Authorize(context.Context) error { return errors.New("denied") }

func TestUnauthorizedCallerIsRejected(t *testing.T) {
	q := reportqueue.New(nil)
	tr := tracker.New(nil, nil)
	io := clientio.New(q, tr, nil, 0, 0)
	s := New(io, tr, trie.NewArena(0), denyAuthorizer{}, nil)

	_, err := s.TrackRoot(context.Background(), &pb.TrackRootRequest{ClientPid: testClientPID, RootPid: testRootPID})
	require.Error(t, err)
}

func TestIntrospectBypassesAuthorization(t *testing.T) {
	q := reportqueue.New(nil)
	tr := tracker.New(nil, nil)
	io := clientio.New(q, tr, nil, 0, 0)
	s := New(io, tr, trie.NewArena(0), denyAuthorizer{}, nil)

	_, err := s.Introspect(context.Background(), &pb.Empty{})
	assert.NoError(t, err)
}
