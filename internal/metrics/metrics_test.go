package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/internal/reportqueue"
	"github.com/ocx/sandboxcore/internal/sandboxpip"
	"github.com/ocx/sandboxcore/internal/tracker"
	"github.com/ocx/sandboxcore/internal/trie"
	"github.com/ocx/sandboxcore/internal/wire"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	return m.GetCounter().GetValue()
}

func TestOnTerminatedFoldsCounterSnapshot(t *testing.T) {
	tr := tracker.New(nil, nil)
	q := reportqueue.New(nil)
	reg := prometheus.NewRegistry()
	r := New(tr, q, reg)

	m := &fam.Manifest{
		RootProcessPath: "/bin/tool",
		ScopeRoot:       &fam.ScopeNode{PolicyMask: fam.AllowAll, ConePolicy: fam.AllowAll},
		Salt:            []byte{},
	}
	buf, err := fam.Serialize(m)
	require.NoError(t, err)
	pip, err := sandboxpip.New(1, 100, buf, trie.NewArena(0))
	require.NoError(t, err)

	pip.Counters.IncrReports()
	pip.Counters.IncrReports()
	pip.Counters.IncrDenials()

	r.OnTerminated(pip, wire.ReasonTimeout)

	assert := require.New(t)
	assert.Equal(float64(2), counterValue(t, r.reports))
	assert.Equal(float64(1), counterValue(t, r.denials))
	assert.Equal(float64(1), counterValue(t, r.treesCompleted.WithLabelValues("timeout")))
}
