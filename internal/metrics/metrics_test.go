package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/xrayreport/internal/types"
)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.SpecCompleted(types.StatusPass)
	c.SpecCompleted(types.StatusPass)
	c.SpecCompleted(types.StatusFail)
	c.EvidenceGathered(2, 150*time.Millisecond)
	c.PendingSpecs(3)
	c.PendingSpecs(1)
	c.Delivered(time.Second, nil)
	c.Delivered(time.Second, errors.New("down"))

	require.Equal(t, 2.0, testutil.ToFloat64(c.specsTotal.WithLabelValues("PASS")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.specsTotal.WithLabelValues("FAIL")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.evidenceTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(c.pendingSpecs))
	require.Equal(t, 1.0, testutil.ToFloat64(c.deliveriesTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.deliveriesTotal.WithLabelValues("failure")))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.SpecCompleted(types.StatusTodo)
	path := filepath.Join(t.TempDir(), "metrics", "xrayreport.prom")
	require.NoError(t, c.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# TYPE xrayreport_specs_total counter")
	require.Contains(t, string(data), `xrayreport_specs_total{status="TODO"} 1`)
	require.Contains(t, string(data), "xrayreport_pending_specs 0")
}
