package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersSnapshotIsConsistent(t *testing.T) {
	c := &Counters{}
	c.IncIssuesHandled()
	c.IncIssuesHandled()
	c.IncTheftReportsFiled()

	snap := c.Snapshot()
	require.Equal(t, int64(2), snap.IssuesHandled)
	require.Equal(t, int64(1), snap.TheftReportsFiled)
	require.Equal(t, int64(0), snap.RedeemsHandled)
}
