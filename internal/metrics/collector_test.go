package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	c.RecordRead(10)
	c.RecordCorrupt(2)
	c.RecordWritten(7)
	c.ArtifactWritten()
	c.TrackStageDuration("read_incoming", 2*time.Millisecond)
	c.TrackStageDuration("read_incoming", 4*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, int64(10), snap.RecordsRead)
	assert.Equal(t, int64(2), snap.RecordsCorrupt)
	assert.Equal(t, int64(7), snap.RecordsWritten)
	assert.Equal(t, int64(1), snap.ArtifactsWritten)
	assert.Equal(t, "3.00ms", snap.AvgStageDuration["read_incoming"])

	js, err := c.JSON()
	require.NoError(t, err)
	assert.Contains(t, js, `"records_written": 7`)
}

func TestCollectorRegister(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.RecordWritten(3)
	c.RecordAlreadyStaged(5)

	expected := `
# HELP stagededup_records_written_total Records written to new staging artifacts.
# TYPE stagededup_records_written_total counter
stagededup_records_written_total 3
# HELP stagededup_records_already_staged_total Incoming records whose key was already staged.
# TYPE stagededup_records_already_staged_total counter
stagededup_records_already_staged_total 5
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"stagededup_records_written_total", "stagededup_records_already_staged_total")
	assert.NoError(t, err)

	assert.Error(t, c.Register(reg), "double registration is rejected")
}
