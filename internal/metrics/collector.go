package metrics

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector gathers pipeline metrics using atomic counters for lock-free
// updates. One Collector may outlive several runs of a session.
type Collector struct {
	recordsRead        atomic.Int64
	recordsCorrupt     atomic.Int64
	recordsEmptyKey    atomic.Int64
	recordsStaged      atomic.Int64
	recordsIntraDup    atomic.Int64
	recordsWritten     atomic.Int64
	artifactsWritten   atomic.Int64
	readFailures       atomic.Int64
	runsNothingNew     atomic.Int64
	runsNoValidInput   atomic.Int64
	quarantinesWritten atomic.Int64

	stageDurations map[string]*durationTracker
	mu             sync.RWMutex

	startTime time.Time
}

type durationTracker struct {
	total time.Duration
	count int64
	mu    sync.Mutex
}

func NewCollector() *Collector {
	return &Collector{
		stageDurations: make(map[string]*durationTracker),
		startTime:      time.Now(),
	}
}

func (c *Collector) RecordRead(n int64)          { c.recordsRead.Add(n) }
func (c *Collector) RecordCorrupt(n int64)       { c.recordsCorrupt.Add(n) }
func (c *Collector) RecordEmptyKey(n int64)      { c.recordsEmptyKey.Add(n) }
func (c *Collector) RecordAlreadyStaged(n int64) { c.recordsStaged.Add(n) }
func (c *Collector) RecordIntraBatchDup(n int64) { c.recordsIntraDup.Add(n) }
func (c *Collector) RecordWritten(n int64)       { c.recordsWritten.Add(n) }
func (c *Collector) ArtifactWritten()            { c.artifactsWritten.Add(1) }
func (c *Collector) QuarantineWritten()          { c.quarantinesWritten.Add(1) }
func (c *Collector) ReadFailed()                 { c.readFailures.Add(1) }
func (c *Collector) NothingNew()                 { c.runsNothingNew.Add(1) }
func (c *Collector) NoValidInput()               { c.runsNoValidInput.Add(1) }

// TrackStageDuration records how long a named stage took.
func (c *Collector) TrackStageDuration(stage string, d time.Duration) {
	c.mu.RLock()
	tracker, ok := c.stageDurations[stage]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		// Double-check after acquiring write lock
		if tracker, ok = c.stageDurations[stage]; !ok {
			tracker = &durationTracker{}
			c.stageDurations[stage] = tracker
		}
		c.mu.Unlock()
	}

	tracker.mu.Lock()
	tracker.total += d
	tracker.count++
	tracker.mu.Unlock()
}

// Snapshot represents a point-in-time view of pipeline metrics.
type Snapshot struct {
	RecordsRead          int64             `json:"records_read"`
	RecordsCorrupt       int64             `json:"records_corrupt"`
	RecordsEmptyKey      int64             `json:"records_empty_key"`
	RecordsAlreadyStaged int64             `json:"records_already_staged"`
	RecordsIntraBatchDup int64             `json:"records_intra_batch_duplicate"`
	RecordsWritten       int64             `json:"records_written"`
	ArtifactsWritten     int64             `json:"artifacts_written"`
	QuarantinesWritten   int64             `json:"quarantines_written"`
	ReadFailures         int64             `json:"read_failures"`
	RunsNothingNew       int64             `json:"runs_nothing_new"`
	RunsNoValidInput     int64             `json:"runs_no_valid_input"`
	Uptime               string            `json:"uptime"`
	AvgStageDuration     map[string]string `json:"avg_stage_duration_ms"`
}

// Snapshot returns a consistent view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	avgDurations := make(map[string]string)
	c.mu.RLock()
	for stage, tracker := range c.stageDurations {
		tracker.mu.Lock()
		if tracker.count > 0 {
			avg := tracker.total / time.Duration(tracker.count)
			avgDurations[stage] = fmt.Sprintf("%.2fms", float64(avg.Microseconds())/1000)
		}
		tracker.mu.Unlock()
	}
	c.mu.RUnlock()

	return Snapshot{
		RecordsRead:          c.recordsRead.Load(),
		RecordsCorrupt:       c.recordsCorrupt.Load(),
		RecordsEmptyKey:      c.recordsEmptyKey.Load(),
		RecordsAlreadyStaged: c.recordsStaged.Load(),
		RecordsIntraBatchDup: c.recordsIntraDup.Load(),
		RecordsWritten:       c.recordsWritten.Load(),
		ArtifactsWritten:     c.artifactsWritten.Load(),
		QuarantinesWritten:   c.quarantinesWritten.Load(),
		ReadFailures:         c.readFailures.Load(),
		RunsNothingNew:       c.runsNothingNew.Load(),
		RunsNoValidInput:     c.runsNoValidInput.Load(),
		Uptime:               time.Since(c.startTime).Round(time.Second).String(),
		AvgStageDuration:     avgDurations,
	}
}

// JSON returns the snapshot as formatted JSON.
func (c *Collector) JSON() (string, error) {
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Register exposes the counters as prometheus metrics on reg. The values
// are read from the atomics at scrape time.
func (c *Collector) Register(reg prometheus.Registerer) error {
	counters := []struct {
		name, help string
		v          *atomic.Int64
	}{
		{"records_read_total", "Valid records read from incoming batches.", &c.recordsRead},
		{"records_corrupt_total", "Rows quarantined as corrupt.", &c.recordsCorrupt},
		{"records_empty_key_total", "Rows dropped for a null or empty key.", &c.recordsEmptyKey},
		{"records_already_staged_total", "Incoming records whose key was already staged.", &c.recordsStaged},
		{"records_intra_batch_duplicate_total", "Incoming records dropped as duplicates within their batch.", &c.recordsIntraDup},
		{"records_written_total", "Records written to new staging artifacts.", &c.recordsWritten},
		{"artifacts_written_total", "Staging artifacts written.", &c.artifactsWritten},
		{"quarantines_written_total", "Quarantine artifacts written.", &c.quarantinesWritten},
		{"read_failures_total", "Reads that degraded to an empty batch because of an error.", &c.readFailures},
		{"runs_nothing_new_total", "Runs that found nothing new to stage.", &c.runsNothingNew},
		{"runs_no_valid_input_total", "Runs whose input produced no usable records.", &c.runsNoValidInput},
	}
	for _, ctr := range counters {
		v := ctr.v
		err := reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "stagededup",
			Name:      ctr.name,
			Help:      ctr.help,
		}, func() float64 { return float64(v.Load()) }))
		if err != nil {
			return fmt.Errorf("registering %s: %w", ctr.name, err)
		}
	}
	return nil
}
