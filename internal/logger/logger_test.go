package logger

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardLoggerVerbosity(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(&buf)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warnf("careful")
	l.Errorf("broken")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO:  shown 2")
	assert.Contains(t, out, "WARN:  careful")
	assert.Contains(t, out, "ERROR: broken")

	buf.Reset()
	NewVerboseLogger(&buf).Debugf("now visible")
	assert.Contains(t, buf.String(), "DEBUG: now visible")
}

func TestStandardLoggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(&buf).WithPrefix("reader: ").WithPrefix("staged/ ")
	l.Infof("read %d rows", 3)
	assert.Contains(t, buf.String(), "INFO:  reader: staged/ read 3 rows")
}

func TestBufferLogger(t *testing.T) {
	b := NewBufferLogger()
	b.Warnf("one")
	b.WithPrefix("p: ").Errorf("two")

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	assert.Equal(t, []string{"WARN:  one", "ERROR: p: two"}, lines)
}

func TestNopLogger(t *testing.T) {
	assert.Equal(t, NopLogger, NopLogger.WithPrefix("x"))
}

type recordingT struct{ lines []string }

func (r *recordingT) Logf(format string, v ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

func TestLogfLogger(t *testing.T) {
	rec := &recordingT{}
	l := NewLogfLogger(rec).WithPrefix("writer: ")
	l.Debugf("100%% of %d", 4)
	l.Errorf("put failed")
	assert.Equal(t, []string{"DEBUG: writer: 100% of 4", "ERROR: writer: put failed"}, rec.lines)
}

func TestNewVerbosity(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)
	l.Infof("dropped")
	l.Warnf("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	require.Equal(t, 1, strings.Count(out, "\n"))
	_, err := time.Parse(TimeLayout, strings.Fields(out)[0])
	assert.NoError(t, err)
}
