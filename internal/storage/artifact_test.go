package storage

import (
	"context"
	"testing"
	"time"

	"github.com/acme-corp/staging-pipeline/internal/ingestion"
	"github.com/acme-corp/staging-pipeline/internal/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 17, 9, 5, 3, 0, time.UTC)

func newTestWriter(store Store, prefix string, ids ...string) *ArtifactWriter {
	w := NewArtifactWriter(store, prefix)
	w.Now = func() time.Time { return fixedNow }
	w.NewID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	return w
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "staged_20261017_090503_abc123.csv", ArtifactName("staged", fixedNow, "abc123"))
	assert.Len(t, newID(), 12)
	assert.NotEqual(t, newID(), newID())
}

func TestEncodeCSV(t *testing.T) {
	b := &ingestion.Batch{
		Schema: ingestion.Schema{{Name: "Key"}, {Name: "Summary"}, {Name: "Points", Type: ingestion.TypeInt}},
		Records: []ingestion.Record{
			{Data: map[string]interface{}{"Key": "A", "Summary": `say "hi", then`, "Points": int64(3)}},
			{Data: map[string]interface{}{"Key": "B", "Summary": "two\nlines", "Points": nil}},
		},
	}
	want := "\"Key\",\"Summary\",\"Points\"\n" +
		"\"A\",\"say \"\"hi\"\", then\",\"3\"\n" +
		"\"B\",\"two\nlines\",\"\"\n"
	assert.Equal(t, want, string(EncodeCSV(b)))
}

func TestArtifactWriterSameSecond(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	w := newTestWriter(store, "staged/", "aaaaaaaaaaaa", "bbbbbbbbbbbb")

	b := ingestion.NewBatch([]string{"Key"}, map[string]interface{}{"Key": "A"})
	first, err := w.Write(ctx, b)
	require.NoError(t, err)
	second, err := w.Write(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, "staged/staged_20261017_090503_aaaaaaaaaaaa.csv", first)
	assert.Equal(t, "staged/staged_20261017_090503_bbbbbbbbbbbb.csv", second)

	keys, err := store.List(ctx, "staged/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestArtifactWriterRejectsEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	w := NewArtifactWriter(store, "staged/")

	_, err = w.Write(context.Background(), &ingestion.Batch{})
	assert.Equal(t, ErrEmptyBatch, err)

	ok, err := store.Exists(context.Background(), "staged/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArtifactWriterPropagatesPutFailure(t *testing.T) {
	fake := newFakeS3("tickets")
	fake.putErr = assert.AnError
	w := newTestWriter(NewS3Store(fake, "tickets", ""), "staged/", "cccccccccccc")

	b := ingestion.NewBatch([]string{"Key"}, map[string]interface{}{"Key": "A"})
	_, err := w.Write(context.Background(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing artifact s3://tickets/staged/staged_20261017_090503_cccccccccccc.csv")
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	w := newTestWriter(store, "staged/", "dddddddddddd")

	in := &ingestion.Batch{
		Schema: ingestion.Schema{
			{Name: "Key"},
			{Name: "Summary"},
			{Name: "Points", Type: ingestion.TypeInt},
		},
		Records: []ingestion.Record{
			{Data: map[string]interface{}{"Key": "PROJ-1", "Summary": "commas, everywhere", "Points": int64(5)}},
			{Data: map[string]interface{}{"Key": "PROJ-2", "Summary": `quoted "word"`, "Points": nil}},
			{Data: map[string]interface{}{"Key": "PROJ-3", "Summary": "line one\nline two\r\nline three", "Points": int64(8)}},
		},
	}
	key, err := w.Write(ctx, in)
	require.NoError(t, err)

	res := ingestion.NewReader(store, logger.NewLogfLogger(t)).Read(ctx, key)
	require.Equal(t, ingestion.ReadOK, res.Status)
	assert.Equal(t, 0, res.Corrupt)
	assert.Equal(t, in.Schema, res.Batch.Schema)

	got := make([]map[string]interface{}, res.Batch.Len())
	for i, rec := range res.Batch.Records {
		got[i] = rec.Data
	}
	want := []map[string]interface{}{
		in.Records[0].Data,
		in.Records[1].Data,
		// encoding/csv folds \r\n inside quoted fields to \n.
		{"Key": "PROJ-3", "Summary": "line one\nline two\nline three", "Points": int64(8)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteQuarantine(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	w := newTestWriter(store, "quarantine/", "eeeeeeeeeeee")

	key, err := w.WriteQuarantine(ctx, []ingestion.CorruptRow{
		{Source: "file:///in/new.csv", Line: 7, Raw: []string{"a", "b", "c"}, Reason: "expected 2 fields, got 3"},
		{Source: "file:///in/new.csv", Line: 9, Raw: []string{"a,b", `say "hi"`}, Reason: "expected 3 fields, got 2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "quarantine/quarantined_20261017_090503_eeeeeeeeeeee.csv", key)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "\"source\",\"line\",\"reason\",\"raw\"\n"+
		"\"file:///in/new.csv\",\"7\",\"expected 2 fields, got 3\",\"a,b,c\"\n"+
		"\"file:///in/new.csv\",\"9\",\"expected 3 fields, got 2\",\"\"\"a,b\"\",\"\"say \"\"\"\"hi\"\"\"\"\"\"\"\n", string(data))

	assert.Equal(t, `"a,b","say ""hi"""`, encodeLine([]string{"a,b", `say "hi"`}))
	assert.Equal(t, "a,b,c", encodeLine([]string{"a", "b", "c"}))
}
