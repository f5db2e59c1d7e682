package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/acme-corp/staging-pipeline/internal/ingestion"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrEmptyBatch is returned when asked to write a batch with no records.
var ErrEmptyBatch = errors.New("refusing to write an empty batch")

const (
	timestampLayout = "20060102_150405"
	csvContentType  = "text/csv"
)

// Exists reports whether anything is stored under location. It is a
// metadata query only. Errors are returned so callers can tell "absent"
// from "could not tell".
func Exists(ctx context.Context, store Store, location string) (bool, error) {
	return store.Exists(ctx, location)
}

// ArtifactWriter materialises batches as new, uniquely named objects under
// a prefix. It never appends to or replaces an existing artifact.
type ArtifactWriter struct {
	Store  Store
	Prefix string
	// Now and NewID are swappable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewArtifactWriter(store Store, prefix string) *ArtifactWriter {
	return &ArtifactWriter{
		Store:  store,
		Prefix: prefix,
		Now:    time.Now,
		NewID:  newID,
	}
}

// newID is 12 hex characters of a random UUID.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ArtifactName is staged_<YYYYMMDD_HHMMSS>_<id>.csv. The timestamp keeps
// artifacts sortable; the id keeps two writes within one second apart.
func ArtifactName(kind string, now time.Time, id string) string {
	return fmt.Sprintf("%s_%s_%s.csv", kind, now.Format(timestampLayout), id)
}

// Write puts the batch as one artifact and returns its key. Failures are
// returned as is; there is no retry.
func (w *ArtifactWriter) Write(ctx context.Context, b *ingestion.Batch) (string, error) {
	if b.Empty() {
		return "", ErrEmptyBatch
	}
	key := joinKey(w.Prefix, ArtifactName("staged", w.Now(), w.NewID()))
	if err := w.Store.Put(ctx, key, EncodeCSV(b), csvContentType); err != nil {
		return "", errors.Wrapf(err, "writing artifact %v", w.Store.URL(key))
	}
	return key, nil
}

// quarantineSchema is the column layout of quarantine artifacts.
var quarantineSchema = ingestion.Schema{
	{Name: "source"},
	{Name: "line", Type: ingestion.TypeInt},
	{Name: "reason"},
	{Name: "raw"},
}

// WriteQuarantine stores corrupt rows under the writer's prefix as
// quarantined_<ts>_<id>.csv. The raw tokens are re-encoded as one CSV line,
// so a token holding a comma stays distinguishable from two tokens.
func (w *ArtifactWriter) WriteQuarantine(ctx context.Context, rows []ingestion.CorruptRow) (string, error) {
	if len(rows) == 0 {
		return "", ErrEmptyBatch
	}
	b := &ingestion.Batch{Schema: quarantineSchema}
	for _, r := range rows {
		b.Records = append(b.Records, ingestion.Record{Data: map[string]interface{}{
			"source": r.Source,
			"line":   int64(r.Line),
			"reason": r.Reason,
			"raw":    encodeLine(r.Raw),
		}})
	}
	key := joinKey(w.Prefix, ArtifactName("quarantined", w.Now(), w.NewID()))
	if err := w.Store.Put(ctx, key, EncodeCSV(b), csvContentType); err != nil {
		return "", errors.Wrapf(err, "writing quarantine %v", w.Store.URL(key))
	}
	return key, nil
}

// encodeLine renders tokens as a single CSV record without the line ending.
func encodeLine(tokens []string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	// Writes to a strings.Builder cannot fail.
	_ = w.Write(tokens)
	w.Flush()
	return strings.TrimSuffix(sb.String(), "\n")
}
