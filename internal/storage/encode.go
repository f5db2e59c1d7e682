package storage

import (
	"bytes"
	"strings"

	"github.com/acme-corp/staging-pipeline/internal/ingestion"
)

// EncodeCSV renders a batch as UTF-8 delimited text: a header row, then one
// line per record, every field double-quoted with embedded quotes doubled.
// Quoting everything lets commas, quotes and newlines round-trip. Nulls are
// written as "".
func EncodeCSV(b *ingestion.Batch) []byte {
	var buf bytes.Buffer
	names := b.Schema.Names()
	writeRow(&buf, names)

	row := make([]string, len(names))
	for _, rec := range b.Records {
		for i, name := range names {
			row[i] = ingestion.FormatValue(rec.Data[name])
		}
		writeRow(&buf, row)
	}
	return buf.Bytes()
}

func writeRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}
