package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// rawRow is a tokenised row whose width matched the header.
type rawRow struct {
	line   int
	fields []string
}

// rawTable is one parsed object before schema inference.
type rawTable struct {
	source  string
	header  []string
	rows    []rawRow
	corrupt []CorruptRow
}

// parseCSV tokenises delimited text permissively. The first row is the
// header. Quoted fields may span lines and contain commas or doubled
// quotes. Rows that fail tokenisation or whose width differs from the
// header are captured as CorruptRows; they never abort the parse.
func parseCSV(source string, content []byte) (*rawTable, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	t := &rawTable{source: source}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return t, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading header of %s", source)
	}
	t.header = normalizeHeader(header)

	lastOffset := r.InputOffset()
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, errors.Wrapf(err, "reading %s", source)
			}
			t.corrupt = append(t.corrupt, CorruptRow{
				Source: source,
				Line:   pe.StartLine,
				Raw:    row,
				Reason: pe.Err.Error(),
			})
			// csv.Reader always consumes the offending line, but don't
			// trust that blindly.
			if r.InputOffset() == lastOffset {
				break
			}
			lastOffset = r.InputOffset()
			continue
		}
		lastOffset = r.InputOffset()

		line, _ := r.FieldPos(0)
		if len(row) != len(t.header) {
			t.corrupt = append(t.corrupt, CorruptRow{
				Source: source,
				Line:   line,
				Raw:    row,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(t.header), len(row)),
			})
			continue
		}
		t.rows = append(t.rows, rawRow{line: line, fields: row})
	}
	return t, nil
}

// normalizeHeader names blank columns _c<i> and disambiguates repeated
// names by appending their position.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("_c%d", i)
		}
		seen[h]++
		out[i] = h
	}
	for i, h := range out {
		if seen[h] > 1 {
			out[i] = fmt.Sprintf("%s%d", h, i)
		}
	}
	return out
}
