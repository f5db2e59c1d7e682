package ingestion

import (
	"strconv"
	"strings"
)

// assemble unions the parsed tables into one Batch. Columns are ordered by
// first appearance; a table lacking a column contributes nulls for it.
// With infer set, each column gets the narrowest type that fits all of its
// non-null values, otherwise every column stays a string. The key column
// always stays a string so keys compare on their exact text.
func assemble(tables []*rawTable, infer bool, key string) *Batch {
	b := &Batch{}
	var columns []string
	index := map[string]int{}
	for _, t := range tables {
		b.Sources = append(b.Sources, t.source)
		b.Corrupt = append(b.Corrupt, t.corrupt...)
		for _, h := range t.header {
			if _, ok := index[h]; !ok {
				index[h] = len(columns)
				columns = append(columns, h)
			}
		}
	}

	types := make([]FieldType, len(columns))
	if infer {
		kinds := make([]kind, len(columns))
		for _, t := range tables {
			for _, row := range t.rows {
				for j, v := range row.fields {
					c := index[t.header[j]]
					kinds[c] = kinds[c].widen(classify(v))
				}
			}
		}
		for i, k := range kinds {
			if columns[i] != key {
				types[i] = k.fieldType()
			}
		}
	}

	b.Schema = make(Schema, len(columns))
	for i, c := range columns {
		b.Schema[i] = Field{Name: c, Type: types[i]}
	}

	for _, t := range tables {
		for _, row := range t.rows {
			data := make(map[string]interface{}, len(columns))
			for _, c := range columns {
				data[c] = nil
			}
			for j, v := range row.fields {
				name := t.header[j]
				data[name] = convert(v, types[index[name]])
			}
			b.Records = append(b.Records, Record{Line: row.line, Data: data})
		}
	}
	return b
}

// kind tracks the inference lattice for a column:
// unknown < bool, unknown < int < wideInt < float < string. bool joined
// with anything numeric is string, and so is wideInt joined with float,
// since those integers have no exact float64.
type kind int

const (
	kindUnknown kind = iota
	kindBool
	kindInt
	kindWideInt
	kindFloat
	kindString
)

// maxExactInt is the largest magnitude float64 holds exactly.
const maxExactInt = 1 << 53

func (k kind) widen(o kind) kind {
	switch {
	case o == kindUnknown || k == o:
		return k
	case k == kindUnknown:
		return o
	case k == kindBool || o == kindBool:
		return kindString
	case k == kindWideInt && o == kindFloat, k == kindFloat && o == kindWideInt:
		return kindString
	case k > o:
		return k
	default:
		return o
	}
}

func (k kind) fieldType() FieldType {
	switch k {
	case kindBool:
		return TypeBool
	case kindInt, kindWideInt:
		return TypeInt
	case kindFloat:
		return TypeFloat
	default:
		return TypeString
	}
}

// classify types a value only when formatting the parsed value gives back
// the exact text, so writing a record never alters it. Leading zeros,
// exponents, trailing decimal zeros and out-of-range integers stay strings.
func classify(s string) kind {
	if s == "" {
		return kindUnknown
	}
	if s == "true" || s == "false" {
		return kindBool
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if strconv.FormatInt(i, 10) != s {
			return kindString
		}
		if i > maxExactInt || i < -maxExactInt {
			return kindWideInt
		}
		return kindInt
	}
	if isDecimal(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && formatFloat(f) == s {
			return kindFloat
		}
	}
	return kindString
}

// isDecimal rejects the spellings ParseFloat accepts that a CSV producer
// would not mean as numbers (Inf, NaN, hex floats, underscores).
func isDecimal(s string) bool {
	return strings.Trim(s, "0123456789.eE+-") == ""
}

func convert(s string, t FieldType) interface{} {
	if s == "" {
		return nil
	}
	switch t {
	case TypeInt:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	case TypeFloat:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	case TypeBool:
		if v, err := strconv.ParseBool(s); err == nil {
			return v
		}
	}
	return s
}
