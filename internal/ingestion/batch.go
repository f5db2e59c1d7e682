package ingestion

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
)

// FieldType is the inferred type of a column.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
	TypeBool
)

func (t FieldType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	default:
		return "string"
	}
}

// Field is one named, typed column.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the ordered set of columns of a Batch. It is inferred on every
// read; there is no schema contract across runs.
type Schema []Field

// Index returns the position of the named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Record is a single row: a mapping of column name to a scalar value.
// Values are nil (null), string, int64, float64 or bool. Column order lives
// in the owning Batch's Schema.
type Record struct {
	// Line is the 1-based line where the row started in its source, 0 for
	// records that were not parsed from a file.
	Line int
	Data map[string]interface{}
}

// CorruptRow is a row that could not be matched to the header and was
// quarantined instead of used.
type CorruptRow struct {
	Source string
	Line   int
	Raw    []string
	Reason string
}

// Batch is a collection of records read or written together.
type Batch struct {
	Schema  Schema
	Records []Record
	Corrupt []CorruptRow
	Sources []string
}

// NewBatch builds a batch from a column list and records. All columns are
// typed as strings; it is mostly useful for tests and producers that
// already hold decoded rows.
func NewBatch(columns []string, records ...map[string]interface{}) *Batch {
	b := &Batch{Schema: make(Schema, len(columns))}
	for i, c := range columns {
		b.Schema[i] = Field{Name: c}
	}
	for _, data := range records {
		b.Records = append(b.Records, Record{Data: data})
	}
	return b
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

func (b *Batch) Empty() bool { return b.Len() == 0 }

// HasKey reports whether the batch carries the key column at all.
func (b *Batch) HasKey(key string) bool {
	return b != nil && b.Schema.Has(key)
}

// Key returns the canonical text of rec's key value and whether it is
// usable, i.e. present, non-null and non-empty.
func Key(rec Record, key string) (string, bool) {
	v, ok := rec.Data[key]
	if !ok || v == nil {
		return "", false
	}
	s := FormatValue(v)
	return s, s != ""
}

// FormatValue renders a scalar the way it is written to an artifact. Keys
// are compared on this form so that a column inferred as int in one read
// and as string in another still joins.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	default:
		return ""
	}
}

// formatFloat is the shortest plain decimal that parses back to f.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Derive returns a batch holding records with b's schema and sources. Used
// by transforms that filter rows.
func (b *Batch) Derive(records []Record) *Batch {
	out := &Batch{Records: records}
	if b != nil {
		out.Schema = b.Schema
		out.Sources = b.Sources
	}
	return out
}

// ErrNotFound is what ObjectReader.Get returns, possibly wrapped, for a
// key that does not exist.
var ErrNotFound = errors.New("object does not exist")

// ObjectReader is the read side of a storage location.
type ObjectReader interface {
	// Exists reports whether any object lives under prefix.
	Exists(ctx context.Context, prefix string) (bool, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// URL renders key for logs.
	URL(key string) string
}
