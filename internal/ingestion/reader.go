package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/acme-corp/staging-pipeline/internal/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ReadStatus says why a ReadResult holds what it holds.
type ReadStatus int

const (
	// ReadOK means at least one usable record was read.
	ReadOK ReadStatus = iota
	// ReadAbsent means nothing exists at the location.
	ReadAbsent
	// ReadEmpty means the location exists but yielded no usable records.
	ReadEmpty
	// ReadFailed means storage or parsing failed; Err holds the cause.
	ReadFailed
)

func (s ReadStatus) String() string {
	switch s {
	case ReadOK:
		return "ok"
	case ReadAbsent:
		return "absent"
	case ReadEmpty:
		return "empty"
	case ReadFailed:
		return "failed"
	}
	return fmt.Sprintf("ReadStatus(%d)", int(s))
}

// ReadResult is what Reader.Read returns instead of an error. Batch is
// never nil.
type ReadResult struct {
	Batch  *Batch
	Status ReadStatus
	Err    error

	// Corrupt is the number of quarantined rows; the rows themselves are
	// in Batch.Corrupt.
	Corrupt int
	// EmptyKey is the number of rows dropped for a null or empty key.
	EmptyKey int
	// KeyFiltered is false when the key column was missing, in which case
	// the batch cannot take part in key-based deduplication.
	KeyFiltered bool
}

// Reader loads a Batch from a storage location. It degrades every failure
// to an empty batch: callers get "no data", never an error.
type Reader struct {
	Objects ObjectReader
	// Key is the unique identifier column.
	Key string
	// InferSchema types columns from their values; off keeps strings.
	InferSchema bool
	// Parallelism bounds concurrent object fetches for directory reads.
	Parallelism int
	Log         logger.Logger
}

// NewReader returns a Reader with the default key and schema inference on.
func NewReader(objects ObjectReader, log logger.Logger) *Reader {
	return &Reader{
		Objects:     objects,
		Key:         "Key",
		InferSchema: true,
		Parallelism: 4,
		Log:         log,
	}
}

// Read loads every object at location. A location ending in "/" names a
// directory whose objects are unioned; otherwise it names a single object.
func (r *Reader) Read(ctx context.Context, location string) (res ReadResult) {
	log := r.logger()
	url := r.Objects.URL(location)

	defer func() {
		if p := recover(); p != nil {
			res = failed(errors.Errorf("panic reading %s: %v", url, p))
			log.Errorf("Failed to read from %s: %v. Returning empty batch.", url, p)
		}
	}()

	exists, err := r.Objects.Exists(ctx, location)
	if err != nil {
		log.Errorf("Failed to read from %s: %v. Returning empty batch.", url, err)
		return failed(errors.Wrapf(err, "checking %s", url))
	}
	if !exists {
		log.Warnf("Path does not exist: %s", url)
		return ReadResult{Batch: &Batch{}, Status: ReadAbsent}
	}

	tables, err := r.fetch(ctx, location)
	if err != nil && !strings.HasSuffix(location, "/") && errors.Is(err, ErrNotFound) {
		// Exists matches by prefix, so a sibling such as new.csv.bak can
		// make a missing object look present.
		log.Warnf("Path does not exist: %s", url)
		return ReadResult{Batch: &Batch{}, Status: ReadAbsent}
	}
	if err != nil {
		log.Errorf("Failed to read from %s: %v. Returning empty batch.", url, err)
		return failed(err)
	}

	batch := assemble(tables, r.InferSchema, r.Key)
	if batch.Len() == 0 && len(batch.Corrupt) == 0 {
		log.Warnf("No data read from %s", url)
		return ReadResult{Batch: &Batch{Sources: batch.Sources}, Status: ReadEmpty}
	}
	log.Infof("Schema of data read from %s: %s", url, describe(batch.Schema))

	res = ReadResult{Batch: batch, Corrupt: len(batch.Corrupt)}
	if res.Corrupt > 0 {
		log.Warnf("Found %d corrupt records in %s", res.Corrupt, url)
	}

	if batch.HasKey(r.Key) {
		kept := batch.Records[:0:0]
		for _, rec := range batch.Records {
			if _, ok := Key(rec, r.Key); ok {
				kept = append(kept, rec)
			}
		}
		res.EmptyKey = batch.Len() - len(kept)
		batch.Records = kept
		res.KeyFiltered = true
		log.Infof("Successfully read data from %s. Count after filtering: %d", url, batch.Len())
	} else {
		log.Warnf("'%s' column not found in %s. No filtering applied.", r.Key, url)
	}

	if batch.Empty() {
		res.Status = ReadEmpty
	}
	return res
}

func (r *Reader) fetch(ctx context.Context, location string) ([]*rawTable, error) {
	keys := []string{location}
	if strings.HasSuffix(location, "/") {
		var err error
		keys, err = r.Objects.List(ctx, location)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", r.Objects.URL(location))
		}
	}

	tables := make([]*rawTable, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	if r.Parallelism > 0 {
		g.SetLimit(r.Parallelism)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = errors.Errorf("panic parsing %s: %v", r.Objects.URL(key), p)
				}
			}()
			content, err := r.Objects.Get(ctx, key)
			if err != nil {
				return errors.Wrapf(err, "getting %s", r.Objects.URL(key))
			}
			tables[i], err = parseCSV(r.Objects.URL(key), content)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func (r *Reader) logger() logger.Logger {
	if r.Log == nil {
		return logger.NopLogger
	}
	return r.Log
}

func failed(err error) ReadResult {
	return ReadResult{Batch: &Batch{}, Status: ReadFailed, Err: err}
}

func describe(s Schema) string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
