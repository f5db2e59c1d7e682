package transform

import (
	"fmt"
	"strings"

	"github.com/acme-corp/staging-pipeline/internal/ingestion"
)

// DuplicatePolicy decides what happens to repeated keys inside one
// incoming batch.
type DuplicatePolicy int

const (
	// KeepFirst keeps the earliest row for each key.
	KeepFirst DuplicatePolicy = iota
	// KeepLast keeps the latest row for each key, at that row's position.
	KeepLast
	// KeepAll leaves repeated keys alone; only rows already in the
	// reference are removed.
	KeepAll
)

func (p DuplicatePolicy) String() string {
	switch p {
	case KeepFirst:
		return "first"
	case KeepLast:
		return "last"
	case KeepAll:
		return "all"
	}
	return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
}

// ParseDuplicatePolicy accepts "first", "last" or "all".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "":
		return KeepFirst, nil
	case "last":
		return KeepLast, nil
	case "all":
		return KeepAll, nil
	}
	return KeepFirst, fmt.Errorf("unknown duplicate policy %q (want first, last or all)", s)
}

// Options configures Dedupe.
type Options struct {
	Key    string
	Policy DuplicatePolicy
}

// Result reports what Dedupe removed and why.
type Result struct {
	Batch *ingestion.Batch
	// Incoming is the size of the incoming batch.
	Incoming int
	// ReferenceKeys is the number of distinct keys in the reference, or 0
	// when the reference could not be used.
	ReferenceKeys int
	// AlreadyStaged counts rows removed because the reference has their key.
	AlreadyStaged int
	// IntraBatchDuplicates counts rows removed by the duplicate policy.
	IntraBatchDuplicates int
}

// Dedupe returns the rows of incoming that are genuinely new: it anti-joins
// against reference on opts.Key and then collapses repeated keys according
// to opts.Policy. Neither input is modified.
func Dedupe(incoming, reference *ingestion.Batch, opts Options) Result {
	res := Result{Incoming: incoming.Len()}

	joined := AntiJoin(incoming, reference, opts.Key)
	if usable(reference, opts.Key) {
		res.ReferenceKeys = len(keySet(reference, opts.Key))
	}
	res.AlreadyStaged = incoming.Len() - joined.Len()

	res.Batch = Distinct(joined, opts.Key, opts.Policy)
	res.IntraBatchDuplicates = joined.Len() - res.Batch.Len()
	return res
}

// AntiJoin returns every row of incoming whose key does not appear in
// reference. When reference is empty or has no key column the result holds
// all of incoming. Rows of incoming without a usable key are kept; the
// reader has normally dropped them already.
func AntiJoin(incoming, reference *ingestion.Batch, key string) *ingestion.Batch {
	if !usable(reference, key) || !incoming.HasKey(key) {
		return incoming.Derive(append([]ingestion.Record(nil), recordsOf(incoming)...))
	}

	seen := keySet(reference, key)
	out := make([]ingestion.Record, 0, incoming.Len())
	for _, rec := range incoming.Records {
		if k, ok := ingestion.Key(rec, key); ok {
			if _, dup := seen[k]; dup {
				continue
			}
		}
		out = append(out, rec)
	}
	return incoming.Derive(out)
}

// Distinct collapses rows sharing a key according to policy. Rows without
// a usable key are never collapsed.
func Distinct(b *ingestion.Batch, key string, policy DuplicatePolicy) *ingestion.Batch {
	if policy == KeepAll || !b.HasKey(key) {
		return b.Derive(append([]ingestion.Record(nil), recordsOf(b)...))
	}

	keep := make([]bool, b.Len())
	pos := make(map[string]int, b.Len())
	for i, rec := range b.Records {
		k, ok := ingestion.Key(rec, key)
		if !ok {
			keep[i] = true
			continue
		}
		prev, dup := pos[k]
		switch {
		case !dup:
			pos[k] = i
			keep[i] = true
		case policy == KeepLast:
			keep[prev] = false
			pos[k] = i
			keep[i] = true
		}
	}

	out := make([]ingestion.Record, 0, len(pos))
	for i, rec := range b.Records {
		if keep[i] {
			out = append(out, rec)
		}
	}
	return b.Derive(out)
}

func usable(b *ingestion.Batch, key string) bool {
	return !b.Empty() && b.HasKey(key)
}

func keySet(b *ingestion.Batch, key string) map[string]struct{} {
	set := make(map[string]struct{}, b.Len())
	for _, rec := range b.Records {
		if k, ok := ingestion.Key(rec, key); ok {
			set[k] = struct{}{}
		}
	}
	return set
}

func recordsOf(b *ingestion.Batch) []ingestion.Record {
	if b == nil {
		return nil
	}
	return b.Records
}
