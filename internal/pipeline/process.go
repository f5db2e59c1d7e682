package pipeline

import (
	"context"
	"time"

	"github.com/acme-corp/staging-pipeline/internal/ingestion"
	"github.com/acme-corp/staging-pipeline/internal/storage"
	"github.com/acme-corp/staging-pipeline/internal/transform"
	"github.com/pkg/errors"
)

// Process runs one input through
//
//	READ_INCOMING -> CHECK_STAGING_EXISTS -> READ_STAGING -> DEDUPE -> WRITE_ARTIFACT -> DONE
//
// stopping early when the input has nothing usable or nothing is new. Read
// problems never fail the run; they show up in the Outcome and the logs.
// The returned error is non-nil only when the new artifact could not be
// written, when ctx ends before the write, or when the session is not
// running.
func (s *Session) Process(ctx context.Context, input string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessionRunning {
		return nil, ErrSessionClosed
	}

	out := &Outcome{Input: s.store.URL(input)}
	out.visit(StateStart)
	s.log.Infof("Processing file: %s", out.Input)

	out.visit(StateReadIncoming)
	incoming := s.readIncoming(ctx, input, out)
	if ctx.Err() != nil {
		return s.cancelled(ctx, out)
	}
	if incoming.Empty() {
		s.log.Errorf("No valid data found in unprocessed data: %s", out.Input)
		s.metrics.NoValidInput()
		out.Status = StatusNoValidInput
		out.visit(StateStopped)
		return out, nil
	}

	reference := s.readReference(ctx, out)
	if ctx.Err() != nil {
		return s.cancelled(ctx, out)
	}

	out.visit(StateDedupe)
	start := time.Now()
	res := transform.Dedupe(incoming, reference, s.dedupe)
	s.metrics.TrackStageDuration("dedupe", time.Since(start))
	out.AlreadyStaged = res.AlreadyStaged
	out.IntraBatchDuplicates = res.IntraBatchDuplicates
	s.metrics.RecordAlreadyStaged(int64(res.AlreadyStaged))
	s.metrics.RecordIntraBatchDup(int64(res.IntraBatchDuplicates))
	if res.IntraBatchDuplicates > 0 {
		s.log.Warnf("Dropped %d records repeating a key within %s (policy: keep %s)",
			res.IntraBatchDuplicates, out.Input, s.dedupe.Policy)
	}

	if res.Batch.Empty() {
		s.log.Infof("No new records found. Exiting without writing output.")
		s.metrics.NothingNew()
		out.Status = StatusNothingNew
		out.visit(StateDone)
		return out, nil
	}

	if ctx.Err() != nil {
		return s.cancelled(ctx, out)
	}
	out.visit(StateWriteArtifact)
	start = time.Now()
	key, err := s.staged.Write(ctx, res.Batch)
	s.metrics.TrackStageDuration("write_artifact", time.Since(start))
	if err != nil && ctx.Err() != nil {
		return s.cancelled(ctx, out)
	}
	if err != nil {
		s.log.Errorf("Failed to write %d new records from %s: %v", res.Batch.Len(), out.Input, err)
		out.Status = StatusWriteFailed
		return out, errors.Wrapf(err, "staging %d new records from %s", res.Batch.Len(), out.Input)
	}

	out.Written = res.Batch.Len()
	out.ArtifactPath = s.store.URL(key)
	s.metrics.RecordWritten(int64(out.Written))
	s.metrics.ArtifactWritten()
	s.log.Infof("Wrote %d new records to %s", out.Written, out.ArtifactPath)

	out.Status = StatusWritten
	out.visit(StateDone)
	return out, nil
}

// cancelled stops the run without writing. A read cut short by ctx must not
// be mistaken for an absent or unusable staging area.
func (s *Session) cancelled(ctx context.Context, out *Outcome) (*Outcome, error) {
	err := ctx.Err()
	s.log.Warnf("Processing of %s stopped: %v. Nothing was written.", out.Input, err)
	out.Status = StatusCancelled
	out.visit(StateStopped)
	return out, errors.Wrapf(err, "processing %s", out.Input)
}

// readIncoming reads the input and quarantines its corrupt rows.
func (s *Session) readIncoming(ctx context.Context, input string, out *Outcome) *ingestion.Batch {
	start := time.Now()
	res := s.reader.Read(ctx, input)
	s.metrics.TrackStageDuration("read_incoming", time.Since(start))

	out.Corrupt = res.Corrupt
	out.EmptyKey = res.EmptyKey
	out.Incoming = res.Batch.Len()
	s.metrics.RecordRead(int64(out.Incoming))
	s.metrics.RecordCorrupt(int64(res.Corrupt))
	s.metrics.RecordEmptyKey(int64(res.EmptyKey))

	switch res.Status {
	case ingestion.ReadFailed:
		out.InputErr = res.Err
		s.metrics.ReadFailed()
	case ingestion.ReadAbsent:
		out.InputErr = errors.Errorf("%s does not exist", out.Input)
	}
	if res.Status == ingestion.ReadOK && !res.KeyFiltered {
		s.log.Warnf("'%s' column is missing from %s. All of its records will be treated as new.", s.cfg.KeyField, out.Input)
	}

	if ctx.Err() == nil {
		s.writeQuarantine(ctx, res.Batch.Corrupt, out)
	}
	return res.Batch
}

// writeQuarantine keeps corrupt rows for inspection. It is best effort:
// failing to write them does not fail the run.
func (s *Session) writeQuarantine(ctx context.Context, rows []ingestion.CorruptRow, out *Outcome) {
	if s.quarantine == nil || len(rows) == 0 {
		return
	}
	key, err := s.quarantine.WriteQuarantine(ctx, rows)
	if err != nil {
		s.log.Warnf("Could not quarantine %d corrupt records from %s: %v", len(rows), out.Input, err)
		return
	}
	out.QuarantinePath = s.store.URL(key)
	s.metrics.QuarantineWritten()
	s.log.Infof("Quarantined %d corrupt records to %s", len(rows), out.QuarantinePath)
}

// readReference loads the staging area, or returns an empty batch when it
// cannot be used for deduplication, in which case every incoming record
// counts as new. When ctx ends it returns at once and leaves the decision
// to Process.
func (s *Session) readReference(ctx context.Context, out *Outcome) *ingestion.Batch {
	empty := &ingestion.Batch{}
	prefix := s.cfg.StagingPrefix

	out.visit(StateCheckStaging)
	exists, err := storage.Exists(ctx, s.store, prefix)
	if ctx.Err() != nil {
		return empty
	}
	if err != nil {
		s.log.Errorf("Could not check staged data path %s: %v. Treating all unprocessed data as new.", s.store.URL(prefix), err)
		s.metrics.ReadFailed()
		out.Staging = StagingUnusable
		out.StagingErr = err
		return empty
	}
	if !exists {
		s.log.Infof("Staged data path does not exist. Treating all unprocessed data as new.")
		out.Staging = StagingAbsent
		return empty
	}

	out.visit(StateReadStaging)
	start := time.Now()
	res := s.reader.Read(ctx, prefix)
	s.metrics.TrackStageDuration("read_staging", time.Since(start))
	if ctx.Err() != nil {
		return empty
	}

	switch {
	case res.Status == ingestion.ReadFailed:
		s.log.Warnf("Staged data could not be read: %v. Treating all unprocessed data as new.", res.Err)
		s.metrics.ReadFailed()
		out.Staging = StagingUnusable
		out.StagingErr = res.Err
		return empty
	case res.Batch.Empty():
		s.log.Warnf("No existing staged data found. Treating all unprocessed data as new.")
		out.Staging = StagingUnusable
		return empty
	case !res.Batch.HasKey(s.cfg.KeyField):
		s.log.Warnf("'%s' column is missing from staged data. Treating all unprocessed data as new.", s.cfg.KeyField)
		out.Staging = StagingUnusable
		return empty
	}

	out.Staging = StagingUsed
	out.StagedRecords = res.Batch.Len()
	return res.Batch
}
