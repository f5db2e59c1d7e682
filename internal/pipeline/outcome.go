package pipeline

import "fmt"

// State is a step of a run. A run only ever moves forward through them.
type State string

const (
	StateStart         State = "START"
	StateReadIncoming  State = "READ_INCOMING"
	StateCheckStaging  State = "CHECK_STAGING_EXISTS"
	StateReadStaging   State = "READ_STAGING"
	StateDedupe        State = "DEDUPE"
	StateWriteArtifact State = "WRITE_ARTIFACT"
	StateDone          State = "DONE"
	StateStopped       State = "STOP"
)

// Status is how a run ended.
type Status int

const (
	// StatusWritten means a new artifact holds the new records.
	StatusWritten Status = iota
	// StatusNothingNew means every incoming record was already staged.
	// This is success.
	StatusNothingNew
	// StatusNoValidInput means the input yielded no usable records: it was
	// missing, empty, unreadable or entirely corrupt.
	StatusNoValidInput
	// StatusWriteFailed means new records were found but could not be
	// persisted.
	StatusWriteFailed
	// StatusCancelled means the context ended before the run finished.
	// Nothing was written.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusWritten:
		return "written"
	case StatusNothingNew:
		return "nothing new"
	case StatusNoValidInput:
		return "no valid input"
	case StatusWriteFailed:
		return "write failed"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// StagingState records what the run could make of the staging area.
type StagingState int

const (
	// StagingNotChecked means the run stopped before looking.
	StagingNotChecked StagingState = iota
	// StagingAbsent means nothing has been staged yet.
	StagingAbsent
	// StagingUnusable means the area exists but was empty, unreadable or
	// had no key column, so every incoming record counted as new.
	StagingUnusable
	// StagingUsed means incoming records were deduplicated against it.
	StagingUsed
)

func (s StagingState) String() string {
	switch s {
	case StagingNotChecked:
		return "not checked"
	case StagingAbsent:
		return "absent"
	case StagingUnusable:
		return "unusable"
	case StagingUsed:
		return "used"
	}
	return fmt.Sprintf("StagingState(%d)", int(s))
}

// Outcome is everything a caller can learn about one run.
type Outcome struct {
	Input  string
	Status Status
	States []State

	Staging StagingState
	// StagedRecords is the size of the reference batch when Staging is
	// StagingUsed.
	StagedRecords int

	Incoming             int
	Corrupt              int
	EmptyKey             int
	AlreadyStaged        int
	IntraBatchDuplicates int
	Written              int

	// ArtifactPath is the URL of the new staging artifact.
	ArtifactPath string
	// QuarantinePath is the URL of the artifact holding corrupt rows.
	QuarantinePath string

	// InputErr is why the input could not be read, when it failed rather
	// than being absent or empty.
	InputErr error
	// StagingErr is why the staging area could not be used, if it failed.
	StagingErr error
}

func (o *Outcome) visit(s State) {
	o.States = append(o.States, s)
}
