package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/acme-corp/staging-pipeline/internal/config"
	"github.com/acme-corp/staging-pipeline/internal/ingestion"
	"github.com/acme-corp/staging-pipeline/internal/logger"
	"github.com/acme-corp/staging-pipeline/internal/metrics"
	"github.com/acme-corp/staging-pipeline/internal/storage"
	"github.com/acme-corp/staging-pipeline/internal/transform"
	"github.com/pkg/errors"
)

// ErrSessionClosed is returned by Process outside Start/Close.
var ErrSessionClosed = errors.New("session is not running")

// Deps are the collaborators a Session is built from. Only Store is
// required.
type Deps struct {
	Store   storage.Store
	Log     logger.Logger
	Metrics *metrics.Collector
	// Now and NewID name artifacts; nil means wall clock and random ids.
	Now   func() time.Time
	NewID func() string
}

type sessionState int

const (
	sessionNew sessionState = iota
	sessionRunning
	sessionClosed
)

// Session is the context of one invocation: the store, reader, writers and
// metrics every step shares. Build it with NewSession, bracket the work
// with Start and Close, and call Process once per input. Runs on one
// Session are serialised; concurrent Sessions on the same staging prefix
// are not safe against each other.
type Session struct {
	cfg        *config.Config
	store      storage.Store
	log        logger.Logger
	metrics    *metrics.Collector
	reader     *ingestion.Reader
	staged     *storage.ArtifactWriter
	quarantine *storage.ArtifactWriter
	dedupe     transform.Options

	mu      sync.Mutex
	state   sessionState
	started time.Time
}

func NewSession(cfg *config.Config, deps Deps) (*Session, error) {
	if deps.Store == nil {
		return nil, errors.New("session needs a store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if deps.Log == nil {
		deps.Log = logger.NopLogger
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}

	s := &Session{
		cfg:     cfg,
		store:   deps.Store,
		log:     deps.Log,
		metrics: deps.Metrics,
		reader: &ingestion.Reader{
			Objects:     deps.Store,
			Key:         cfg.KeyField,
			InferSchema: cfg.InferSchema,
			Parallelism: cfg.Parallelism,
			Log:         deps.Log.WithPrefix("reader: "),
		},
		staged: newWriter(deps, cfg.StagingPrefix),
		dedupe: transform.Options{Key: cfg.KeyField, Policy: cfg.Policy()},
	}
	if cfg.QuarantinePrefix != "" {
		s.quarantine = newWriter(deps, cfg.QuarantinePrefix)
	}
	return s, nil
}

func newWriter(deps Deps, prefix string) *storage.ArtifactWriter {
	w := storage.NewArtifactWriter(deps.Store, prefix)
	if deps.Now != nil {
		w.Now = deps.Now
	}
	if deps.NewID != nil {
		w.NewID = deps.NewID
	}
	return w
}

// Start opens the session for Process calls.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessionNew {
		return errors.New("session already started")
	}
	s.state = sessionRunning
	s.started = time.Now()
	s.log.Infof("Session started: staging area %s, key %q, duplicate policy %s",
		s.store.URL(s.cfg.StagingPrefix), s.cfg.KeyField, s.dedupe.Policy)
	return nil
}

// Close ends the session. Further Process calls fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == sessionRunning {
		snap := s.metrics.Snapshot()
		s.log.Infof("Session finished in %v: %d records written in %d artifacts",
			time.Since(s.started).Round(time.Millisecond), snap.RecordsWritten, snap.ArtifactsWritten)
	}
	s.state = sessionClosed
	return nil
}

// Run builds a session, processes inputs in order and closes it. It stops
// at the first hard failure and returns the outcomes gathered so far.
func Run(ctx context.Context, cfg *config.Config, deps Deps, inputs ...string) ([]*Outcome, error) {
	s, err := NewSession(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	defer s.Close()

	outcomes := make([]*Outcome, 0, len(inputs))
	for _, input := range inputs {
		out, err := s.Process(ctx, input)
		if out != nil {
			outcomes = append(outcomes, out)
		}
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}
