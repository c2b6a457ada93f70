package profiler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftlab/driftwatch/internal/leak"
	"github.com/driftlab/driftwatch/internal/tracker"
)

// Config holds configuration for the continuous collection loop.
type Config struct {
	Interval  time.Duration // Snapshot interval (default: 60s).
	Retention time.Duration // Persisted aggregate retention (default: 1 hour).
}

// Continuous drives the profiling session: it snapshots a heap source on a
// ticker, feeds the measurements into a tracker, and flushes aggregates and
// leak candidates to storage after every snapshot. Storage is optional; with
// a nil storage the session is report-only.
type Continuous struct {
	sessionID string
	source    HeapSource
	tracked   *tracker.Tracker
	detector  *leak.Detector
	storage   *Storage
	logger    zerolog.Logger
	config    Config

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewContinuous creates a continuous profiler. The tracker, detector, and
// source are owned by the caller but must not be touched while the loop
// runs; read results after Stop returns.
func NewContinuous(
	parentCtx context.Context,
	source HeapSource,
	tracked *tracker.Tracker,
	detector *leak.Detector,
	storage *Storage,
	logger zerolog.Logger,
	config Config,
) (*Continuous, error) {
	if parentCtx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if source == nil {
		return nil, fmt.Errorf("heap source is required")
	}
	if tracked == nil || detector == nil {
		return nil, fmt.Errorf("tracker and detector are required")
	}

	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.Retention == 0 {
		config.Retention = time.Hour
	}

	ctx, cancel := context.WithCancel(parentCtx)

	return &Continuous{
		sessionID: uuid.NewString(),
		source:    source,
		tracked:   tracked,
		detector:  detector,
		storage:   storage,
		logger:    logger.With().Str("component", "continuous_profiler").Logger(),
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// SessionID returns the session identifier under which aggregates are
// persisted.
func (p *Continuous) SessionID() string {
	return p.sessionID
}

// Start runs the collection loop until Stop is called or the parent context
// is cancelled.
func (p *Continuous) Start() {
	p.logger.Info().
		Str("session_id", p.sessionID).
		Dur("interval", p.config.Interval).
		Msg("Starting continuous heap profiling")

	go p.loop()
}

// Stop halts the collection loop and waits for it to drain. Call it only
// after Start.
func (p *Continuous) Stop() {
	p.logger.Info().Msg("Stopping continuous heap profiling")
	p.cancel()
	<-p.done
}

func (p *Continuous) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.collectOnce(); err != nil {
				p.logger.Error().Err(err).Msg("Failed to collect heap snapshot")
			}
		}
	}
}

// collectOnce takes one snapshot, folds it into the tracker, and flushes
// aggregates and leak candidates to storage.
func (p *Continuous) collectOnce() error {
	started := time.Now()

	samples, err := p.source.Snapshot(p.ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot heap source: %w", err)
	}

	for _, s := range samples {
		p.tracked.Observe(s.Site, float64(s.Bytes))
	}

	candidates := p.tracked.LeakReport(p.detector)

	p.logger.Debug().
		Int("sample_count", len(samples)).
		Int("site_count", p.tracked.Len()).
		Int("leak_candidates", len(candidates)).
		Dur("collect_time", time.Since(started)).
		Msg("Collected heap snapshot")

	if p.storage == nil {
		return nil
	}

	if err := p.storage.StoreAggregates(p.ctx, p.sessionID, started, p.tracked.Snapshot()); err != nil {
		return fmt.Errorf("failed to store aggregates: %w", err)
	}
	if err := p.storage.StoreLeakCandidates(p.ctx, p.sessionID, started, candidates); err != nil {
		return fmt.Errorf("failed to store leak candidates: %w", err)
	}
	if err := p.storage.PruneBefore(p.ctx, started.Add(-p.config.Retention)); err != nil {
		return fmt.Errorf("failed to prune aggregates: %w", err)
	}
	return nil
}
