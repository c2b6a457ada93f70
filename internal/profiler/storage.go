package profiler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	dwerrors "github.com/driftlab/driftwatch/internal/errors"
	"github.com/driftlab/driftwatch/internal/safe"
	"github.com/driftlab/driftwatch/internal/tracker"
)

// Storage persists per-site aggregates and leak candidates in DuckDB. Raw
// sample values are never persisted; only the moment summaries and the leak
// report survive a flush.
type Storage struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStorage creates the aggregate storage and initializes its schema.
func NewStorage(db *sql.DB, logger zerolog.Logger) (*Storage, error) {
	s := &Storage{
		db:     db,
		logger: logger.With().Str("component", "profiler_storage").Logger(),
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the local aggregate tables.
func (s *Storage) initSchema() error {
	schema := `
		-- Per-site moment statistics, one row per site per flush.
		CREATE TABLE IF NOT EXISTS site_aggregates_local (
			session_id   TEXT      NOT NULL,
			timestamp    TIMESTAMP NOT NULL,
			site_id      UBIGINT   NOT NULL,
			site         TEXT      NOT NULL,
			sample_count BIGINT    NOT NULL,
			mean         DOUBLE    NOT NULL,
			variance     DOUBLE,
			std          DOUBLE,
			sem          DOUBLE,
			skewness     DOUBLE    NOT NULL,
			kurtosis     DOUBLE    NOT NULL,
			peak         DOUBLE    NOT NULL,
			PRIMARY KEY (session_id, timestamp, site_id)
		);
		CREATE INDEX IF NOT EXISTS idx_site_aggregates_timestamp
			ON site_aggregates_local (timestamp);

		-- Leak candidates, ranked most anomalous first per flush.
		CREATE TABLE IF NOT EXISTS leak_candidates_local (
			session_id TEXT      NOT NULL,
			timestamp  TIMESTAMP NOT NULL,
			rank       INTEGER   NOT NULL,
			site_id    UBIGINT   NOT NULL,
			site       TEXT      NOT NULL,
			p_value    DOUBLE    NOT NULL,
			PRIMARY KEY (session_id, timestamp, rank)
		);
		CREATE INDEX IF NOT EXISTS idx_leak_candidates_timestamp
			ON leak_candidates_local (timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info().Msg("Aggregate storage schema initialized")
	return nil
}

// StoreAggregates stores one flush of per-site aggregates in a single
// transaction.
func (s *Storage) StoreAggregates(ctx context.Context, sessionID string, at time.Time, aggs []tracker.SiteAggregate) error {
	if len(aggs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dwerrors.DeferRollback(s.logger, tx)

	for _, agg := range aggs {
		count, _ := safe.Uint64ToInt64(agg.Count)

		var variance, std, sem any
		if agg.HasSpread {
			variance, std, sem = agg.Variance, agg.Std, agg.SEM
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO site_aggregates_local (
				session_id, timestamp, site_id, site, sample_count,
				mean, variance, std, sem, skewness, kurtosis, peak
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			sessionID, at, uint64(agg.ID), agg.Site, count,
			agg.Mean, variance, std, sem, agg.Skewness, agg.Kurtosis, agg.Peak,
		)
		if err != nil {
			return fmt.Errorf("failed to store aggregate for site %q: %w", agg.Site, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregates: %w", err)
	}

	s.logger.Debug().
		Int("site_count", len(aggs)).
		Str("session_id", sessionID).
		Msg("Stored site aggregates")

	return nil
}

// StoreLeakCandidates stores one flush of leak candidates, ranked in the
// order the detector flagged them.
func (s *Storage) StoreLeakCandidates(ctx context.Context, sessionID string, at time.Time, candidates []tracker.LeakCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dwerrors.DeferRollback(s.logger, tx)

	for rank, c := range candidates {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leak_candidates_local (
				session_id, timestamp, rank, site_id, site, p_value
			) VALUES (?, ?, ?, ?, ?, ?)
		`,
			sessionID, at, rank, uint64(c.ID), c.Site, c.PValue,
		)
		if err != nil {
			return fmt.Errorf("failed to store leak candidate for site %q: %w", c.Site, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit leak candidates: %w", err)
	}

	s.logger.Debug().
		Int("candidate_count", len(candidates)).
		Str("session_id", sessionID).
		Msg("Stored leak candidates")

	return nil
}

// QueryLeakCandidates returns the leak candidates recorded for a session,
// newest flush first, ranked within each flush.
func (s *Storage) QueryLeakCandidates(ctx context.Context, sessionID string) ([]tracker.LeakCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site_id, site, p_value
		FROM leak_candidates_local
		WHERE session_id = ?
		ORDER BY timestamp DESC, rank ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leak candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tracker.LeakCandidate
	for rows.Next() {
		var siteID uint64
		var c tracker.LeakCandidate
		if err := rows.Scan(&siteID, &c.Site, &c.PValue); err != nil {
			return nil, fmt.Errorf("failed to scan leak candidate row: %w", err)
		}
		c.ID = tracker.SiteID(siteID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leak candidates: %w", err)
	}
	return out, nil
}

// PruneBefore deletes aggregates and leak candidates older than cutoff.
func (s *Storage) PruneBefore(ctx context.Context, cutoff time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM site_aggregates_local WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune aggregates: %w", err)
	}
	pruned, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM leak_candidates_local WHERE timestamp < ?", cutoff); err != nil {
		return fmt.Errorf("failed to prune leak candidates: %w", err)
	}

	if pruned > 0 {
		s.logger.Debug().Int64("rows", pruned).Time("cutoff", cutoff).Msg("Pruned old aggregates")
	}
	return nil
}
