// Package tracker maintains per-site running statistics and raw-value
// samples for a profiling session, and assembles the aggregate views the
// reporting layer consumes.
package tracker

import (
	"cmp"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	dwerrors "github.com/driftlab/driftwatch/internal/errors"
	"github.com/driftlab/driftwatch/internal/leak"
	"github.com/driftlab/driftwatch/internal/sampling"
	"github.com/driftlab/driftwatch/internal/stats"
)

// SiteID identifies a tracked site: the xxh3 hash of its frame string.
type SiteID uint64

// HashSite returns the SiteID for a site key (typically ";"-joined stack
// frame names).
func HashSite(site string) SiteID {
	return SiteID(xxh3.HashString(site))
}

// siteState holds the per-site accumulator and reservoir. One instance is
// created at a site's first observation and lives for the session.
type siteState struct {
	site   string
	accum  *stats.Accumulator
	sample *sampling.OrderedReservoir[float64]
	// prev is the last value observed; growth counts the observations
	// that exceeded it. Growth events are the aggregate counts the leak
	// detector tests for concentration: a leaking site grows on nearly
	// every snapshot while healthy sites fluctuate.
	prev   float64
	growth uint64
}

// Config controls a Tracker.
type Config struct {
	// Capacity is the per-site reservoir capacity.
	Capacity int
	// Seed seeds the per-site random sources. Together with each site's
	// hash it fully determines every sampling decision, so a fixed seed
	// reproduces the same samples for the same stream.
	Seed uint64
}

// Tracker owns one accumulator and one reservoir per tracked site.
//
// A Tracker is not safe for concurrent use: Observe is meant to be called by
// a single producer (the sampling callback). Hosts with several producers
// keep one Tracker each and combine them with Merge at report time.
type Tracker struct {
	cfg    Config
	logger zerolog.Logger
	sites  map[SiteID]*siteState
	order  []SiteID
}

// New creates an empty tracker. A non-positive reservoir capacity is a
// configuration error.
func New(cfg Config, logger zerolog.Logger) (*Tracker, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("tracker reservoir capacity must be positive, got %d", cfg.Capacity)
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger.With().Str("component", "tracker").Logger(),
		sites:  make(map[SiteID]*siteState),
	}, nil
}

// Observe folds one measurement for the given site key into its running
// statistics and sample. The site is registered on first observation.
func (t *Tracker) Observe(site string, value float64) {
	id := HashSite(site)
	st, ok := t.sites[id]
	if !ok {
		st = t.newSite(id, site)
	}
	st.accum.Push(value)
	st.sample.Add(value)
	if st.accum.Size() > 1 && value > st.prev {
		st.growth++
	}
	st.prev = value
}

func (t *Tracker) newSite(id SiteID, site string) *siteState {
	// Per-site rng derived from the session seed and the site hash, so
	// sites sample independently yet reproducibly.
	rng := rand.New(rand.NewPCG(t.cfg.Seed, uint64(id)))
	res, err := sampling.NewOrderedReservoir(t.cfg.Capacity, rng, cmp.Compare[float64])
	// Capacity and rng were validated at construction.
	dwerrors.Must(err, "tracker site reservoir")
	st := &siteState{
		site:   site,
		accum:  stats.New(),
		sample: res,
	}
	t.sites[id] = st
	t.order = append(t.order, id)
	t.logger.Debug().Str("site", site).Uint64("site_id", uint64(id)).Msg("Tracking new site")
	return st
}

// Len returns the number of tracked sites.
func (t *Tracker) Len() int {
	return len(t.sites)
}

// Clear drops all tracked sites.
func (t *Tracker) Clear() {
	t.sites = make(map[SiteID]*siteState)
	t.order = nil
}

// Merge folds another tracker's sites into this one, combining accumulators
// algebraically and re-sampling reservoir contents. Call it only once both
// trackers' producers have quiesced.
func (t *Tracker) Merge(other *Tracker) {
	if other == nil || other == t {
		return
	}
	for _, id := range other.order {
		os := other.sites[id]
		st, ok := t.sites[id]
		if !ok {
			st = t.newSite(id, os.site)
		}
		st.accum.Merge(os.accum)
		st.sample.MergeReservoir(os.sample)
		st.growth += os.growth
		if os.prev > st.prev {
			st.prev = os.prev
		}
	}
}

// SiteAggregate is the per-site report shape: moment statistics plus the
// ordered raw-value sample. Spread statistics are only meaningful with at
// least two observations; HasSpread reports whether they are set.
type SiteAggregate struct {
	ID        SiteID
	Site      string
	Count     uint64
	Mean      float64
	Variance  float64
	Std       float64
	SEM       float64
	Skewness  float64
	Kurtosis  float64
	Peak      float64
	Growth    uint64
	HasSpread bool
	Sample    []float64
}

// Snapshot returns the aggregate view of every tracked site, in first-seen
// order. It must not run concurrently with Observe on the same tracker.
func (t *Tracker) Snapshot() []SiteAggregate {
	out := make([]SiteAggregate, 0, len(t.order))
	for _, id := range t.order {
		st := t.sites[id]
		agg := SiteAggregate{
			ID:       id,
			Site:     st.site,
			Count:    st.accum.Size(),
			Mean:     st.accum.Mean(),
			Skewness: st.accum.Skewness(),
			Kurtosis: st.accum.Kurtosis(),
			Peak:     st.accum.Peak(),
			Growth:   st.growth,
			Sample:   append([]float64(nil), st.sample.Read()...),
		}
		if v, err := st.accum.Var(); err == nil {
			agg.Variance = v
			agg.Std, _ = st.accum.Std()
			agg.SEM, _ = st.accum.SEM()
			agg.HasSpread = true
		}
		out = append(out, agg)
	}
	return out
}

// CountVector returns the tracked sites in first-seen order together with a
// parallel vector of per-site growth event counts, the input shape the leak
// detector consumes.
func (t *Tracker) CountVector() ([]SiteID, []uint64) {
	ids := make([]SiteID, len(t.order))
	counts := make([]uint64, len(t.order))
	for i, id := range t.order {
		ids[i] = id
		counts[i] = t.sites[id].growth
	}
	return ids, counts
}

// LeakCandidate is one site flagged by the leak detector, most anomalous
// candidates first.
type LeakCandidate struct {
	ID     SiteID
	Site   string
	PValue float64
}

// LeakReport runs the detector over the current count vector and maps the
// flagged indices back to sites.
func (t *Tracker) LeakReport(det *leak.Detector) []LeakCandidate {
	ids, counts := t.CountVector()
	candidates := det.Candidates(counts)
	if len(candidates) == 0 {
		return nil
	}
	out := make([]LeakCandidate, 0, len(candidates))
	for _, c := range candidates {
		id := ids[c.Site]
		out = append(out, LeakCandidate{
			ID:     id,
			Site:   t.sites[id].site,
			PValue: c.PValue,
		})
	}
	return out
}
