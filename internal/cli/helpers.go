package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/driftlab/driftwatch/internal/config"
	"github.com/driftlab/driftwatch/internal/leak"
	"github.com/driftlab/driftwatch/internal/tracker"
)

// coreFlags are the knobs shared by analyze and watch.
type coreFlags struct {
	configPath string
	capacity   int
	alpha      float64
	trials     int
	seed       uint64
	format     string
	logLevel   string
}

func (f *coreFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	fs.IntVar(&f.capacity, "capacity", 0, "Per-site reservoir capacity")
	fs.Float64Var(&f.alpha, "alpha", 0, "Leak detection significance level")
	fs.IntVar(&f.trials, "trials", 0, "Monte-Carlo trials per p-value")
	fs.Uint64Var(&f.seed, "seed", 0, "Random seed (0 derives one from the clock)")
	fs.StringVar(&f.format, "format", "text", "Output format: text or json")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// resolve merges the config file (if any) under the explicitly set flags and
// validates the result.
func (f *coreFlags) resolve(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if fs.Changed("capacity") {
		cfg.Sampling.Capacity = f.capacity
	}
	if fs.Changed("alpha") {
		cfg.Leak.Alpha = f.alpha
	}
	if fs.Changed("trials") {
		cfg.Leak.Trials = f.trials
	}
	if fs.Changed("seed") {
		cfg.Sampling.Seed = f.seed
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}

	if f.format != "text" && f.format != "json" {
		return config.Config{}, fmt.Errorf("format must be text or json, got %q", f.format)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// sessionSeed returns the configured seed, or one derived from the clock
// when unset.
func sessionSeed(cfg config.Config) uint64 {
	if cfg.Sampling.Seed != 0 {
		return cfg.Sampling.Seed
	}
	return uint64(time.Now().UnixNano())
}

// newDetector builds the leak detector from config, seeding its random
// source independently of the sampling streams.
func newDetector(cfg config.Config, seed uint64) (*leak.Detector, error) {
	rng := rand.New(rand.NewPCG(seed, 0x1eacde7))
	return leak.NewDetector(cfg.Leak.Alpha, cfg.Leak.Trials, rng)
}

// report is the JSON output shape.
type report struct {
	Sites []siteReport `json:"sites"`
	Leaks []leakReport `json:"leak_candidates"`
}

type siteReport struct {
	Site     string    `json:"site"`
	Count    uint64    `json:"count"`
	Mean     float64   `json:"mean"`
	Variance *float64  `json:"variance,omitempty"`
	Std      *float64  `json:"std,omitempty"`
	SEM      *float64  `json:"sem,omitempty"`
	Skewness float64   `json:"skewness"`
	Kurtosis float64   `json:"kurtosis"`
	Peak     float64   `json:"peak"`
	Growth   uint64    `json:"growth"`
	Sample   []float64 `json:"sample,omitempty"`
}

type leakReport struct {
	Site   string  `json:"site"`
	PValue float64 `json:"p_value"`
}

// renderReport writes the session report, sites ordered by peak descending.
func renderReport(w io.Writer, format string, aggs []tracker.SiteAggregate, leaks []tracker.LeakCandidate) error {
	sort.SliceStable(aggs, func(i, j int) bool {
		return aggs[i].Peak > aggs[j].Peak
	})

	if format == "json" {
		rep := report{Sites: make([]siteReport, 0, len(aggs))}
		for _, a := range aggs {
			sr := siteReport{
				Site:     a.Site,
				Count:    a.Count,
				Mean:     a.Mean,
				Skewness: a.Skewness,
				Kurtosis: a.Kurtosis,
				Peak:     a.Peak,
				Growth:   a.Growth,
				Sample:   a.Sample,
			}
			if a.HasSpread {
				v, s, sem := a.Variance, a.Std, a.SEM
				sr.Variance, sr.Std, sr.SEM = &v, &s, &sem
			}
			rep.Sites = append(rep.Sites, sr)
		}
		for _, c := range leaks {
			rep.Leaks = append(rep.Leaks, leakReport{Site: c.Site, PValue: c.PValue})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "Tracked sites: %d\n\n", len(aggs))
	fmt.Fprintf(w, "%-10s %-14s %-14s %-14s %-8s  %s\n",
		"COUNT", "MEAN", "STD", "PEAK", "GROWTH", "SITE")
	for _, a := range aggs {
		std := "n/a"
		if a.HasSpread {
			std = fmt.Sprintf("%.2f", a.Std)
		}
		fmt.Fprintf(w, "%-10d %-14.2f %-14s %-14.2f %-8d  %s\n",
			a.Count, a.Mean, std, a.Peak, a.Growth, truncateSite(a.Site))
	}

	fmt.Fprintf(w, "\nLeak candidates: %d\n", len(leaks))
	for i, c := range leaks {
		fmt.Fprintf(w, "%2d. p=%.5f  %s\n", i+1, c.PValue, truncateSite(c.Site))
	}
	return nil
}

// truncateSite keeps text reports readable for deep stacks.
func truncateSite(site string) string {
	const maxLen = 100
	if len(site) <= maxLen {
		return site
	}
	return site[:maxLen-3] + "..."
}
