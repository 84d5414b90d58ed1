// Package bench provides benchmarking primitives for the pyistrie bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/microsoft/python-inference-script-sub000/internal/trie"
)

// Matcher is the lookup surface being measured.
type Matcher interface {
	Match(key string) (uint32, error)
}

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing of a single pass over the key set.
type RunResult struct {
	Index    int
	Cold     bool // true for the first pass
	Duration time.Duration
	Keys     int
	Misses   int
	NsPerKey float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Durations extracts the pass durations of runs.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}
	return out
}

// MeanNsPerKey averages the per-key latency over runs.
func MeanNsPerKey(runs []RunResult) float64 {
	if len(runs) == 0 {
		return 0
	}
	var total float64
	for _, r := range runs {
		total += r.NsPerKey
	}
	return total / float64(len(runs))
}

// ---------------------------------------------------------------------------
// Lookup passes
// ---------------------------------------------------------------------------

// CalcNsPerKey returns d / keys in nanoseconds.
// Returns 0 if keys is zero to avoid division by zero.
func CalcNsPerKey(d time.Duration, keys int) float64 {
	if keys <= 0 {
		return 0
	}
	return float64(d.Nanoseconds()) / float64(keys)
}

// Run matches every key runs times and times each pass. A key that is not
// found counts as a miss; any other lookup error aborts the benchmark.
func Run(ctx context.Context, m Matcher, keys []string, runs int) ([]RunResult, error) {
	if runs < 1 {
		return nil, errors.New("runs must be at least 1")
	}
	results := make([]RunResult, 0, runs)

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		misses := 0
		start := time.Now()
		for _, k := range keys {
			if _, err := m.Match(k); err != nil {
				if !trie.IsNotFound(err) {
					return nil, fmt.Errorf("run %d: key %q: %w", i+1, k, err)
				}
				misses++
			}
		}
		dur := time.Since(start)

		results = append(results, RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: dur,
			Keys:     len(keys),
			Misses:   misses,
			NsPerKey: CalcNsPerKey(dur, len(keys)),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// Latency threshold gate
// ---------------------------------------------------------------------------

// CheckNsThreshold returns an error if meanNs > threshold.
// A threshold of 0 disables the gate.
func CheckNsThreshold(meanNs, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanNs > threshold {
		return fmt.Errorf("mean lookup %.1fns exceeds threshold %.1fns", meanNs, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %8s  %8s  %10s\n", "Run", "Cold", "MS", "Keys", "Misses", "ns/key")
	fmt.Fprintln(sb, strings.Repeat("-", 56))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f  %8d  %8d  %10.1f\n",
			r.Index+1,
			cold,
			ms(r.Duration),
			r.Keys,
			r.Misses,
			r.NsPerKey,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 56))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (min)\n", "", "", ms(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (mean)\n", "", "", ms(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (max)\n", "", "", ms(stats.Max))

	fmt.Fprint(w, sb.String())
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Keys       int     `json:"keys"`
	Misses     int     `json:"misses"`
	NsPerKey   float64 `json:"ns_per_key"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  ms(stats.Min),
			MeanMS: ms(stats.Mean),
			MaxMS:  ms(stats.Max),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			Keys:       r.Keys,
			Misses:     r.Misses,
			NsPerKey:   r.NsPerKey,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
