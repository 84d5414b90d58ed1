// Package doctor provides integrity checks for stored tries.
package doctor

import (
	"fmt"
	"io"
	"sort"

	"github.com/microsoft/python-inference-script-sub000/internal/storage"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds the inputs for each doctor check.
type Config struct {
	// Storage holds the state document and the files it references.
	Storage storage.Storage
	// StateName is the state document written by trie.Save.
	StateName string
	// Options are passed to trie.Restore; they must match the options the
	// trie was saved with.
	Options []trie.Option
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
	// Keys is the number of keys enumerated from the loaded trie.
	Keys int
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(w io.Writer, check string, err error) {
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", check, err))
	fmt.Fprintf(w, "%s %s: %v\n", FailMark, check, err)
}

// Run executes the checks in order and writes human-readable output to w.
// A failed check skips every check that depends on it.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- state document ---------------------------------------------------
	st, err := storage.ReadState(cfg.Storage, cfg.StateName)
	if err == nil && st.Version != storage.StateVersion {
		err = fmt.Errorf("%w: %d", trie.ErrUnsupportedVersion, st.Version)
	}
	if err != nil {
		res.fail(w, "state "+cfg.StateName, err)
		skip(w, "checksum", "load", "enumerate", "match")
		return res
	}
	fmt.Fprintf(w, "%s state %s: version %d\n", PassMark, cfg.StateName, st.Version)

	// ---- checksums ----------------------------------------------------------
	roles := make([]string, 0, len(st.Files))
	for role := range st.Files {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	failed := len(res.failures)
	for _, role := range roles {
		ref := st.Files[role]
		if err := storage.Verify(cfg.Storage, ref); err != nil {
			res.fail(w, "checksum "+role, err)
			continue
		}
		fmt.Fprintf(w, "%s checksum %s: %s\n", PassMark, role, ref.Name)
	}
	if len(res.failures) > failed {
		skip(w, "load", "enumerate", "match")
		return res
	}

	// ---- load ---------------------------------------------------------------
	tr, err := trie.Restore(cfg.Storage, cfg.StateName, cfg.Options...)
	if err != nil {
		res.fail(w, "load", err)
		skip(w, "enumerate", "match")
		return res
	}
	stats := tr.Stats()
	fmt.Fprintf(w, "%s load: %d bytes, max code %d, payload width %d\n",
		PassMark, stats.BlobBytes, stats.MaxCode, stats.PayloadWidth)

	// ---- enumerate ------------------------------------------------------------
	items, err := tr.Items()
	if err != nil {
		res.fail(w, "enumerate", err)
		skip(w, "match")
		return res
	}
	res.Keys = len(items)
	fmt.Fprintf(w, "%s enumerate: %d keys\n", PassMark, len(items))

	// ---- re-match every key -------------------------------------------------
	mismatches := 0
	for _, p := range items {
		got, err := tr.Match(p.Key)
		switch {
		case err != nil:
			mismatches++
			if mismatches == 1 {
				res.fail(w, "match", fmt.Errorf("key %q: %w", p.Key, err))
			}
		case got != p.Value:
			mismatches++
			if mismatches == 1 {
				res.fail(w, "match", fmt.Errorf("key %q = %d; enumerated %d", p.Key, got, p.Value))
			}
		}
	}
	if mismatches == 0 {
		fmt.Fprintf(w, "%s match: %d keys\n", PassMark, len(items))
	} else if mismatches > 1 {
		res.AddFailure(fmt.Sprintf("match: %d keys disagree with enumeration", mismatches))
	}

	return res
}

func skip(w io.Writer, checks ...string) {
	for _, c := range checks {
		fmt.Fprintf(w, "- %s: skipped\n", c)
	}
}
