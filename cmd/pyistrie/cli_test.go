package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDict = "# capitals\nAlpha\t1\nBeta\t2\nDelta\t3\nAlphaBeta\t4\n\n"

// run executes the root command with args and returns its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	orig := activeCfg
	t.Cleanup(func() { activeCfg = orig })

	var out, errOut bytes.Buffer

	root := NewRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)

	err := root.Execute()

	return out.String(), err
}

func compileSample(t *testing.T) (root, state string) {
	t.Helper()

	root = t.TempDir()

	out, err := run(t, sampleDict, "compile", "--storage-root-dir", root)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	state = strings.TrimSpace(out)
	if state != "immutable_trie.config.json" {
		t.Fatalf("state name = %q; want immutable_trie.config.json", state)
	}

	return root, state
}

func TestCompileAndMatch(t *testing.T) {
	root, state := compileSample(t)

	out, err := run(t, "", "match", "--storage-root-dir", root, state, "AlphaBeta", "Alp")
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	want := "AlphaBeta\t4\nAlp\tnot found\n"
	if out != want {
		t.Errorf("match output = %q; want %q", out, want)
	}
}

func TestCompileTwiceGetsDistinctNames(t *testing.T) {
	root, _ := compileSample(t)

	out, err := run(t, sampleDict, "compile", "--storage-root-dir", root)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if got := strings.TrimSpace(out); got != "immutable_trie1.config.json" {
		t.Errorf("second state name = %q; want immutable_trie1.config.json", got)
	}
}

func TestItems(t *testing.T) {
	root, state := compileSample(t)

	out, err := run(t, "", "items", "--storage-root-dir", root, state)
	if err != nil {
		t.Fatalf("items: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("items printed %d lines; want 4:\n%s", len(lines), out)
	}

	for _, want := range []string{"Alpha\t1", "Beta\t2", "Delta\t3", "AlphaBeta\t4"} {
		if !strings.Contains(out, want+"\n") {
			t.Errorf("items output missing %q:\n%s", want, out)
		}
	}
}

func TestCompileRawOutput(t *testing.T) {
	dir := t.TempDir()

	dictPath := filepath.Join(dir, "words.tsv")
	if err := os.WriteFile(dictPath, []byte(sampleDict), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rawPath := filepath.Join(dir, "words.bin")

	_, err := run(t, "", "compile", "--storage-root-dir", dir, "--codec-validate-tags", "-o", rawPath, dictPath)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	out, err := run(t, "", "match", "--storage-root-dir", dir, "--codec-validate-tags", "--raw", rawPath, "Delta")
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if out != "Delta\t3\n" {
		t.Errorf("match output = %q; want %q", out, "Delta\t3\n")
	}
}

func TestMatchFoldsCase(t *testing.T) {
	root := t.TempDir()

	out, err := run(t, "Straße\t7\n", "compile", "--storage-root-dir", root, "--dict-fold-case")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	state := strings.TrimSpace(out)

	out, err = run(t, "", "match", "--storage-root-dir", root, "--dict-fold-case", state, "STRASSE")
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if out != "STRASSE\t7\n" {
		t.Errorf("match output = %q; want %q", out, "STRASSE\t7\n")
	}
}

func TestCompileRejectsBadDictionary(t *testing.T) {
	_, err := run(t, "Alpha\tnot-a-number\n", "compile", "--storage-root-dir", t.TempDir())
	if err == nil {
		t.Fatal("expected error for a non-numeric value")
	}
}

func TestDoctor(t *testing.T) {
	root, state := compileSample(t)

	out, err := run(t, "", "doctor", "--storage-root-dir", root, state)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}

	if !strings.Contains(out, "doctor checks passed") {
		t.Errorf("doctor output missing success line:\n%s", out)
	}
}

func TestDoctor_MissingStateFails(t *testing.T) {
	out, err := run(t, "", "doctor", "--storage-root-dir", t.TempDir(), "missing.config.json")
	if err == nil {
		t.Fatalf("expected doctor to fail:\n%s", out)
	}
}

func TestHealth_Unreachable(t *testing.T) {
	_, err := run(t, "", "health", "--addr", "127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error probing a closed port")
	}
}

func TestBench(t *testing.T) {
	root, state := compileSample(t)

	out, err := run(t, "", "bench", "--storage-root-dir", root, "--runs", "2", "--format", "json", state)
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	var report struct {
		Runs []struct {
			Keys int `json:"keys"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("bench output is not JSON: %v\n%s", err, out)
	}

	if len(report.Runs) != 2 || report.Runs[0].Keys != 4 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestBench_RejectsBadFormat(t *testing.T) {
	root, state := compileSample(t)

	if _, err := run(t, "", "bench", "--storage-root-dir", root, "--format", "xml", state); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
