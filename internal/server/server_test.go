package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/microsoft/python-inference-script-sub000/internal/server"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
)

func newTestTrie(t *testing.T) *trie.Trie {
	t.Helper()
	tr, err := trie.New([]trie.Pair{
		{Key: "Alpha", Value: 1},
		{Key: "Beta", Value: 2},
		{Key: "Delta", Value: 3},
		{Key: "AlphaBeta", Value: 4},
		{Key: "new york", Value: 5},
	})
	if err != nil {
		t.Fatalf("trie.New: %v", err)
	}
	return tr
}

// brokenDictionary fails every lookup with a decoding error.
type brokenDictionary struct{}

var errBroken = errors.New("broken blob")

func (brokenDictionary) Match(string) (uint32, error)          { return 0, errBroken }
func (brokenDictionary) Walk(func(string, uint32) error) error { return errBroken }
func (brokenDictionary) Stats() trie.Stats                     { return trie.Stats{} }

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
}

// ---------------------------------------------------------------------------
// GET /match
// ---------------------------------------------------------------------------

func TestMatch_Found(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	rec := get(t, h, "/match?key=AlphaBeta")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q; want application/json", ct)
	}

	var body struct {
		Key   string `json:"key"`
		Value uint32 `json:"value"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Key != "AlphaBeta" || body.Value != 4 {
		t.Errorf("body = %+v; want key=AlphaBeta value=4", body)
	}
}

func TestMatch_EscapedKey(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	rec := get(t, h, "/match?key=new+york")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestMatch_NotFound(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	for _, key := range []string{"Alp", "Gamma", ""} {
		rec := get(t, h, "/match?key="+key)
		if rec.Code != http.StatusNotFound {
			t.Errorf("key %q: want 404, got %d", key, rec.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}

		if body["error"] == "" {
			t.Errorf("key %q: want error field", key)
		}
	}
}

func TestMatch_MissingKey(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	rec := get(t, h, "/match")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestMatch_MethodNotAllowed(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/match?key=Alpha", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestMatch_KeyTooLong(t *testing.T) {
	h := server.NewHandler(newTestTrie(t), server.WithMaxKeyBytes(8))

	rec := get(t, h, "/match?key="+strings.Repeat("a", 9))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}

	rec = get(t, h, "/match?key=AlphaBet")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("key at limit: want 404, got %d", rec.Code)
	}
}

func TestMatch_KeyNormalizer(t *testing.T) {
	h := server.NewHandler(newTestTrie(t), server.WithKeyNormalizer(func(s string) string {
		return strings.TrimSpace(s)
	}))

	rec := get(t, h, "/match?key=+Beta+")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestMatch_DecodeErrorIs500(t *testing.T) {
	h := server.NewHandler(brokenDictionary{})

	rec := get(t, h, "/match?key=x")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}

	rec = get(t, h, "/contains?key=x")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("contains: want 500, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /contains
// ---------------------------------------------------------------------------

func TestContains(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	tests := []struct {
		key  string
		want bool
	}{
		{"Alpha", true},
		{"Delta", true},
		{"Alp", false},
		{"Zeta", false},
	}

	for _, tt := range tests {
		rec := get(t, h, "/contains?key="+tt.key)
		if rec.Code != http.StatusOK {
			t.Fatalf("key %q: want 200, got %d", tt.key, rec.Code)
		}

		var body struct {
			Found bool `json:"found"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}

		if body.Found != tt.want {
			t.Errorf("contains(%q) = %v; want %v", tt.key, body.Found, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// GET /items
// ---------------------------------------------------------------------------

type item struct {
	Key   string `json:"key"`
	Value uint32 `json:"value"`
}

func TestItems_ReturnsEveryPair(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	rec := get(t, h, "/items")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var got []item
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	want := map[string]uint32{"Alpha": 1, "Beta": 2, "Delta": 3, "AlphaBeta": 4, "new york": 5}
	if len(got) != len(want) {
		t.Fatalf("got %d items; want %d", len(got), len(want))
	}
	for _, it := range got {
		if want[it.Key] != it.Value {
			t.Errorf("item %q = %d; want %d", it.Key, it.Value, want[it.Key])
		}
	}
}

func TestItems_Prefix(t *testing.T) {
	h := server.NewHandler(newTestTrie(t))

	rec := get(t, h, "/items?prefix=Alpha")
	var got []item
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %v; want Alpha and AlphaBeta", got)
	}
}

func TestItems_PrefixIsNormalized(t *testing.T) {
	h := server.NewHandler(newTestTrie(t), server.WithKeyNormalizer(strings.TrimSpace))

	rec := get(t, h, "/items?prefix=+Alpha+")
	var got []item
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %v; want Alpha and AlphaBeta", got)
	}
}

func TestItems_EmptyTrieIsEmptyArray(t *testing.T) {
	empty, err := trie.New(nil)
	if err != nil {
		t.Fatalf("trie.New: %v", err)
	}
	h := server.NewHandler(empty)

	rec := get(t, h, "/items")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q; want []", got)
	}
}

func TestItems_DecodeErrorIs500(t *testing.T) {
	h := server.NewHandler(brokenDictionary{})

	rec := get(t, h, "/items")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
}

// slowDictionary walks forever until its callback fails.
type slowDictionary struct{ brokenDictionary }

func (slowDictionary) Walk(fn func(string, uint32) error) error {
	for {
		if err := fn("k", 1); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}

func TestItems_Timeout(t *testing.T) {
	h := server.NewHandler(slowDictionary{}, server.WithRequestTimeout(20*time.Millisecond))

	rec := get(t, h, "/items")
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("want 504, got %d", rec.Code)
	}
}

func TestItems_CancelledWhileWaitingForWorker(t *testing.T) {
	block := make(chan struct{})
	h := server.NewHandler(blockingDictionary{block: block}, server.WithWorkers(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		get(t, h, "/items")
	}()
	// give the first request time to take the only slot
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items", nil).WithContext(ctx)
	h.ServeHTTP(rec, req)

	close(block)
	<-done

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}
}

type blockingDictionary struct {
	brokenDictionary
	block chan struct{}
}

func (b blockingDictionary) Walk(func(string, uint32) error) error {
	<-b.block
	return nil
}

// ---------------------------------------------------------------------------
// GET /stats
// ---------------------------------------------------------------------------

func TestStats(t *testing.T) {
	tr := newTestTrie(t)
	h := server.NewHandler(tr)

	rec := get(t, h, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var got trie.Stats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if got != tr.Stats() {
		t.Errorf("stats = %+v; want %+v", got, tr.Stats())
	}
}
