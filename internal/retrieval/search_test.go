package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeStore serves canned per-namespace results.
type fakeStore struct {
	mu      sync.Mutex
	results map[string][]ScoredRecord
	errs    map[string]error
	calls   []string
	filters []Filter
}

func (f *fakeStore) Search(_ context.Context, ns string, _ []float32, topK int, filter Filter) ([]ScoredRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ns)
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if err := f.errs[ns]; err != nil {
		return nil, err
	}
	recs := f.results[ns]
	if len(recs) > topK {
		recs = recs[:topK]
	}
	return recs, nil
}

func scored(id string, score float32) ScoredRecord {
	return ScoredRecord{Record: Record{ID: id, Metadata: NewMetadata(id, "", "body "+id)}, Score: score}
}

func ids(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestSearch_MergesAcrossNamespaces(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredRecord{
		"unit-3": {scored("a", 0.81), scored("b", 0.30)},
		"unit-5": {scored("c", 0.45), scored("d", 0.01)},
	}}

	got, err := NewSearcher(store).Search(context.Background(), []float32{1}, []string{"unit-3", "unit-5"}, 5, 0.02)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", ids(got), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("ids = %v, want %v", ids(got), want)
			break
		}
	}
	if got[1].Namespace != "unit-5" || got[0].Namespace != "unit-3" {
		t.Errorf("namespace tags = %q, %q", got[0].Namespace, got[1].Namespace)
	}
	if len(store.calls) != 2 {
		t.Errorf("store called %d times, want 2", len(store.calls))
	}
}

func TestSearch_TopKBeforeFloor(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredRecord{
		"x": {scored("a", 0.9), scored("b", 0.5), scored("c", 0.01)},
		"y": {scored("d", 0.8)},
	}}

	got, err := NewSearcher(store).Search(context.Background(), []float32{1}, []string{"x", "y"}, 2, 0.6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Top-2 is [a, d]; both clear the floor.
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "d" {
		t.Errorf("ids = %v, want [a d]", ids(got))
	}

	got, _ = NewSearcher(store).Search(context.Background(), []float32{1}, []string{"x", "y"}, 3, 0.6)
	// Top-3 is [a, d, b]; b falls below the floor.
	if len(got) != 2 {
		t.Errorf("ids = %v, want [a d]", ids(got))
	}
	for _, m := range got {
		if m.Score < 0.6 {
			t.Errorf("match %s below floor: %v", m.ID, m.Score)
		}
	}
}

func TestSearch_StableTies(t *testing.T) {
	store := &fakeStore{results: map[string][]ScoredRecord{
		"first":  {scored("f1", 0.5)},
		"second": {scored("s1", 0.5)},
	}}
	got, _ := NewSearcher(store).Search(context.Background(), []float32{1}, []string{"first", "second"}, 5, 0)
	if len(got) != 2 || got[0].ID != "f1" || got[1].ID != "s1" {
		t.Errorf("ids = %v, want namespace order on ties", ids(got))
	}
}

func TestSearch_PartialFailure(t *testing.T) {
	store := &fakeStore{
		results: map[string][]ScoredRecord{
			"ok1": {scored("a", 0.7)},
			"ok2": {scored("b", 0.6)},
		},
		errs: map[string]error{"broken": errors.New("index offline")},
	}

	got, err := NewSearcher(store).Search(context.Background(), []float32{1}, []string{"ok1", "broken", "ok2"}, 5, 0.02)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("ids = %v, want union of healthy namespaces", ids(got))
	}
}

func TestSearch_AllFail(t *testing.T) {
	store := &fakeStore{errs: map[string]error{
		"a": errors.New("down"),
		"b": errors.New("down"),
	}}
	_, err := NewSearcher(store).Search(context.Background(), []float32{1}, []string{"a", "b"}, 5, 0)
	if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("err = %v, want ErrSearchFailed", err)
	}
}

func TestSearch_NoNamespaces(t *testing.T) {
	got, err := NewSearcher(&fakeStore{}).Search(context.Background(), []float32{1}, nil, 5, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("Search(no namespaces) = %v, %v", got, err)
	}
}

func TestSearch_WithFilterPassedThrough(t *testing.T) {
	store := &fakeStore{}
	s := NewSearcher(store).WithFilter(Filter{"unit": "3"})
	s.Search(context.Background(), []float32{1}, []string{"a"}, 1, 0)
	if len(store.filters) != 1 || store.filters[0]["unit"] != "3" {
		t.Errorf("filters = %v", store.filters)
	}
}
