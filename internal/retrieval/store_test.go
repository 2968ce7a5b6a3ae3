package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSQLiteStore(st.DB())
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestInsertAndSearch_NamespaceIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	vec := makeTestVector(64, 0.1)

	err := s.Insert(ctx, []Record{
		{ID: "r1", Namespace: "unit-3", SourceID: "d1", Metadata: NewMetadata("Product research", "", "Check BSR trends."), Embedding: vec},
		{ID: "r2", Namespace: "unit-5", SourceID: "d2", Metadata: NewMetadata("Listings", "", "Write bullets."), Embedding: vec},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(ctx, "unit-3", vec, 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "r1" {
		t.Fatalf("results = %+v, want only r1", results)
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %f, want > 0.99", results[0].Score)
	}
	if results[0].Metadata.Title() != "Product research" || results[0].Namespace != "unit-3" {
		t.Errorf("record = %+v", results[0].Record)
	}
	if len(results[0].Embedding) != 64 {
		t.Errorf("embedding dim = %d", len(results[0].Embedding))
	}
}

func TestSearch_TopKOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var records []Record
	for i := range 10 {
		v := make([]float32, 4)
		v[0] = 1
		v[1] = float32(i) // larger i drifts further from the query
		records = append(records, Record{ID: fmt.Sprintf("r%d", i), Namespace: "ns", Embedding: v})
	}
	if err := s.Insert(ctx, records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(ctx, "ns", []float32{1, 0, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"r0", "r1", "r2"} {
		if results[i].ID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestSearch_Filter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	vec := makeTestVector(8, 0.2)

	s.Insert(ctx, []Record{
		{ID: "a", Namespace: "ns", Metadata: NewMetadata("A", "", "").With("lesson", String("1")), Embedding: vec},
		{ID: "b", Namespace: "ns", Metadata: NewMetadata("B", "", "").With("lesson", String("2")), Embedding: vec},
	})

	results, err := s.Search(ctx, "ns", vec, 5, Filter{"lesson": "2"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("filtered results = %+v, want only b", results)
	}
}

func TestSearch_EmptyAndZeroVector(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	results, err := s.Search(ctx, "ns", makeTestVector(8, 0.1), 5, nil)
	if err != nil || len(results) != 0 {
		t.Errorf("empty namespace = %v, %v", results, err)
	}
	results, err = s.Search(ctx, "ns", make([]float32, 8), 5, nil)
	if err != nil || results != nil {
		t.Errorf("zero vector = %v, %v", results, err)
	}
}

func TestInsert_RequiresNamespace(t *testing.T) {
	s := openTestStore(t)
	if err := s.Insert(context.Background(), []Record{{ID: "x", Embedding: []float32{1}}}); err == nil {
		t.Fatal("expected error for record without namespace")
	}
}

func TestDeleteCountNamespaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	vec := makeTestVector(8, 0.1)

	s.Insert(ctx, []Record{
		{ID: "r1", Namespace: "unit-1", SourceID: "doc-a", Embedding: vec},
		{ID: "r2", Namespace: "unit-1", SourceID: "doc-b", Embedding: vec},
		{ID: "r3", Namespace: "unit-2", SourceID: "doc-c", Embedding: vec},
	})

	if n, _ := s.Count(ctx, ""); n != 3 {
		t.Errorf("Count(all) = %d, want 3", n)
	}
	if n, _ := s.Count(ctx, "unit-1"); n != 2 {
		t.Errorf("Count(unit-1) = %d, want 2", n)
	}

	if n, err := s.DeleteBySource(ctx, "doc-a"); err != nil || n != 1 {
		t.Fatalf("DeleteBySource = %d, %v; want 1", n, err)
	}
	if n, err := s.DeleteBySource(ctx, "doc-a"); err != nil || n != 0 {
		t.Errorf("second DeleteBySource = %d, %v; want 0", n, err)
	}
	if _, err := s.DeleteBySource(ctx, ""); err == nil {
		t.Error("expected error for empty source id")
	}

	ns, err := s.Namespaces(ctx)
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	if ns["unit-1"] != 1 || ns["unit-2"] != 1 || len(ns) != 2 {
		t.Errorf("Namespaces = %v", ns)
	}
}

func TestFloat32Encoding(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
