package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDocumentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	docs := []Document{
		{ID: "d1", Namespace: "unit-3", Title: "Product research", Content: "Look at BSR.", CreatedAt: base},
		{ID: "d2", Namespace: "unit-5", Title: "Listings", Content: "Use keywords.", CreatedAt: base.Add(time.Hour)},
	}
	for _, d := range docs {
		if err := s.SaveDocument(ctx, d); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
	}

	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Type != "text" || got.MetadataJSON != "{}" || got.Title != "Product research" {
		t.Errorf("GetDocument = %+v", got)
	}

	list, err := s.ListDocuments(ctx, "unit-3", 10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(list) != 1 || list[0].ID != "d1" {
		t.Errorf("ListDocuments(unit-3) = %+v", list)
	}
	all, _ := s.ListDocuments(ctx, "", 10)
	if len(all) != 2 || all[0].ID != "d2" {
		t.Errorf("ListDocuments(all) order = %+v", all)
	}

	if err := s.SetDocumentVector(ctx, "d1", "v1"); err != nil {
		t.Fatalf("SetDocumentVector: %v", err)
	}
	got, _ = s.GetDocument(ctx, "d1")
	if got.VectorID != "v1" {
		t.Errorf("VectorID = %q, want v1", got.VectorID)
	}

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := s.SetDocumentVector(ctx, "d1", "v2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDocumentVector(missing) = %v, want ErrNotFound", err)
	}
}
