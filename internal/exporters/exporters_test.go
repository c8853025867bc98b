package exporters

import (
	"testing"
	"time"

	"github.com/libsync/exportd/internal/domain"
)

func TestChunkSizeOverrides(t *testing.T) {
	overrides := map[string]int{"ItemsToSolr": 500}

	if got := chunkSize(overrides, "ItemsToSolr", defaultMaxRecChunk); got != 500 {
		t.Errorf("override not applied: got %d", got)
	}
	if got := chunkSize(overrides, "BibsToSolr", defaultMaxRecChunk); got != defaultMaxRecChunk {
		t.Errorf("fallback not applied: got %d", got)
	}
	if got := chunkSize(nil, "ItemsToSolr", defaultMaxDelChunk); got != defaultMaxDelChunk {
		t.Errorf("nil overrides: got %d", got)
	}
}

func TestDocIDs(t *testing.T) {
	got := docIDs([]uint64{7, 42, 1000})
	want := []string{"7", "42", "1000"}
	if len(got) != len(want) {
		t.Fatalf("length: got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestItemDocument(t *testing.T) {
	loc := "w4m"
	updated := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	it := &domain.ItemRecord{
		ID:           4711,
		BibID:        12,
		Barcode:      "30001234",
		CallNumber:   "QA76.73",
		LocationCode: &loc,
		UpdatedAt:    updated,
	}

	doc := itemDocument(it)
	if doc["id"] != "4711" {
		t.Errorf("id: got %v", doc["id"])
	}
	if doc["location_code"] != "w4m" {
		t.Errorf("location_code: got %v", doc["location_code"])
	}
	if doc["updated_at"] != "2026-08-20T10:30:00Z" {
		t.Errorf("updated_at: got %v", doc["updated_at"])
	}

	it.LocationCode = nil
	doc = itemDocument(it)
	if _, ok := doc["location_code"]; ok {
		t.Error("nil location must not emit a location_code field")
	}
}

func TestBibDocument(t *testing.T) {
	loc := "w4m"
	b := &domain.BibRecord{
		ID:           99,
		Title:        "Go in Practice",
		Author:       "Butcher",
		LocationCode: "w4m",
		UpdatedAt:    time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC),
		Items: []domain.ItemRecord{
			{ID: 1, Barcode: "b1", CallNumber: "c1", LocationCode: &loc},
			{ID: 2, Barcode: "b2", CallNumber: "c2"},
		},
	}

	doc := bibDocument(b)
	if doc["id"] != "99" || doc["title"] != "Go in Practice" {
		t.Errorf("header fields: %v", doc)
	}
	if doc["item_count"] != 2 {
		t.Errorf("item_count: got %v", doc["item_count"])
	}
	barcodes, ok := doc["item_barcodes"].([]string)
	if !ok || len(barcodes) != 2 {
		t.Fatalf("item_barcodes: got %v", doc["item_barcodes"])
	}
	// The item without a location contributes no entry.
	itemLocations, ok := doc["item_locations"].([]string)
	if !ok || len(itemLocations) != 1 || itemLocations[0] != "w4m" {
		t.Errorf("item_locations: got %v", doc["item_locations"])
	}
}

func TestBibDocumentWithoutItems(t *testing.T) {
	doc := bibDocument(&domain.BibRecord{ID: 5, Title: "Bare"})
	if _, ok := doc["item_count"]; ok {
		t.Error("bib without items must not emit item fields")
	}
}
