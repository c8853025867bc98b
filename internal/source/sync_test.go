package source

import (
	"context"
	"io"
	"testing"

	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type scriptedSource struct {
	batches []RecordBatch
}

func (s *scriptedSource) GetSourceID() string       { return "scripted" }
func (s *scriptedSource) GetDisplayName() string    { return "Scripted" }
func (s *scriptedSource) SupportsIncremental() bool { return false }

func (s *scriptedSource) FetchBatch(_ context.Context, cursor string, _ int) (RecordBatch, string, error) {
	idx := 0
	if cursor == "next" {
		idx = 1
	}
	if idx >= len(s.batches) {
		return RecordBatch{}, "", nil
	}
	next := ""
	if idx+1 < len(s.batches) {
		next = "next"
	}
	return s.batches[idx], next, nil
}

func openSyncTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.Location{}, &domain.BibRecord{}, &domain.ItemRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestSyncUpsertsAllFamilies(t *testing.T) {
	db := openSyncTestDB(t)
	log := logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard, ServiceName: "test"})

	loc := "w4m"
	src := &scriptedSource{batches: []RecordBatch{
		{
			Locations: []domain.Location{{Code: "w4m", Label: "Media Library"}},
			Bibs:      []domain.BibRecord{{ID: 10, Title: "A", LocationCode: "w4m"}},
		},
		{
			Items: []domain.ItemRecord{{ID: 100, BibID: 10, Barcode: "b100", LocationCode: &loc}},
		},
	}}

	stats, err := NewSyncer(db, log).Sync(context.Background(), src, 100)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if stats.Batches != 2 || stats.Locations != 1 || stats.Bibs != 1 || stats.Items != 1 {
		t.Errorf("stats: %+v", stats)
	}

	var count int64
	db.Model(&domain.ItemRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("item rows: got %d", count)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	db := openSyncTestDB(t)
	log := logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard, ServiceName: "test"})

	src := &scriptedSource{batches: []RecordBatch{
		{Bibs: []domain.BibRecord{{ID: 10, Title: "A"}}},
	}}

	syncer := NewSyncer(db, log)
	if _, err := syncer.Sync(context.Background(), src, 100); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}

	// Second run carries a changed title for the same ID.
	src = &scriptedSource{batches: []RecordBatch{
		{Bibs: []domain.BibRecord{{ID: 10, Title: "A, revised"}}},
	}}
	if _, err := syncer.Sync(context.Background(), src, 100); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}

	var bibs []domain.BibRecord
	if err := db.Find(&bibs).Error; err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(bibs) != 1 {
		t.Fatalf("bib rows: got %d, want 1", len(bibs))
	}
	if bibs[0].Title != "A, revised" {
		t.Errorf("title not updated: %q", bibs[0].Title)
	}
}
