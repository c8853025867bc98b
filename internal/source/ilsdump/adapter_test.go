package ilsdump

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeDump(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("failed to write dump: %v", err)
	}
	return path
}

const sampleDump = `{"type":"location","data":{"code":"w4m","label":"Media Library"}}
{"type":"bib","data":{"id":10,"title":"A","location_code":"w4m"}}
{"type":"item","data":{"id":100,"bib_id":10,"barcode":"b100"}}
{"type":"item","data":{"id":101,"bib_id":10,"barcode":"b101"}}
`

func TestFetchBatchPaginates(t *testing.T) {
	adapter := NewAdapter(writeDump(t, sampleDump))
	ctx := context.Background()

	batch, cursor, err := adapter.FetchBatch(ctx, "", 3)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if batch.Size() != 3 {
		t.Errorf("first batch size: got %d, want 3", batch.Size())
	}
	if len(batch.Locations) != 1 || len(batch.Bibs) != 1 || len(batch.Items) != 1 {
		t.Errorf("family split: %d/%d/%d", len(batch.Locations), len(batch.Bibs), len(batch.Items))
	}
	if cursor == "" {
		t.Fatal("expected a continuation cursor")
	}

	batch, cursor, err = adapter.FetchBatch(ctx, cursor, 3)
	if err != nil {
		t.Fatalf("second FetchBatch failed: %v", err)
	}
	if batch.Size() != 1 || len(batch.Items) != 1 {
		t.Errorf("second batch: got %d records", batch.Size())
	}
	if batch.Items[0].ID != 101 {
		t.Errorf("second batch item: got %d", batch.Items[0].ID)
	}
	if cursor != "" {
		t.Errorf("expected exhausted cursor, got %q", cursor)
	}
}

func TestFetchBatchBadRecordType(t *testing.T) {
	adapter := NewAdapter(writeDump(t, `{"type":"patron","data":{}}`+"\n"))
	if _, _, err := adapter.FetchBatch(context.Background(), "", 10); err == nil {
		t.Fatal("expected error for unknown record type")
	}
}

func TestFetchBatchBadCursor(t *testing.T) {
	adapter := NewAdapter(writeDump(t, sampleDump))
	if _, _, err := adapter.FetchBatch(context.Background(), "later", 10); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}

func TestFetchBatchMissingFile(t *testing.T) {
	adapter := NewAdapter("/nonexistent/dump.jsonl")
	if _, _, err := adapter.FetchBatch(context.Background(), "", 10); err == nil {
		t.Fatal("expected error for missing dump file")
	}
}
