package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/logger"
	"github.com/libsync/exportd/internal/notify"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard, ServiceName: "test"})
}

// memStore is an in-memory JobStore.
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]domain.ExportJob
	outcomes []domain.ChunkOutcome
	latest   *time.Time
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]domain.ExportJob)}
}

func (s *memStore) Create(_ context.Context, job *domain.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memStore) Update(_ context.Context, job *domain.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memStore) AddOutcome(_ context.Context, outcome *domain.ChunkOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, *outcome)
	return nil
}

func (s *memStore) LatestSuccessful(_ context.Context, _ string) (*time.Time, error) {
	return s.latest, nil
}

// memSink records notifications.
type memSink struct {
	mu     sync.Mutex
	events []notify.Severity
}

func (s *memSink) Notify(severity notify.Severity, _ *domain.ExportJob, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, severity)
}

func (s *memSink) severities() []notify.Severity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Severity(nil), s.events...)
}

// fakeExporter is a scriptable exporter. failFrom and warnFrom key on
// the first ID of a chunk.
type fakeExporter struct {
	name             string
	maxRec           int
	maxDel           int
	records          []uint64
	deletions        []uint64
	recordsErr       error
	failFrom         map[uint64]error
	warnFrom         map[uint64][]string
	finalizeErr      error
	finalizeWarnings []string

	mu         sync.Mutex
	exported   [][]uint64
	deleted    [][]uint64
	seenFilter domain.ExportFilter
	finalized  int
}

func (f *fakeExporter) Name() string     { return f.name }
func (f *fakeExporter) MaxRecChunk() int { return f.maxRec }
func (f *fakeExporter) MaxDelChunk() int { return f.maxDel }

func (f *fakeExporter) GetRecords(_ context.Context, filter domain.ExportFilter) ([]uint64, error) {
	f.mu.Lock()
	f.seenFilter = filter
	f.mu.Unlock()
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	return f.records, nil
}

func (f *fakeExporter) GetDeletions(_ context.Context, _ domain.ExportFilter) ([]uint64, error) {
	return f.deletions, nil
}

func (f *fakeExporter) ExportChunk(_ context.Context, ids []uint64) (ChunkReport, error) {
	f.mu.Lock()
	f.exported = append(f.exported, ids)
	f.mu.Unlock()
	if err, ok := f.failFrom[ids[0]]; ok {
		return ChunkReport{}, err
	}
	if warnings, ok := f.warnFrom[ids[0]]; ok {
		return ChunkReport{Processed: len(ids), Warnings: warnings}, nil
	}
	return ChunkReport{Processed: len(ids)}, nil
}

func (f *fakeExporter) DeleteChunk(_ context.Context, ids []uint64) (ChunkReport, error) {
	f.mu.Lock()
	f.deleted = append(f.deleted, ids)
	f.mu.Unlock()
	if err, ok := f.failFrom[ids[0]]; ok {
		return ChunkReport{}, err
	}
	return ChunkReport{Processed: len(ids)}, nil
}

func (f *fakeExporter) Finalize(_ context.Context) ([]string, error) {
	f.mu.Lock()
	f.finalized++
	f.mu.Unlock()
	return f.finalizeWarnings, f.finalizeErr
}

func newTestExecutor(exp *fakeExporter, store *memStore, sink *memSink) *Executor {
	reg := NewRegistry()
	reg.Register(exp)
	return NewExecutor(reg, store, NewGovernor(4), sink, nil, testLogger())
}

func TestTriggerSuccessfulRun(t *testing.T) {
	exp := &fakeExporter{name: "ItemsToSolr", maxRec: 4, maxDel: 2, records: sequentialIDs(100, 109)}
	store := newMemStore()
	sink := &memSink{}
	executor := newTestExecutor(exp, store, sink)

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if job.Status != domain.JobStatusSuccessful {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusSuccessful)
	}
	if job.TotalChunks != 3 {
		t.Errorf("total chunks: got %d, want 3", job.TotalChunks)
	}
	if job.TotalRecords != 10 {
		t.Errorf("total records: got %d, want 10", job.TotalRecords)
	}
	if job.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if exp.finalized != 1 {
		t.Errorf("finalize calls: got %d, want 1", exp.finalized)
	}

	// Outcomes come back ordered by sequence with contiguous bounds.
	wantBounds := [][2]uint64{{100, 103}, {104, 107}, {108, 109}}
	if len(job.Outcomes) != len(wantBounds) {
		t.Fatalf("outcome count: got %d, want %d", len(job.Outcomes), len(wantBounds))
	}
	for i, want := range wantBounds {
		o := job.Outcomes[i]
		if o.Seq != i {
			t.Errorf("outcome %d: seq %d", i, o.Seq)
		}
		if o.FromID != want[0] || o.ToID != want[1] {
			t.Errorf("outcome %d bounds: got %d..%d, want %d..%d", i, o.FromID, o.ToID, want[0], want[1])
		}
		if o.Result != domain.ChunkSuccess {
			t.Errorf("outcome %d result: got %s", i, o.Result)
		}
	}

	if got := sink.severities(); len(got) != 0 {
		t.Errorf("expected no notifications for a clean run, got %v", got)
	}
}

func TestTriggerIsolatesChunkFailures(t *testing.T) {
	exp := &fakeExporter{
		name:     "ItemsToSolr",
		maxRec:   4,
		maxDel:   2,
		records:  sequentialIDs(100, 109),
		failFrom: map[uint64]error{104: errors.New("solr refused the batch")},
	}
	store := newMemStore()
	sink := &memSink{}
	executor := newTestExecutor(exp, store, sink)

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if job.Status != domain.JobStatusPartiallyFailed {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusPartiallyFailed)
	}
	if job.Errors != 1 {
		t.Errorf("errors: got %d, want 1", job.Errors)
	}
	if len(exp.exported) != 3 {
		t.Errorf("all chunks should still be attempted, got %d", len(exp.exported))
	}

	got := sink.severities()
	if len(got) != 1 || got[0] != notify.SeverityError {
		t.Errorf("expected one error notification, got %v", got)
	}
}

func TestTriggerAllChunksFailing(t *testing.T) {
	boom := errors.New("core down")
	exp := &fakeExporter{
		name:     "ItemsToSolr",
		maxRec:   4,
		maxDel:   2,
		records:  sequentialIDs(100, 107),
		failFrom: map[uint64]error{100: boom, 104: boom},
	}
	store := newMemStore()
	sink := &memSink{}
	executor := newTestExecutor(exp, store, sink)

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusFailed)
	}
}

func TestTriggerDeletionChunks(t *testing.T) {
	exp := &fakeExporter{
		name:      "ItemsToSolr",
		maxRec:    4,
		maxDel:    2,
		records:   sequentialIDs(100, 103),
		deletions: sequentialIDs(200, 204),
	}
	store := newMemStore()
	executor := newTestExecutor(exp, store, &memSink{})

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	// 1 export chunk + 3 deletion chunks of max 2.
	if job.TotalChunks != 4 {
		t.Errorf("total chunks: got %d, want 4", job.TotalChunks)
	}
	if len(exp.deleted) != 3 {
		t.Errorf("deletion chunks: got %d, want 3", len(exp.deleted))
	}

	ops := map[domain.ChunkOp]int{}
	for _, o := range job.Outcomes {
		ops[o.Op]++
	}
	if ops[domain.OpExport] != 1 || ops[domain.OpDeletion] != 3 {
		t.Errorf("op mix: got %v", ops)
	}
}

func TestTriggerUnknownExportType(t *testing.T) {
	store := newMemStore()
	executor := NewExecutor(NewRegistry(), store, NewGovernor(4), nil, nil, testLogger())

	_, err := executor.Trigger(context.Background(), "NopeToSolr", domain.FullFilter(), "admin")
	if !errors.Is(err, domain.ErrUnknownExportType) {
		t.Fatalf("expected ErrUnknownExportType, got %v", err)
	}
	if len(store.jobs) != 0 {
		t.Error("no job row should be created for an unknown export type")
	}
}

func TestTriggerFilterResolutionFailure(t *testing.T) {
	exp := &fakeExporter{
		name:       "ItemsToSolr",
		maxRec:     4,
		maxDel:     2,
		recordsErr: fmt.Errorf("location xyz: %w", domain.ErrUnknownLocation),
	}
	store := newMemStore()
	sink := &memSink{}
	executor := newTestExecutor(exp, store, sink)

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.LocationFilter("xyz"), "admin")
	if !errors.Is(err, domain.ErrUnknownLocation) {
		t.Fatalf("expected ErrUnknownLocation, got %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusFailed)
	}
	if job.TotalChunks != 0 {
		t.Errorf("no chunks should run, got %d", job.TotalChunks)
	}
	got := sink.severities()
	if len(got) != 1 || got[0] != notify.SeverityError {
		t.Errorf("expected one error notification, got %v", got)
	}
}

func TestTriggerLastExportWithoutPriorRun(t *testing.T) {
	exp := &fakeExporter{name: "ItemsToSolr", maxRec: 4, maxDel: 2}
	store := newMemStore()
	executor := newTestExecutor(exp, store, &memSink{})

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.LastExportFilter(), "admin")
	if !errors.Is(err, domain.ErrNoPriorExport) {
		t.Fatalf("expected ErrNoPriorExport, got %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusFailed)
	}
}

func TestTriggerLastExportResolvesWindow(t *testing.T) {
	since := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	exp := &fakeExporter{name: "ItemsToSolr", maxRec: 4, maxDel: 2, records: sequentialIDs(1, 3)}
	store := newMemStore()
	store.latest = &since
	executor := newTestExecutor(exp, store, &memSink{})

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.LastExportFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if job.Status != domain.JobStatusSuccessful {
		t.Errorf("status: got %s", job.Status)
	}
	if !exp.seenFilter.DateFrom.Equal(since) {
		t.Errorf("resolved window start: got %v, want %v", exp.seenFilter.DateFrom, since)
	}
	if exp.seenFilter.DateTo.IsZero() {
		t.Error("resolved window end not set")
	}
}

func TestTriggerWarningsStaySuccessful(t *testing.T) {
	exp := &fakeExporter{
		name:     "ItemsToSolr",
		maxRec:   4,
		maxDel:   2,
		records:  sequentialIDs(100, 103),
		warnFrom: map[uint64][]string{100: {"1 of 4 item records vanished between listing and fetch"}},
	}
	store := newMemStore()
	sink := &memSink{}
	executor := newTestExecutor(exp, store, sink)

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if job.Status != domain.JobStatusSuccessful {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusSuccessful)
	}
	if job.Warnings != 1 {
		t.Errorf("warnings: got %d, want 1", job.Warnings)
	}
	got := sink.severities()
	if len(got) != 1 || got[0] != notify.SeverityWarning {
		t.Errorf("expected one warning notification, got %v", got)
	}
}

func TestTriggerFinalizeFailureDegradesStatus(t *testing.T) {
	exp := &fakeExporter{
		name:        "ItemsToSolr",
		maxRec:      4,
		maxDel:      2,
		records:     sequentialIDs(100, 103),
		finalizeErr: errors.New("commit refused"),
	}
	store := newMemStore()
	sink := &memSink{}
	executor := newTestExecutor(exp, store, sink)

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if job.Status != domain.JobStatusPartiallyFailed {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusPartiallyFailed)
	}
	got := sink.severities()
	if len(got) != 1 || got[0] != notify.SeverityError {
		t.Errorf("expected one error notification, got %v", got)
	}
}

func TestTriggerEmptyRecordSet(t *testing.T) {
	exp := &fakeExporter{name: "ItemsToSolr", maxRec: 4, maxDel: 2}
	store := newMemStore()
	executor := newTestExecutor(exp, store, &memSink{})

	job, err := executor.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if job.Status != domain.JobStatusSuccessful {
		t.Errorf("status: got %s, want %s", job.Status, domain.JobStatusSuccessful)
	}
	if job.TotalChunks != 0 || job.TotalRecords != 0 {
		t.Errorf("expected empty plan, got %d chunks / %d records", job.TotalChunks, job.TotalRecords)
	}
}

func TestTriggerRerunSameFilterComparableOutcomes(t *testing.T) {
	store := newMemStore()
	makeExp := func() *fakeExporter {
		return &fakeExporter{name: "ItemsToSolr", maxRec: 4, maxDel: 2, records: sequentialIDs(100, 109)}
	}

	first := newTestExecutor(makeExp(), store, &memSink{})
	job1, err := first.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("first Trigger failed: %v", err)
	}
	second := newTestExecutor(makeExp(), store, &memSink{})
	job2, err := second.Trigger(context.Background(), "ItemsToSolr", domain.FullFilter(), "admin")
	if err != nil {
		t.Fatalf("second Trigger failed: %v", err)
	}

	if len(job1.Outcomes) != len(job2.Outcomes) {
		t.Fatalf("outcome counts differ: %d vs %d", len(job1.Outcomes), len(job2.Outcomes))
	}
	for i := range job1.Outcomes {
		a, b := job1.Outcomes[i], job2.Outcomes[i]
		if a.FromID != b.FromID || a.ToID != b.ToID || a.Op != b.Op {
			t.Errorf("outcome %d differs between runs: %+v vs %+v", i, a, b)
		}
	}
}
