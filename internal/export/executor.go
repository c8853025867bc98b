package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/logger"
	"github.com/libsync/exportd/internal/notify"
	"github.com/libsync/exportd/internal/storage"
)

// JobStore is the persistence surface the executor needs. Satisfied by
// repository.JobRepository.
type JobStore interface {
	Create(ctx context.Context, job *domain.ExportJob) error
	Update(ctx context.Context, job *domain.ExportJob) error
	AddOutcome(ctx context.Context, outcome *domain.ChunkOutcome) error
	LatestSuccessful(ctx context.Context, exportType string) (*time.Time, error)
}

// NotificationSink receives severity-classified job events. Satisfied
// by notify.Notifier.
type NotificationSink interface {
	Notify(severity notify.Severity, job *domain.ExportJob, detail string)
}

// Executor runs export jobs end to end: it resolves the filter into
// record and deletion ID sets, chunks them, processes chunks under the
// shared concurrency governor, and aggregates chunk outcomes into a
// terminal job status.
type Executor struct {
	registry *Registry
	store    JobStore
	governor *Governor
	sink     NotificationSink
	archiver storage.ReportArchiver
	log      *logger.Logger
	clock    func() time.Time
}

// NewExecutor creates an Executor. sink and archiver may be nil, in
// which case notifications and report archiving are skipped.
func NewExecutor(reg *Registry, store JobStore, gov *Governor, sink NotificationSink, archiver storage.ReportArchiver, log *logger.Logger) *Executor {
	return &Executor{
		registry: reg,
		store:    store,
		governor: gov,
		sink:     sink,
		archiver: archiver,
		log:      log,
		clock:    time.Now,
	}
}

type chunkTask struct {
	seq int
	op  domain.ChunkOp
	ids []uint64
}

// Trigger runs one export job synchronously and returns the finished
// job row. The returned error is non-nil only when the job could not
// be set up at all; chunk-level failures are absorbed into the job
// status instead.
func (e *Executor) Trigger(ctx context.Context, exportType string, filter domain.ExportFilter, username string) (*domain.ExportJob, error) {
	exp, err := e.registry.Get(exportType)
	if err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	now := e.clock()
	job := &domain.ExportJob{
		ID:           uuid.New().String(),
		ExportType:   exportType,
		FilterKind:   filter.Kind,
		FilterParams: filter.Params(),
		Username:     username,
		Status:       domain.JobStatusPending,
		StartedAt:    &now,
	}
	if err := e.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	log := e.log.WithFields(logger.Fields{
		logger.FieldJobID:      job.ID,
		logger.FieldExportType: exportType,
	})
	ctx = log.WithContext(ctx)

	if filter.Kind == domain.FilterLastExport {
		resolved, err := e.resolveLastExport(ctx, exportType, filter, now)
		if err != nil {
			return e.failJob(ctx, job, log, err)
		}
		filter = resolved
		job.FilterParams = filter.Params()
	}

	job.Status = domain.JobStatusRunning
	if err := e.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job running: %w", err)
	}

	recIDs, delIDs, err := e.resolveIDSets(ctx, exp, filter)
	if err != nil {
		return e.failJob(ctx, job, log, err)
	}

	recChunks, err := Chunk(recIDs, exp.MaxRecChunk())
	if err != nil {
		return e.failJob(ctx, job, log, err)
	}
	delChunks, err := Chunk(delIDs, exp.MaxDelChunk())
	if err != nil {
		return e.failJob(ctx, job, log, err)
	}

	tasks := make([]chunkTask, 0, len(recChunks)+len(delChunks))
	for _, ids := range recChunks {
		tasks = append(tasks, chunkTask{seq: len(tasks), op: domain.OpExport, ids: ids})
	}
	for _, ids := range delChunks {
		tasks = append(tasks, chunkTask{seq: len(tasks), op: domain.OpDeletion, ids: ids})
	}

	job.TotalRecords = len(recIDs) + len(delIDs)
	job.TotalChunks = len(tasks)
	if err := e.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store job plan: %w", err)
	}

	log.WithFields(logger.Fields{
		"records":         len(recIDs),
		"deletions":       len(delIDs),
		"record_chunks":   len(recChunks),
		"deletion_chunks": len(delChunks),
		"filter":          string(filter.Kind),
	}).Info("Job plan resolved")

	outcomes := e.runChunks(ctx, exp, job, tasks)

	for i := range outcomes {
		switch outcomes[i].Result {
		case domain.ChunkError:
			job.Errors++
		case domain.ChunkWarning:
			job.Warnings++
		}
	}

	finalizeWarnings, finalizeErr := exp.Finalize(ctx)
	job.Warnings += len(finalizeWarnings)
	if finalizeErr != nil {
		job.Errors++
		log.WithError(finalizeErr).Error("Finalize failed")
	}
	for _, w := range finalizeWarnings {
		log.WithField("warning", w).Warn("Finalize warning")
	}

	successes := 0
	for i := range outcomes {
		if outcomes[i].Result != domain.ChunkError {
			successes++
		}
	}

	switch {
	case job.Errors == 0:
		job.Status = domain.JobStatusSuccessful
	case successes > 0:
		job.Status = domain.JobStatusPartiallyFailed
	default:
		job.Status = domain.JobStatusFailed
	}

	done := e.clock()
	job.CompletedAt = &done
	job.Outcomes = outcomes
	if err := e.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store job result: %w", err)
	}

	log.WithFields(logger.Fields{
		logger.FieldStatus:     string(job.Status),
		logger.FieldCount:      job.TotalRecords,
		logger.FieldDurationMs: done.Sub(now).Milliseconds(),
		"errors":               job.Errors,
		"warnings":             job.Warnings,
	}).Info("Job finished")

	e.dispatchNotifications(job, outcomes, finalizeErr)
	e.archive(ctx, job, log)

	return job, nil
}

// resolveIDSets lists the record and deletion ID sets for the job.
// Resolution queries the source database, so it runs under a governor
// slot like any chunk does.
func (e *Executor) resolveIDSets(ctx context.Context, exp Exporter, filter domain.ExportFilter) ([]uint64, []uint64, error) {
	slot, err := e.governor.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("cancelled before resolution: %w", err)
	}
	defer slot.Release()

	recIDs, err := exp.GetRecords(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve record set: %w", err)
	}
	delIDs, err := exp.GetDeletions(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve deletion set: %w", err)
	}
	return recIDs, delIDs, nil
}

// resolveLastExport turns a last-export filter into a concrete date
// range anchored on the newest job of the same type that finished
// successfully or partially so.
func (e *Executor) resolveLastExport(ctx context.Context, exportType string, f domain.ExportFilter, now time.Time) (domain.ExportFilter, error) {
	since, err := e.store.LatestSuccessful(ctx, exportType)
	if err != nil {
		return f, fmt.Errorf("failed to look up prior export: %w", err)
	}
	if since == nil {
		return f, fmt.Errorf("export type %s: %w", exportType, domain.ErrNoPriorExport)
	}
	f.DateFrom = *since
	f.DateTo = now
	return f, nil
}

// runChunks executes all chunk tasks under the governor and returns
// their outcomes ordered by sequence number regardless of completion
// order.
func (e *Executor) runChunks(ctx context.Context, exp Exporter, job *domain.ExportJob, tasks []chunkTask) []domain.ChunkOutcome {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make([]domain.ChunkOutcome, 0, len(tasks))
	)

	for _, t := range tasks {
		wg.Add(1)
		go func(t chunkTask) {
			defer wg.Done()

			outcome := e.runChunk(ctx, exp, job, t)

			if err := e.store.AddOutcome(ctx, &outcome); err != nil {
				logger.FromContext(ctx).WithError(err).
					WithField(logger.FieldChunkID, t.seq).
					Error("Failed to persist chunk outcome")
			}

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Seq < outcomes[j].Seq })
	return outcomes
}

func (e *Executor) runChunk(ctx context.Context, exp Exporter, job *domain.ExportJob, t chunkTask) domain.ChunkOutcome {
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldChunkID: t.seq,
		"op":                string(t.op),
	})

	outcome := domain.ChunkOutcome{
		JobID:  job.ID,
		Seq:    t.seq,
		Op:     t.op,
		FromID: t.ids[0],
		ToID:   t.ids[len(t.ids)-1],
	}

	slot, err := e.governor.Acquire(ctx)
	if err != nil {
		outcome.Result = domain.ChunkError
		outcome.Detail = fmt.Sprintf("cancelled before start: %v", err)
		outcome.FinishedAt = e.clock()
		return outcome
	}
	defer slot.Release()

	start := e.clock()
	var report ChunkReport
	if t.op == domain.OpExport {
		report, err = exp.ExportChunk(ctx, t.ids)
	} else {
		report, err = exp.DeleteChunk(ctx, t.ids)
	}
	outcome.Count = report.Processed
	outcome.FinishedAt = e.clock()

	switch {
	case err != nil:
		outcome.Result = domain.ChunkError
		outcome.Detail = err.Error()
		log.WithError(err).Error("Chunk failed")
	case len(report.Warnings) > 0:
		outcome.Result = domain.ChunkWarning
		outcome.Detail = strings.Join(report.Warnings, "; ")
		log.WithField("warnings", len(report.Warnings)).Warn("Chunk finished with warnings")
	default:
		outcome.Result = domain.ChunkSuccess
		log.WithFields(logger.Fields{
			logger.FieldCount:      report.Processed,
			logger.FieldDurationMs: outcome.FinishedAt.Sub(start).Milliseconds(),
		}).Info("Chunk finished")
	}
	return outcome
}

func (e *Executor) failJob(ctx context.Context, job *domain.ExportJob, log *logger.Logger, cause error) (*domain.ExportJob, error) {
	log.WithError(cause).Error("Job failed before chunking")

	now := e.clock()
	job.Status = domain.JobStatusFailed
	job.Errors = 1
	job.CompletedAt = &now
	if err := e.store.Update(ctx, job); err != nil {
		log.WithError(err).Error("Failed to store failed job")
	}
	if e.sink != nil {
		e.sink.Notify(notify.SeverityError, job, cause.Error())
	}
	return job, cause
}

func (e *Executor) dispatchNotifications(job *domain.ExportJob, outcomes []domain.ChunkOutcome, finalizeErr error) {
	if e.sink == nil {
		return
	}

	var details []string
	for i := range outcomes {
		if outcomes[i].Result == domain.ChunkSuccess {
			continue
		}
		details = append(details, fmt.Sprintf("chunk %d (%s %d..%d): %s",
			outcomes[i].Seq, outcomes[i].Op, outcomes[i].FromID, outcomes[i].ToID, outcomes[i].Detail))
	}
	if finalizeErr != nil {
		details = append(details, fmt.Sprintf("finalize: %v", finalizeErr))
	}

	switch {
	case job.Errors > 0:
		e.sink.Notify(notify.SeverityError, job, strings.Join(details, "\n"))
	case job.Warnings > 0:
		e.sink.Notify(notify.SeverityWarning, job, strings.Join(details, "\n"))
	}
}

func (e *Executor) archive(ctx context.Context, job *domain.ExportJob, log *logger.Logger) {
	if e.archiver == nil {
		return
	}
	if err := e.archiver.ArchiveReport(ctx, job); err != nil {
		log.WithError(err).Warn("Failed to archive job report")
	}
}
