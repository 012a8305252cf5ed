package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
	"github.com/amai2222/shipment-data-view-sub002/internal/models"
	"github.com/amai2222/shipment-data-view-sub002/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrRunNotFound       = repository.ErrRunNotFound
	ErrRunAlreadyApplied = errors.New("import run already applied")
	ErrRunNotFinished    = errors.New("import run has not finished")
	ErrModeMismatch      = errors.New("import run belongs to another mode")
	ErrInvalidRequest    = errors.New("invalid request")
)

// RunStore persists import runs between preview and apply.
type RunStore interface {
	Save(ctx context.Context, run *models.ImportRun) error
	Get(ctx context.Context, id string) (*models.ImportRun, error)
	List(ctx context.Context, limit int) ([]models.ImportRunSummary, error)
	AcquireApplyLock(ctx context.Context, id string) (bool, error)
	ReleaseApplyLock(ctx context.Context, id string) error
}

// TaskQueue hands a locked run to the background worker.
type TaskQueue interface {
	EnqueueApply(ctx context.Context, runID string, mode importer.ImportMode) error
}

// Reconciler is the preview and execute API of importer.Engine.
type Reconciler interface {
	Aliases() *importer.AliasTable
	PreviewSelectiveUpdate(ctx context.Context, rows []importer.RawRow, selected importer.FieldSet, scope string) (*importer.SelectivePreview, error)
	ExecuteSelectiveUpdate(ctx context.Context, items []importer.PreviewItem) (*importer.ImportOutcome, error)
	PreviewFullImport(ctx context.Context, rows []importer.RawRow) (*importer.FullImportPreview, error)
	ExecuteFullImport(ctx context.Context, preview *importer.FullImportPreview, approved importer.ApprovalSet) (*importer.ImportOutcome, error)
}

// Upload is a spreadsheet received for preview.
type Upload struct {
	File      io.Reader
	Filename  string
	CreatedBy string
}

// FieldInfo describes one field for the upload form.
type FieldInfo struct {
	importer.FieldMeta
	Aliases []string `json:"aliases"`
}

type ImportService struct {
	engine Reconciler
	excel  *ExcelService
	runs   RunStore
	queue  TaskQueue
	logger *logrus.Logger
	now    func() time.Time
}

// NewImportService wires the import workflow. A nil queue applies runs
// inline on the calling goroutine.
func NewImportService(engine Reconciler, excel *ExcelService, runs RunStore, queue TaskQueue, logger *logrus.Logger) *ImportService {
	return &ImportService{
		engine: engine,
		excel:  excel,
		runs:   runs,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Fields lists every field with its accepted header aliases.
func (s *ImportService) Fields() []FieldInfo {
	aliases := s.engine.Aliases()
	fields := importer.Fields()
	out := make([]FieldInfo, len(fields))
	for i, f := range fields {
		out[i] = FieldInfo{FieldMeta: f, Aliases: aliases.Aliases(f.Key)}
	}
	return out
}

func (s *ImportService) Template(mode importer.ImportMode) ([]byte, error) {
	if mode != importer.ModeSelective && mode != importer.ModeFull {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}
	return s.excel.Template(mode)
}

// PreviewSelective parses the upload and stores a selective-update preview.
// With no fields given, unloading_weight is selected.
func (s *ImportService) PreviewSelective(ctx context.Context, upload Upload, fieldNames []string, project string) (*models.ImportRun, error) {
	selected, err := importer.ParseFieldSet(fieldNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(selected) == 0 {
		selected = importer.NewFieldSet(importer.FieldUnloadingWeight)
	}

	rows, err := s.excel.ParseRows(upload.File, upload.Filename)
	if err != nil {
		return nil, err
	}

	preview, err := s.engine.PreviewSelectiveUpdate(ctx, rows, selected, project)
	if err != nil {
		return nil, err
	}

	run := s.newRun(importer.ModeSelective, upload)
	run.Project = project
	run.Selective = preview
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"filename":  run.Filename,
		"matched":   preview.MatchedCount,
		"unmatched": preview.UnmatchedCount,
	}).Info("Selective update previewed")
	return run, nil
}

// PreviewFull parses the upload and stores a full-import preview.
func (s *ImportService) PreviewFull(ctx context.Context, upload Upload) (*models.ImportRun, error) {
	rows, err := s.excel.ParseRows(upload.File, upload.Filename)
	if err != nil {
		return nil, err
	}

	preview, err := s.engine.PreviewFullImport(ctx, rows)
	if err != nil {
		return nil, err
	}

	run := s.newRun(importer.ModeFull, upload)
	run.Full = preview
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"filename":   run.Filename,
		"new":        len(preview.NewRecords),
		"duplicates": len(preview.DuplicateRecords),
		"invalid":    len(preview.Invalid),
	}).Info("Full import previewed")
	return run, nil
}

func (s *ImportService) newRun(mode importer.ImportMode, upload Upload) *models.ImportRun {
	now := s.now()
	return &models.ImportRun{
		ID:        uuid.NewString(),
		Mode:      mode,
		Filename:  upload.Filename,
		Status:    models.RunPreviewed,
		CreatedBy: upload.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ExecuteSelective applies a previewed selective run. rows restricts the
// apply to those sheet rows; every one must be a matched row of the preview.
func (s *ImportService) ExecuteSelective(ctx context.Context, runID string, rows []int) (*models.ImportRun, error) {
	run, err := s.loadPending(ctx, runID, importer.ModeSelective)
	if err != nil {
		return nil, err
	}

	matched := make(map[int]bool)
	for _, item := range run.Selective.Matched() {
		matched[item.Row] = true
	}
	for _, r := range rows {
		if !matched[r] {
			return nil, fmt.Errorf("%w: row %d is not a matched row of this preview", ErrInvalidRequest, r)
		}
	}
	run.ApprovedRows = rows
	return s.dispatch(ctx, run)
}

// ExecuteFull applies a previewed full import with the given duplicate
// approvals. Approvals are validated before the run is locked.
func (s *ImportService) ExecuteFull(ctx context.Context, runID string, approved []int) (*models.ImportRun, error) {
	run, err := s.loadPending(ctx, runID, importer.ModeFull)
	if err != nil {
		return nil, err
	}
	if _, _, err := run.Full.Select(importer.NewApprovalSet(approved...)); err != nil {
		return nil, err
	}
	run.Approved = importer.NewApprovalSet(approved...).Sorted()
	return s.dispatch(ctx, run)
}

func (s *ImportService) loadPending(ctx context.Context, runID string, mode importer.ImportMode) (*models.ImportRun, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Mode != mode {
		return nil, ErrModeMismatch
	}
	if run.Status != models.RunPreviewed {
		return nil, ErrRunAlreadyApplied
	}
	if (mode == importer.ModeSelective && run.Selective == nil) || (mode == importer.ModeFull && run.Full == nil) {
		return nil, fmt.Errorf("run %s has no preview", run.ID)
	}
	return run, nil
}

// dispatch locks the run and either queues it or applies it inline.
func (s *ImportService) dispatch(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error) {
	ok, err := s.runs.AcquireApplyLock(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunAlreadyApplied
	}

	if s.queue == nil {
		return s.apply(ctx, run)
	}

	run.Status = models.RunQueued
	run.UpdatedAt = s.now()
	if err := s.runs.Save(ctx, run); err != nil {
		s.releaseLock(ctx, run.ID)
		return nil, err
	}
	if err := s.queue.EnqueueApply(ctx, run.ID, run.Mode); err != nil {
		run.Status = models.RunPreviewed
		run.UpdatedAt = s.now()
		if saveErr := s.runs.Save(ctx, run); saveErr != nil {
			s.logger.WithError(saveErr).WithField("run_id", run.ID).Error("Failed to restore run after enqueue failure")
		}
		s.releaseLock(ctx, run.ID)
		return nil, fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
	}

	s.logger.WithField("run_id", run.ID).Info("Import run queued")
	return run, nil
}

func (s *ImportService) releaseLock(ctx context.Context, runID string) {
	if err := s.runs.ReleaseApplyLock(ctx, runID); err != nil {
		s.logger.WithError(err).WithField("run_id", runID).Error("Failed to release apply lock")
	}
}

// ApplyRun executes a locked run. It is called by the worker and is a no-op
// for runs that already finished.
func (s *ImportService) ApplyRun(ctx context.Context, runID string) (*models.ImportRun, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return run, nil
	}
	if run.Status == models.RunApplying {
		return nil, ErrRunAlreadyApplied
	}
	return s.apply(ctx, run)
}

func (s *ImportService) apply(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error) {
	log := s.logger.WithFields(logrus.Fields{"run_id": run.ID, "mode": run.Mode})

	run.Status = models.RunApplying
	run.UpdatedAt = s.now()
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	var (
		outcome *importer.ImportOutcome
		err     error
	)
	switch run.Mode {
	case importer.ModeSelective:
		outcome, err = s.engine.ExecuteSelectiveUpdate(ctx, selectedItems(run))
	case importer.ModeFull:
		outcome, err = s.engine.ExecuteFullImport(ctx, run.Full, importer.NewApprovalSet(run.Approved...))
	default:
		err = fmt.Errorf("unknown import mode %q", run.Mode)
	}

	run.UpdatedAt = s.now()
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		if saveErr := s.runs.Save(ctx, run); saveErr != nil {
			log.WithError(saveErr).Error("Failed to save failed run")
		}
		log.WithError(err).Error("Import run failed")
		return run, err
	}

	outcome.RunID = run.ID
	run.Outcome = outcome
	run.Status = models.RunCompleted
	if outcome.TransportError != "" {
		run.Status = models.RunFailed
		run.Error = outcome.TransportError
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"total":   outcome.Total,
		"success": outcome.SuccessCount,
		"failed":  outcome.FailedCount,
		"skipped": outcome.SkippedCount,
	}).Info("Import run applied")
	return run, nil
}

// selectedItems returns the preview items to apply, in row order.
func selectedItems(run *models.ImportRun) []importer.PreviewItem {
	if len(run.ApprovedRows) == 0 {
		return run.Selective.Items
	}
	want := make(map[int]bool, len(run.ApprovedRows))
	for _, r := range run.ApprovedRows {
		want[r] = true
	}
	var items []importer.PreviewItem
	for _, item := range run.Selective.Items {
		if want[item.Row] {
			items = append(items, item)
		}
	}
	return items
}

func (s *ImportService) GetRun(ctx context.Context, runID string) (*models.ImportRun, error) {
	return s.runs.Get(ctx, runID)
}

func (s *ImportService) ListRuns(ctx context.Context, limit int) ([]models.ImportRunSummary, error) {
	return s.runs.List(ctx, limit)
}

// Report renders the outcome workbook of a finished run.
func (s *ImportService) Report(ctx context.Context, runID string) ([]byte, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Outcome == nil {
		return nil, ErrRunNotFinished
	}
	return s.excel.OutcomeReport(run)
}
