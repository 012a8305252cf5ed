package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ImportMode names the workflow that produced an outcome.
type ImportMode string

const (
	ModeSelective ImportMode = "selective"
	ModeFull      ImportMode = "full"
)

// ImportOutcome is the report of one executed batch.
// SuccessCount + FailedCount + SkippedCount == Total.
type ImportOutcome struct {
	RunID          string     `json:"run_id,omitempty"`
	Mode           ImportMode `json:"mode"`
	Total          int        `json:"total"`
	SuccessCount   int        `json:"success_count"`
	FailedCount    int        `json:"failed_count"`
	SkippedCount   int        `json:"skipped_count"`
	RowErrors      []RowError `json:"row_errors"`
	SkippedRows    []int      `json:"skipped_rows,omitempty"`
	UpdatedFields  []FieldKey `json:"updated_fields,omitempty"`
	TransportError string     `json:"transport_error,omitempty"`
	FinishedAt     time.Time  `json:"finished_at"`
}

// Balanced reports whether every row is accounted for exactly once.
func (o *ImportOutcome) Balanced() bool {
	return o.SuccessCount+o.FailedCount+o.SkippedCount == o.Total
}

// UpdatePlan is the result of turning previewed rows into operations.
type UpdatePlan struct {
	Operations []UpdateOperation
	// Excluded rows failed before submission (unresolved references).
	Excluded []RowError
	// Skipped rows had nothing to change.
	Skipped []int
}

// PlanUpdates builds one operation per matched row from the changes that
// will update. Unmatched items are ignored.
func PlanUpdates(items []PreviewItem) UpdatePlan {
	var plan UpdatePlan
	for _, item := range items {
		if item.Status != StatusMatched {
			continue
		}
		if msg := item.ExclusionReason(); msg != "" {
			plan.Excluded = append(plan.Excluded, RowError{
				Row:        item.Row,
				RecordID:   item.RecordID,
				AutoNumber: item.AutoNumber,
				Kind:       ErrorReferenceUnresolved,
				Message:    msg,
			})
			continue
		}
		fields := make(map[FieldKey]Value)
		for _, c := range item.Changes {
			if c.WillUpdate && c.NewValue != nil {
				fields[c.Field] = *c.NewValue
			}
		}
		if len(fields) == 0 {
			plan.Skipped = append(plan.Skipped, item.Row)
			continue
		}
		plan.Operations = append(plan.Operations, UpdateOperation{
			RecordID:   item.RecordID,
			AutoNumber: item.AutoNumber,
			Row:        item.Row,
			Fields:     fields,
		})
	}
	return plan
}

// Executor submits finalized operations in one store call and folds the
// response into an ImportOutcome.
type Executor struct {
	applier BatchApplier
	creator RecordCreator
	logger  *logrus.Logger
}

func NewExecutor(applier BatchApplier, creator RecordCreator, logger *logrus.Logger) *Executor {
	return &Executor{applier: applier, creator: creator, logger: logger}
}

// ApplyUpdates executes a selective update. Row-level problems end up in the
// outcome; the error return is reserved for malformed store responses and a
// context cancelled before submission.
func (e *Executor) ApplyUpdates(ctx context.Context, items []PreviewItem) (*ImportOutcome, error) {
	plan := PlanUpdates(items)
	out := &ImportOutcome{
		Mode:         ModeSelective,
		Total:        len(plan.Operations) + len(plan.Excluded) + len(plan.Skipped),
		FailedCount:  len(plan.Excluded),
		SkippedCount: len(plan.Skipped),
		RowErrors:    append([]RowError{}, plan.Excluded...),
		SkippedRows:  plan.Skipped,
	}
	if len(plan.Operations) == 0 {
		out.FinishedAt = time.Now()
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"operations": len(plan.Operations),
		"excluded":   len(plan.Excluded),
		"skipped":    len(plan.Skipped),
	}).Info("Submitting update batch")

	res, err := e.applier.ApplyBatch(ctx, plan.Operations)
	if err != nil {
		terr := &TransportError{Op: "apply batch", Err: err}
		e.logger.WithError(err).Error("Update batch failed in transport")
		out.TransportError = terr.Error()
		out.FailedCount += len(plan.Operations)
		for _, op := range plan.Operations {
			out.RowErrors = append(out.RowErrors, RowError{
				Row:        op.Row,
				RecordID:   op.RecordID,
				AutoNumber: op.AutoNumber,
				Kind:       ErrorTransport,
				Message:    terr.Error(),
			})
		}
		out.FinishedAt = time.Now()
		return out, nil
	}
	if err := checkBatchResult(res, plan.Operations); err != nil {
		return nil, err
	}

	failed := make(map[int]bool, len(res.Errors))
	for _, f := range res.Errors {
		op := plan.Operations[f.Index]
		failed[f.Index] = true
		out.RowErrors = append(out.RowErrors, RowError{
			Row:        op.Row,
			RecordID:   op.RecordID,
			AutoNumber: op.AutoNumber,
			Kind:       ErrorApplyFailed,
			Message:    f.Message,
		})
	}
	out.SuccessCount = res.SuccessCount
	out.FailedCount += len(res.Errors)

	updated := make(FieldSet)
	for i, op := range plan.Operations {
		if failed[i] {
			continue
		}
		for k := range op.Fields {
			updated[k] = struct{}{}
		}
	}
	out.UpdatedFields = updated.Keys()
	out.FinishedAt = time.Now()

	e.logger.WithFields(logrus.Fields{
		"success": out.SuccessCount,
		"failed":  out.FailedCount,
		"skipped": out.SkippedCount,
	}).Info("Update batch completed")
	return out, nil
}

func checkBatchResult(res *BatchResult, ops []UpdateOperation) error {
	if res == nil {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if res.SuccessCount < 0 || res.SuccessCount+len(res.Errors) != len(ops) {
		return fmt.Errorf("%w: %d succeeded and %d failed for %d operations",
			ErrMalformedResponse, res.SuccessCount, len(res.Errors), len(ops))
	}
	seen := make(map[int]bool, len(res.Errors))
	for _, f := range res.Errors {
		if f.Index < 0 || f.Index >= len(ops) || seen[f.Index] {
			return fmt.Errorf("%w: unexpected error entry for index %d", ErrMalformedResponse, f.Index)
		}
		if f.RecordID != "" && f.RecordID != ops[f.Index].RecordID {
			return fmt.Errorf("%w: error entry %d names record %q, submitted %q",
				ErrMalformedResponse, f.Index, f.RecordID, ops[f.Index].RecordID)
		}
		seen[f.Index] = true
	}
	return nil
}

// CreateRecords executes a full import of apply; skipped are the duplicates
// the operator did not approve.
func (e *Executor) CreateRecords(ctx context.Context, apply, skipped []ImportCandidate) (*ImportOutcome, error) {
	out := &ImportOutcome{
		Mode:         ModeFull,
		Total:        len(apply) + len(skipped),
		SkippedCount: len(skipped),
		RowErrors:    []RowError{},
	}
	for _, s := range skipped {
		out.SkippedRows = append(out.SkippedRows, s.Row)
	}
	if len(apply) == 0 {
		out.FinishedAt = time.Now()
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drafts := make([]NewRecordDraft, len(apply))
	for i, c := range apply {
		drafts[i] = c.Draft
	}

	e.logger.WithFields(logrus.Fields{
		"records": len(drafts),
		"skipped": len(skipped),
	}).Info("Submitting create batch")

	res, err := e.creator.CreateRecords(ctx, drafts)
	if err != nil {
		terr := &TransportError{Op: "create records", Err: err}
		e.logger.WithError(err).Error("Create batch failed in transport")
		out.TransportError = terr.Error()
		out.FailedCount = len(drafts)
		for _, d := range drafts {
			out.RowErrors = append(out.RowErrors, RowError{Row: d.Row, Kind: ErrorTransport, Message: terr.Error()})
		}
		out.FinishedAt = time.Now()
		return out, nil
	}
	if err := checkCreateResult(res, len(drafts)); err != nil {
		return nil, err
	}

	for _, f := range res.Errors {
		out.RowErrors = append(out.RowErrors, RowError{
			Row:     drafts[f.Index].Row,
			Kind:    ErrorCreateFailed,
			Message: f.Message,
		})
	}
	out.SuccessCount = res.SuccessCount
	out.FailedCount = res.ErrorCount
	out.FinishedAt = time.Now()

	e.logger.WithFields(logrus.Fields{
		"success": out.SuccessCount,
		"failed":  out.FailedCount,
		"skipped": out.SkippedCount,
	}).Info("Create batch completed")
	return out, nil
}

func checkCreateResult(res *CreateResult, submitted int) error {
	if res == nil {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if res.SuccessCount < 0 || res.ErrorCount < 0 || res.SuccessCount+res.ErrorCount != submitted {
		return fmt.Errorf("%w: %d succeeded and %d failed for %d records",
			ErrMalformedResponse, res.SuccessCount, res.ErrorCount, submitted)
	}
	if len(res.Errors) != res.ErrorCount {
		return fmt.Errorf("%w: %d error entries for %d failures", ErrMalformedResponse, len(res.Errors), res.ErrorCount)
	}
	seen := make(map[int]bool, len(res.Errors))
	for _, f := range res.Errors {
		if f.Index < 0 || f.Index >= submitted || seen[f.Index] {
			return fmt.Errorf("%w: unexpected error entry for index %d", ErrMalformedResponse, f.Index)
		}
		seen[f.Index] = true
	}
	return nil
}

func joinMessages(msgs []string) string {
	return strings.Join(msgs, "; ")
}
