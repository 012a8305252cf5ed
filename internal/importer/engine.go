package importer

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Options configures an Engine.
type Options struct {
	Strictness  MatchStrictness
	Concurrency int
}

// PreviewItem is one row of a selective-update preview.
type PreviewItem struct {
	Row        int           `json:"row"`
	Status     MatchStatus   `json:"status"`
	RecordID   string        `json:"record_id,omitempty"`
	AutoNumber string        `json:"auto_number,omitempty"`
	Scope      string        `json:"scope,omitempty"`
	Missing    []FieldKey    `json:"missing,omitempty"`
	Changes    []FieldChange `json:"changes,omitempty"`
}

// PendingChanges counts the fields that will be written for this row.
func (i PreviewItem) PendingChanges() int {
	n := 0
	for _, c := range i.Changes {
		if c.WillUpdate {
			n++
		}
	}
	return n
}

// ExclusionReason is non-empty when the row cannot be applied.
func (i PreviewItem) ExclusionReason() string {
	var msgs []string
	for _, c := range i.Changes {
		if c.Error != "" {
			msgs = append(msgs, c.Error)
		}
	}
	return joinMessages(msgs)
}

// SelectivePreview is the result of PreviewSelectiveUpdate. Items follow the
// order of the input rows.
type SelectivePreview struct {
	Scope          string          `json:"scope,omitempty"`
	Strictness     MatchStrictness `json:"strictness"`
	SelectedFields []FieldKey      `json:"selected_fields"`
	Items          []PreviewItem   `json:"items"`
	MatchedCount   int             `json:"matched_count"`
	UnmatchedCount int             `json:"unmatched_count"`
	Warnings       []ParseWarning  `json:"warnings,omitempty"`
}

// Matched returns the matched items in row order.
func (p *SelectivePreview) Matched() []PreviewItem {
	var out []PreviewItem
	for _, it := range p.Items {
		if it.Status == StatusMatched {
			out = append(out, it)
		}
	}
	return out
}

// Engine runs the reconciliation pipeline: alias resolution, matching,
// diffing or duplicate classification, and batch execution.
type Engine struct {
	store    RecordStore
	aliases  *AliasTable
	matcher  *Matcher
	executor *Executor
	logger   *logrus.Logger
}

func NewEngine(store RecordStore, aliases *AliasTable, opts Options, logger *logrus.Logger) *Engine {
	if aliases == nil {
		aliases = DefaultAliasTable()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		store:    store,
		aliases:  aliases,
		matcher:  NewMatcher(store, opts.Strictness, opts.Concurrency),
		executor: NewExecutor(store, store, logger),
		logger:   logger,
	}
}

func (e *Engine) Aliases() *AliasTable { return e.aliases }

func (e *Engine) Strictness() MatchStrictness { return e.matcher.Strictness() }

// extract converts the non-empty rows and logs parse warnings.
func (e *Engine) extract(rows []RawRow) ([]int, []ShipmentFields, []ParseWarning) {
	var (
		numbers  []int
		fields   []ShipmentFields
		warnings []ParseWarning
	)
	for _, row := range rows {
		if row.IsEmpty() {
			continue
		}
		f, w := e.aliases.Extract(row)
		for _, pw := range w {
			e.logger.WithFields(logrus.Fields{
				"row":   pw.Row,
				"field": pw.Field,
				"raw":   pw.Raw,
			}).Warn("Ignoring unparsable cell: " + pw.Reason)
		}
		numbers = append(numbers, row.Number)
		fields = append(fields, f)
		warnings = append(warnings, w...)
	}
	return numbers, fields, warnings
}

// PreviewSelectiveUpdate matches rows against the store and computes field
// changes for the selected fields. scope is the project used to resolve
// reference names; when empty each row's own project is used.
func (e *Engine) PreviewSelectiveUpdate(ctx context.Context, rows []RawRow, selected FieldSet, scope string) (*SelectivePreview, error) {
	if len(selected) == 0 {
		return nil, ErrNoFieldsSelected
	}
	numbers, fields, warnings := e.extract(rows)
	if len(numbers) == 0 {
		return nil, ErrNoRows
	}

	matches, err := e.matcher.MatchAll(ctx, numbers, fields)
	if err != nil {
		e.logger.WithError(err).Error("Preview aborted while matching rows")
		return nil, err
	}

	scopes := make([]string, len(fields))
	var (
		matchedFields []ShipmentFields
		matchedScopes []string
	)
	for i, f := range fields {
		scopes[i] = scope
		if scopes[i] == "" {
			scopes[i] = f.Text(FieldProjectName)
		}
		if matches[i].Status == StatusMatched {
			matchedFields = append(matchedFields, f)
			matchedScopes = append(matchedScopes, scopes[i])
		}
	}

	refs, err := e.resolveReferences(ctx, referenceRequests(matchedFields, matchedScopes, selected))
	if err != nil {
		e.logger.WithError(err).Error("Preview aborted while resolving references")
		return nil, err
	}

	preview := &SelectivePreview{
		Scope:          scope,
		Strictness:     e.matcher.Strictness(),
		SelectedFields: selected.Keys(),
		Items:          make([]PreviewItem, len(fields)),
		Warnings:       warnings,
	}
	for i, f := range fields {
		item := PreviewItem{
			Row:     numbers[i],
			Status:  matches[i].Status,
			Scope:   scopes[i],
			Missing: matches[i].Missing,
		}
		if rec := matches[i].Record; rec != nil {
			item.RecordID = rec.ID
			item.AutoNumber = rec.AutoNumber
			item.Changes = DiffFields(rec, f, selected, refs, scopes[i])
			preview.MatchedCount++
		} else {
			preview.UnmatchedCount++
		}
		preview.Items[i] = item
	}

	e.logger.WithFields(logrus.Fields{
		"rows":      len(fields),
		"matched":   preview.MatchedCount,
		"unmatched": preview.UnmatchedCount,
		"warnings":  len(warnings),
	}).Info("Selective update preview completed")
	return preview, nil
}

// resolveReferences issues one bulk lookup per scope.
func (e *Engine) resolveReferences(ctx context.Context, requests map[string][]string) (ReferenceIndex, error) {
	idx := make(ReferenceIndex, len(requests))
	scopes := make([]string, 0, len(requests))
	for s := range requests {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	for _, s := range scopes {
		resolved, err := e.store.FindReferencesByNames(ctx, requests[s], s)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve references in project %q: %w", s, err)
		}
		idx.add(s, resolved)
	}
	return idx, nil
}

// ExecuteSelectiveUpdate applies the approved preview items in one batch.
func (e *Engine) ExecuteSelectiveUpdate(ctx context.Context, items []PreviewItem) (*ImportOutcome, error) {
	return e.executor.ApplyUpdates(ctx, items)
}

// PreviewFullImport classifies rows as new records or possible duplicates.
func (e *Engine) PreviewFullImport(ctx context.Context, rows []RawRow) (*FullImportPreview, error) {
	numbers, fields, warnings := e.extract(rows)
	if len(numbers) == 0 {
		return nil, ErrNoRows
	}

	preview := &FullImportPreview{Warnings: warnings}
	var (
		drafts      []NewRecordDraft
		draftRows   []int
		draftFields []ShipmentFields
	)
	for i, f := range fields {
		d, missing := BuildDraft(numbers[i], f)
		if len(missing) > 0 {
			preview.Invalid = append(preview.Invalid, InvalidRow{Row: numbers[i], Reason: missingReason(missing)})
			continue
		}
		drafts = append(drafts, d)
		draftRows = append(draftRows, numbers[i])
		draftFields = append(draftFields, d.Fields)
	}

	matches, err := e.matcher.MatchAll(ctx, draftRows, draftFields)
	if err != nil {
		e.logger.WithError(err).Error("Full import preview aborted while matching rows")
		return nil, err
	}
	preview.NewRecords, preview.DuplicateRecords = Classify(drafts, matches)

	e.logger.WithFields(logrus.Fields{
		"rows":       len(fields),
		"new":        len(preview.NewRecords),
		"duplicates": len(preview.DuplicateRecords),
		"invalid":    len(preview.Invalid),
	}).Info("Full import preview completed")
	return preview, nil
}

// ExecuteFullImport creates every new record plus the approved duplicates.
func (e *Engine) ExecuteFullImport(ctx context.Context, preview *FullImportPreview, approved ApprovalSet) (*ImportOutcome, error) {
	apply, skipped, err := preview.Select(approved)
	if err != nil {
		return nil, err
	}
	return e.executor.CreateRecords(ctx, apply, skipped)
}
