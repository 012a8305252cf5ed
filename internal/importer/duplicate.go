package importer

import (
	"fmt"
	"sort"
	"strings"
)

// Classification of a full-import row.
type Classification string

const (
	ClassNew       Classification = "new"
	ClassDuplicate Classification = "duplicate"
)

// DefaultTransportType is applied to drafts that leave the type blank.
const DefaultTransportType = "实际运输"

// draftRequired are the fields a row needs to become a new record.
var draftRequired = []FieldKey{
	FieldProjectName,
	FieldDriverName,
	FieldLoadingLocation,
	FieldUnloadingLocation,
	FieldLoadingDate,
}

// ImportCandidate is a row awaiting operator classification. Index is the
// position within its own list (new or duplicate); duplicate approvals refer
// to it.
type ImportCandidate struct {
	Index          int             `json:"index"`
	Row            int             `json:"row"`
	Classification Classification  `json:"classification"`
	Draft          NewRecordDraft  `json:"draft"`
	Existing       *ExistingRecord `json:"existing,omitempty"`
	Approved       bool            `json:"approved"`
}

// InvalidRow is a row that cannot become a draft.
type InvalidRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// FullImportPreview partitions rows into new records and possible duplicates.
type FullImportPreview struct {
	NewRecords       []ImportCandidate `json:"new_records"`
	DuplicateRecords []ImportCandidate `json:"duplicate_records"`
	Invalid          []InvalidRow      `json:"invalid,omitempty"`
	Warnings         []ParseWarning    `json:"warnings,omitempty"`
}

// BuildDraft turns typed fields into a draft, filling the defaults the
// entry forms use: unloading date falls back to loading date, costs to 0 and
// transport type to DefaultTransportType.
func BuildDraft(row int, fields ShipmentFields) (NewRecordDraft, []FieldKey) {
	var missing []FieldKey
	for _, k := range draftRequired {
		if !fields.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return NewRecordDraft{}, missing
	}

	draft := make(ShipmentFields, len(fields)+4)
	for k, v := range fields {
		draft[k] = v
	}
	if !draft.Has(FieldUnloadingDate) {
		draft[FieldUnloadingDate] = draft[FieldLoadingDate]
	}
	if !draft.Has(FieldCurrentCost) {
		draft[FieldCurrentCost] = NumberValue(0)
	}
	if !draft.Has(FieldExtraCost) {
		draft[FieldExtraCost] = NumberValue(0)
	}
	if !draft.Has(FieldTransportType) {
		draft[FieldTransportType] = TextValue(DefaultTransportType)
	}
	return NewRecordDraft{Row: row, Fields: draft}, nil
}

func missingReason(missing []FieldKey) string {
	labels := make([]string, 0, len(missing))
	for _, k := range missing {
		if meta, ok := LookupField(k); ok {
			labels = append(labels, meta.Label)
		} else {
			labels = append(labels, string(k))
		}
	}
	return "missing required fields: " + strings.Join(labels, ", ")
}

// Classify splits drafts by their match result: unmatched drafts are new,
// matched drafts are possible duplicates. No candidate starts approved.
func Classify(drafts []NewRecordDraft, matches []MatchResult) (newRecords, duplicates []ImportCandidate) {
	for i, d := range drafts {
		c := ImportCandidate{Row: d.Row, Draft: d}
		if matches[i].Status == StatusMatched {
			c.Classification = ClassDuplicate
			c.Index = len(duplicates)
			c.Existing = matches[i].Record
			duplicates = append(duplicates, c)
			continue
		}
		c.Classification = ClassNew
		c.Index = len(newRecords)
		newRecords = append(newRecords, c)
	}
	return newRecords, duplicates
}

// ApprovalSet holds the indices of duplicates the operator approved.
type ApprovalSet map[int]struct{}

func NewApprovalSet(indices ...int) ApprovalSet {
	s := make(ApprovalSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

func (s ApprovalSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Sorted returns the approved indices in ascending order.
func (s ApprovalSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Select returns the apply set (every new record plus approved duplicates)
// and the duplicates left out. Indices outside the duplicate list are
// rejected.
func (p *FullImportPreview) Select(approved ApprovalSet) (apply, skipped []ImportCandidate, err error) {
	for i := range approved {
		if i < 0 || i >= len(p.DuplicateRecords) {
			return nil, nil, fmt.Errorf("%w: duplicate index %d out of range [0,%d)", ErrInvalidApproval, i, len(p.DuplicateRecords))
		}
	}
	apply = append(apply, p.NewRecords...)
	for _, d := range p.DuplicateRecords {
		if approved.Has(d.Index) {
			d.Approved = true
			apply = append(apply, d)
			continue
		}
		d.Approved = false
		skipped = append(skipped, d)
	}
	return apply, skipped, nil
}
