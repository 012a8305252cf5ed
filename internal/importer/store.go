package importer

import "context"

// ExistingRecord is a read-only snapshot of a stored shipment record.
type ExistingRecord struct {
	ID          string             `json:"id"`
	AutoNumber  string             `json:"auto_number"`
	ProjectName string             `json:"project_name"`
	Values      map[FieldKey]Value `json:"values"`
}

// Value returns the stored value of key, or the zero Value when unset.
func (r *ExistingRecord) Value(key FieldKey) Value {
	if r == nil {
		return Value{}
	}
	return r.Values[key]
}

// UpdateOperation is the minimal payload for one record: only fields whose
// value actually changes.
type UpdateOperation struct {
	RecordID   string             `json:"record_id"`
	AutoNumber string             `json:"auto_number"`
	Row        int                `json:"row"`
	Fields     map[FieldKey]Value `json:"fields"`
}

// NewRecordDraft is a complete record proposed by the full import workflow.
type NewRecordDraft struct {
	Row    int            `json:"row"`
	Fields ShipmentFields `json:"fields"`
}

// RowFailure is a per-operation error reported by the batch procedure. Index
// is the position of the operation in the submitted slice; several operations
// may target the same record.
type RowFailure struct {
	Index    int    `json:"index"`
	RecordID string `json:"record_id"`
	Message  string `json:"message"`
}

// BatchResult is the structured response of ApplyBatch.
type BatchResult struct {
	SuccessCount int          `json:"success_count"`
	Errors       []RowFailure `json:"errors"`
}

// CreateFailure is a per-draft error reported by CreateRecords. Index is the
// position of the draft in the submitted slice.
type CreateFailure struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// CreateResult is the structured response of CreateRecords.
type CreateResult struct {
	SuccessCount int             `json:"success_count"`
	ErrorCount   int             `json:"error_count"`
	Errors       []CreateFailure `json:"errors"`
}

// RecordFinder looks up at most one record by natural key. It returns
// (nil, nil) when nothing matches.
type RecordFinder interface {
	FindRecordByKey(ctx context.Context, key IdentificationKey) (*ExistingRecord, error)
}

// ReferenceResolver resolves reference names to ids within a scope in a
// single round trip. Unknown names are simply missing from the result.
type ReferenceResolver interface {
	FindReferencesByNames(ctx context.Context, names []string, scope string) (map[string]string, error)
}

// BatchApplier applies update operations independently per row. An error
// return means no structured response was obtained.
type BatchApplier interface {
	ApplyBatch(ctx context.Context, ops []UpdateOperation) (*BatchResult, error)
}

// RecordCreator creates records independently per draft.
type RecordCreator interface {
	CreateRecords(ctx context.Context, drafts []NewRecordDraft) (*CreateResult, error)
}

// RecordStore is everything the engine needs from the backing store.
type RecordStore interface {
	RecordFinder
	ReferenceResolver
	BatchApplier
	RecordCreator
}
