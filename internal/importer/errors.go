package importer

import (
	"errors"
	"fmt"
)

var (
	ErrNoFieldsSelected  = errors.New("no fields selected for update")
	ErrNoRows            = errors.New("spreadsheet contains no data rows")
	ErrMalformedResponse = errors.New("malformed batch response")
	ErrInvalidApproval   = errors.New("invalid approval")
)

// MatchError aborts a preview: the identification lookup of Row failed.
type MatchError struct {
	Row int
	Err error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("failed to match row %d: %v", e.Row, e.Err)
}

func (e *MatchError) Unwrap() error { return e.Err }

// TransportError means a batch call never produced a structured response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorKind classifies a row-level error in an ImportOutcome.
type ErrorKind string

const (
	ErrorReferenceUnresolved ErrorKind = "reference_unresolved"
	ErrorApplyFailed         ErrorKind = "apply_failed"
	ErrorCreateFailed        ErrorKind = "create_failed"
	ErrorTransport           ErrorKind = "transport"
)

// RowError attributes a failure to its spreadsheet row.
type RowError struct {
	Row        int       `json:"row"`
	RecordID   string    `json:"record_id,omitempty"`
	AutoNumber string    `json:"auto_number,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}
