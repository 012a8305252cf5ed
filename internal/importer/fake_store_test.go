package importer

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeStore is an in-memory RecordStore. Apply and create responses can be
// overridden per test.
type fakeStore struct {
	mu      sync.Mutex
	records []*ExistingRecord
	// refs maps scope -> name -> id.
	refs map[string]map[string]string

	findErr   error
	// findFn, when set, replaces the lookup and runs without holding mu.
	findFn    func(ctx context.Context, key IdentificationKey) (*ExistingRecord, error)
	refCalls  []string
	findCalls int

	applyFn    func(ops []UpdateOperation) (*BatchResult, error)
	createFn   func(drafts []NewRecordDraft) (*CreateResult, error)
	applied    [][]UpdateOperation
	created    [][]NewRecordDraft
	applyCalls int
}

func newFakeStore(records ...*ExistingRecord) *fakeStore {
	return &fakeStore{records: records, refs: map[string]map[string]string{}}
}

func (s *fakeStore) FindRecordByKey(ctx context.Context, key IdentificationKey) (*ExistingRecord, error) {
	s.mu.Lock()
	s.findCalls++
	fn := s.findFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, r := range s.records {
		if r.ProjectName != key.ProjectName ||
			r.Value(FieldDriverName).String() != key.DriverName ||
			r.Value(FieldLoadingLocation).String() != key.LoadingLocation ||
			r.Value(FieldUnloadingLocation).String() != key.UnloadingLocation {
			continue
		}
		if key.LoadingDate != nil && r.Value(FieldLoadingDate).String() != key.LoadingDate.Format(DateLayout) {
			continue
		}
		if key.LoadingWeight != nil && r.Value(FieldLoadingWeight).Number != *key.LoadingWeight {
			continue
		}
		return r, nil
	}
	return nil, nil
}

func (s *fakeStore) FindReferencesByNames(ctx context.Context, names []string, scope string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refCalls = append(s.refCalls, scope)
	out := make(map[string]string)
	for _, n := range names {
		if id, ok := s.refs[scope][n]; ok {
			out[n] = id
		}
	}
	return out, nil
}

func (s *fakeStore) ApplyBatch(ctx context.Context, ops []UpdateOperation) (*BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++
	s.applied = append(s.applied, ops)
	if s.applyFn != nil {
		return s.applyFn(ops)
	}
	for _, op := range ops {
		for _, r := range s.records {
			if r.ID != op.RecordID {
				continue
			}
			for k, v := range op.Fields {
				r.Values[k] = v
			}
		}
	}
	return &BatchResult{SuccessCount: len(ops)}, nil
}

func (s *fakeStore) CreateRecords(ctx context.Context, drafts []NewRecordDraft) (*CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, drafts)
	if s.createFn != nil {
		return s.createFn(drafts)
	}
	return &CreateResult{SuccessCount: len(drafts)}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func mustDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// record builds a stored record on the standard test route.
func record(id, driver string, values map[FieldKey]Value) *ExistingRecord {
	v := map[FieldKey]Value{
		FieldProjectName:       TextValue("华东项目"),
		FieldDriverName:        TextValue(driver),
		FieldLoadingLocation:   TextValue("上海"),
		FieldUnloadingLocation: TextValue("杭州"),
		FieldLoadingDate:       DateValue(mustDate("2024-03-01")),
		FieldLoadingWeight:     NumberValue(30),
	}
	for k, val := range values {
		v[k] = val
	}
	return &ExistingRecord{ID: id, AutoNumber: "YDN-" + id, ProjectName: "华东项目", Values: v}
}

var routeHeaders = []string{"项目名称", "司机姓名", "装货地点", "卸货地点"}

// routeRow builds a sheet line on the standard test route with extra columns.
func routeRow(number int, driver string, extra map[string]CellValue) RawRow {
	headers := append([]string{}, routeHeaders...)
	values := []CellValue{TextCell("华东项目"), TextCell(driver), TextCell("上海"), TextCell("杭州")}
	for h, v := range extra {
		headers = append(headers, h)
		values = append(values, v)
	}
	return NewRawRow(number, headers, values)
}

func findChange(t *testing.T, changes []FieldChange, key FieldKey) FieldChange {
	t.Helper()
	for _, c := range changes {
		if c.Field == key {
			return c
		}
	}
	t.Fatalf("no change for field %s", key)
	return FieldChange{}
}
