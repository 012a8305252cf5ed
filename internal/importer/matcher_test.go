package importer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func routeFields(driver string) ShipmentFields {
	return ShipmentFields{
		FieldProjectName:       TextValue("华东项目"),
		FieldDriverName:        TextValue(driver),
		FieldLoadingLocation:   TextValue("上海"),
		FieldUnloadingLocation: TextValue("杭州"),
	}
}

func TestMatchIncompleteKeySkipsStore(t *testing.T) {
	store := newFakeStore(record("r1", "张三", nil))
	m := NewMatcher(store, MatchRoute, 1)

	fields := routeFields("张三")
	delete(fields, FieldUnloadingLocation)

	res, err := m.Match(context.Background(), 2, fields)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Status != StatusUnmatched {
		t.Errorf("status = %s, want unmatched", res.Status)
	}
	if !reflect.DeepEqual(res.Missing, []FieldKey{FieldUnloadingLocation}) {
		t.Errorf("missing = %v", res.Missing)
	}
	if store.findCalls != 0 {
		t.Errorf("store was queried %d times for an incomplete key", store.findCalls)
	}
}

func TestMatchStrictnessControlsKey(t *testing.T) {
	store := newFakeStore(record("r1", "张三", nil))
	ctx := context.Background()

	fields := routeFields("张三")
	route, err := NewMatcher(store, MatchRoute, 1).Match(ctx, 2, fields)
	if err != nil || route.Status != StatusMatched || route.Record.ID != "r1" {
		t.Fatalf("route match = %+v, %v", route, err)
	}

	strict := NewMatcher(store, MatchStrict, 1)
	res, err := strict.Match(ctx, 2, fields)
	if err != nil {
		t.Fatalf("strict Match: %v", err)
	}
	if res.Status != StatusUnmatched || len(res.Missing) != 2 {
		t.Errorf("strict match without date/weight = %+v", res)
	}

	fields[FieldLoadingDate] = DateValue(mustDate("2024-03-01"))
	fields[FieldLoadingWeight] = NumberValue(31)
	res, _ = strict.Match(ctx, 2, fields)
	if res.Status != StatusUnmatched {
		t.Error("strict match must compare loading weight")
	}
	fields[FieldLoadingWeight] = NumberValue(30)
	res, _ = strict.Match(ctx, 2, fields)
	if res.Status != StatusMatched {
		t.Error("strict match on identical key must match")
	}
}

func TestMatchAllPreservesOrder(t *testing.T) {
	var records []*ExistingRecord
	for i := 0; i < 20; i += 2 {
		records = append(records, record(fmt.Sprintf("r%d", i), fmt.Sprintf("司机%d", i), nil))
	}
	store := newFakeStore(records...)
	m := NewMatcher(store, MatchRoute, 4)

	var rows []int
	var fields []ShipmentFields
	for i := 0; i < 20; i++ {
		rows = append(rows, i+2)
		fields = append(fields, routeFields(fmt.Sprintf("司机%d", i)))
	}

	results, err := m.MatchAll(context.Background(), rows, fields)
	if err != nil {
		t.Fatalf("MatchAll: %v", err)
	}
	if len(results) != 20 {
		t.Fatalf("got %d results", len(results))
	}
	for i, res := range results {
		if i%2 == 0 {
			if res.Status != StatusMatched || res.Record.ID != fmt.Sprintf("r%d", i) {
				t.Errorf("result %d = %+v, want match r%d", i, res, i)
			}
		} else if res.Status != StatusUnmatched {
			t.Errorf("result %d = %+v, want unmatched", i, res)
		}
	}
}

func TestMatchAllStoreFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("connection refused")
	m := NewMatcher(store, MatchRoute, 2)

	_, err := m.MatchAll(context.Background(), []int{2, 3}, []ShipmentFields{routeFields("a"), routeFields("b")})
	var me *MatchError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MatchError, got %v", err)
	}
	if !errors.Is(err, store.findErr) {
		t.Error("MatchError must unwrap to the store error")
	}
}

func TestMatchAllStopsWhenCancelled(t *testing.T) {
	started := make(chan struct{}, 8)
	store := newFakeStore()
	store.findFn = func(ctx context.Context, key IdentificationKey) (*ExistingRecord, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := NewMatcher(store, MatchRoute, 2)

	var (
		rows   []int
		fields []ShipmentFields
	)
	for i := 0; i < 6; i++ {
		rows = append(rows, i+2)
		fields = append(fields, routeFields(fmt.Sprintf("司机%d", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := m.MatchAll(ctx, rows, fields)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no lookup started")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("MatchAll did not return after cancellation")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.findCalls > 2 {
		t.Errorf("%d lookups issued, want at most the 2 in flight at cancellation", store.findCalls)
	}
}

func TestParseMatchStrictness(t *testing.T) {
	tests := []struct {
		in      string
		want    MatchStrictness
		wantErr bool
	}{
		{"", MatchRoute, false},
		{"route", MatchRoute, false},
		{" STRICT ", MatchStrict, false},
		{"fuzzy", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMatchStrictness(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMatchStrictness(%q) = %q, %v", tt.in, got, err)
		}
	}
}
