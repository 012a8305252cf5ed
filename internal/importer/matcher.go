package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// MatchStrictness selects which identification fields take part in lookup.
type MatchStrictness string

const (
	// MatchRoute matches on project, driver, loading and unloading location.
	MatchRoute MatchStrictness = "route"
	// MatchStrict additionally requires loading date and loading quantity.
	MatchStrict MatchStrictness = "strict"
)

func ParseMatchStrictness(s string) (MatchStrictness, error) {
	switch MatchStrictness(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchRoute:
		return MatchRoute, nil
	case MatchStrict:
		return MatchStrict, nil
	}
	return "", fmt.Errorf("unknown match strictness %q", s)
}

// RequiredFields lists the identification fields a row must carry.
func (m MatchStrictness) RequiredFields() []FieldKey {
	keys := []FieldKey{FieldProjectName, FieldDriverName, FieldLoadingLocation, FieldUnloadingLocation}
	if m == MatchStrict {
		keys = append(keys, FieldLoadingDate, FieldLoadingWeight)
	}
	return keys
}

// IdentificationKey is the composite natural key of a shipment. LoadingDate
// and LoadingWeight are nil unless strict matching is configured.
type IdentificationKey struct {
	ProjectName       string     `json:"project_name"`
	DriverName        string     `json:"driver_name"`
	LoadingLocation   string     `json:"loading_location"`
	UnloadingLocation string     `json:"unloading_location"`
	LoadingDate       *time.Time `json:"loading_date,omitempty"`
	LoadingWeight     *float64   `json:"loading_weight,omitempty"`
}

func (k IdentificationKey) String() string {
	s := fmt.Sprintf("%s/%s/%s->%s", k.ProjectName, k.DriverName, k.LoadingLocation, k.UnloadingLocation)
	if k.LoadingDate != nil {
		s += "@" + k.LoadingDate.Format(DateLayout)
	}
	if k.LoadingWeight != nil {
		s += fmt.Sprintf("#%g", *k.LoadingWeight)
	}
	return s
}

// BuildIdentificationKey derives the key of a row. Missing lists the
// required fields the row did not supply; the key is unusable when it is
// non-empty.
func BuildIdentificationKey(fields ShipmentFields, strictness MatchStrictness) (IdentificationKey, []FieldKey) {
	var missing []FieldKey
	for _, k := range strictness.RequiredFields() {
		if !fields.Has(k) {
			missing = append(missing, k)
		}
	}
	key := IdentificationKey{
		ProjectName:       fields.Text(FieldProjectName),
		DriverName:        fields.Text(FieldDriverName),
		LoadingLocation:   fields.Text(FieldLoadingLocation),
		UnloadingLocation: fields.Text(FieldUnloadingLocation),
	}
	if strictness == MatchStrict {
		if v, ok := fields.Get(FieldLoadingDate); ok {
			d := v.Date
			key.LoadingDate = &d
		}
		if v, ok := fields.Get(FieldLoadingWeight); ok {
			w := v.Number
			key.LoadingWeight = &w
		}
	}
	return key, missing
}

// MatchStatus is the outcome of matching one row.
type MatchStatus string

const (
	StatusMatched   MatchStatus = "matched"
	StatusUnmatched MatchStatus = "unmatched"
)

// MatchResult is the match of one row.
type MatchResult struct {
	Status  MatchStatus
	Record  *ExistingRecord
	Missing []FieldKey
}

// Matcher locates existing records for rows.
type Matcher struct {
	finder      RecordFinder
	strictness  MatchStrictness
	concurrency int
}

func NewMatcher(finder RecordFinder, strictness MatchStrictness, concurrency int) *Matcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if strictness == "" {
		strictness = MatchRoute
	}
	return &Matcher{finder: finder, strictness: strictness, concurrency: concurrency}
}

func (m *Matcher) Strictness() MatchStrictness { return m.strictness }

// Match looks up one row. Rows with an incomplete key are unmatched without
// touching the store.
func (m *Matcher) Match(ctx context.Context, row int, fields ShipmentFields) (MatchResult, error) {
	key, missing := BuildIdentificationKey(fields, m.strictness)
	if len(missing) > 0 {
		return MatchResult{Status: StatusUnmatched, Missing: missing}, nil
	}
	rec, err := m.finder.FindRecordByKey(ctx, key)
	if err != nil {
		return MatchResult{}, &MatchError{Row: row, Err: err}
	}
	if rec == nil {
		return MatchResult{Status: StatusUnmatched}, nil
	}
	return MatchResult{Status: StatusMatched, Record: rec}, nil
}

// MatchAll matches rows with at most m.concurrency lookups in flight. The
// result slice is index-aligned with rows. The first lookup failure cancels
// the remaining lookups and is returned.
func (m *Matcher) MatchAll(ctx context.Context, rows []int, fields []ShipmentFields) ([]MatchResult, error) {
	results := make([]MatchResult, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i := range fields {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := m.Match(gctx, rows[i], fields[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
