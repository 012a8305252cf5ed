package importer

import (
	"fmt"
	"sort"
)

// FieldChange is the computed old/new pair of one field on one matched row.
// NewValue is nil unless the field was selected and the row supplied a
// non-empty value. WillUpdate holds iff NewValue differs from OldValue in
// string form.
type FieldChange struct {
	Field      FieldKey `json:"field"`
	Label      string   `json:"label"`
	OldValue   Value    `json:"old_value"`
	NewValue   *Value   `json:"new_value"`
	WillUpdate bool     `json:"will_update"`
	Error      string   `json:"error,omitempty"`
}

// ReferenceIndex holds bulk-resolved reference ids: scope -> name -> id.
type ReferenceIndex map[string]map[string]string

func (idx ReferenceIndex) Lookup(scope, name string) (string, bool) {
	id, ok := idx[scope][name]
	return id, ok
}

func (idx ReferenceIndex) add(scope string, resolved map[string]string) {
	m, ok := idx[scope]
	if !ok {
		m = make(map[string]string, len(resolved))
		idx[scope] = m
	}
	for name, id := range resolved {
		m[name] = id
	}
}

// referenceRequests collects, per scope, the distinct reference names that
// selected fields of the given rows need resolved.
func referenceRequests(rows []ShipmentFields, scopes []string, selected FieldSet) map[string][]string {
	seen := make(map[string]map[string]bool)
	for i, fields := range rows {
		for _, meta := range fieldTable {
			if meta.Kind != KindReference || !selected.Has(meta.Key) {
				continue
			}
			v, ok := fields.Get(meta.Key)
			if !ok {
				continue
			}
			if seen[scopes[i]] == nil {
				seen[scopes[i]] = make(map[string]bool)
			}
			seen[scopes[i]][v.Text] = true
		}
	}
	out := make(map[string][]string, len(seen))
	for scope, names := range seen {
		list := make([]string, 0, len(names))
		for n := range names {
			list = append(list, n)
		}
		sort.Strings(list)
		out[scope] = list
	}
	return out
}

// DiffFields computes one FieldChange per updatable field. It only reads its
// inputs, so repeated calls on the same snapshot and row agree.
func DiffFields(record *ExistingRecord, fields ShipmentFields, selected FieldSet, refs ReferenceIndex, scope string) []FieldChange {
	changes := make([]FieldChange, 0, len(fieldTable))
	for _, meta := range fieldTable {
		if !meta.Updatable {
			continue
		}
		change := FieldChange{
			Field:    meta.Key,
			Label:    meta.Label,
			OldValue: record.Value(meta.Key),
		}
		v, ok := fields.Get(meta.Key)
		if !selected.Has(meta.Key) || !ok {
			changes = append(changes, change)
			continue
		}
		if meta.Kind == KindReference {
			id, found := refs.Lookup(scope, v.Text)
			if !found {
				change.Error = fmt.Sprintf("%s %q not found in project %q", meta.Label, v.Text, scope)
				changes = append(changes, change)
				continue
			}
			v = ReferenceValue(v.Text, id)
		}
		nv := v
		change.NewValue = &nv
		change.WillUpdate = nv.String() != change.OldValue.String()
		changes = append(changes, change)
	}
	return changes
}
