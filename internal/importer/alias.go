package importer

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Header marker suffixes used by spreadsheet templates.
const (
	markerStar     = "*"
	markerRequired = "(必填)"
	markerOptional = "(可选)"
)

// AliasTable maps each FieldKey to its accepted header labels in priority
// order. Earlier aliases win when several matching columns are filled.
type AliasTable struct {
	aliases    map[FieldKey][]string
	normalized map[FieldKey][]string
}

// NewAliasTable builds a table from explicit alias lists.
func NewAliasTable(aliases map[FieldKey][]string) *AliasTable {
	t := &AliasTable{
		aliases:    make(map[FieldKey][]string, len(aliases)),
		normalized: make(map[FieldKey][]string, len(aliases)),
	}
	for key, list := range aliases {
		t.aliases[key] = append([]string(nil), list...)
		seen := make(map[string]bool, len(list))
		for _, a := range list {
			n := NormalizeHeader(a)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			t.normalized[key] = append(t.normalized[key], n)
		}
	}
	return t
}

// DefaultAliasTable derives aliases from the field table: the standard label,
// its starred and required-marker forms, its optional-marker form, then the
// synonyms.
func DefaultAliasTable() *AliasTable {
	aliases := make(map[FieldKey][]string, len(fieldTable))
	for _, f := range fieldTable {
		list := []string{
			f.Label,
			f.Label + markerStar,
			f.Label + markerRequired,
			f.Label + markerOptional,
		}
		aliases[f.Key] = append(list, f.Synonyms...)
	}
	return NewAliasTable(aliases)
}

// Aliases returns the configured labels of key in priority order.
func (t *AliasTable) Aliases(key FieldKey) []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.aliases[key]...)
}

// Resolve returns the first non-empty cell of row whose header matches an
// alias of key. It never fails; unknown keys resolve to absent.
func (t *AliasTable) Resolve(row RawRow, key FieldKey) (CellValue, bool) {
	if t == nil || len(row.Cells) == 0 {
		return CellValue{}, false
	}
	aliases := t.normalized[key]
	if len(aliases) == 0 {
		return CellValue{}, false
	}

	headers := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		headers[i] = NormalizeHeader(c.Header)
	}

	for _, alias := range aliases {
		for i, h := range headers {
			if h != alias {
				continue
			}
			if v := row.Cells[i].Value; !v.IsEmpty() {
				return v, true
			}
		}
	}
	return CellValue{}, false
}

// NormalizeHeader folds full-width characters, drops whitespace and lower-cases
// Latin letters so that "卸货数量（可选） " and "卸货数量(可选)" compare equal.
func NormalizeHeader(h string) string {
	h = width.Fold.String(h)
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range h {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
