package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/profitrecon/internal/core"
)

// FieldType is the expected data type of a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDecimal
	FieldQuantity
	FieldDate
)

// FieldSpec describes one logical column. Headers are matched against Name
// and every alias, case-insensitively; a bilingual header such as
// "数量(Quantity)" matches either half.
type FieldSpec struct {
	Name     string
	Aliases  []string
	Type     FieldType
	Required bool
}

// BuildFunc turns one data row into a candidate record. Cell-level problems
// are recorded on the Row and the returned record is discarded if any exist.
type BuildFunc func(row *Row) core.Record

// Layout is everything needed to read one kind of file.
type Layout struct {
	Kind   core.Kind
	Label  string
	Fields []FieldSpec
	Build  BuildFunc
}

// Columns returns the canonical column names in declaration order.
func (l Layout) Columns() []string {
	cols := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		cols[i] = f.Name
	}
	return cols
}

var (
	layouts   = make(map[core.Kind]Layout)
	layoutsMu sync.RWMutex
)

// Register adds a layout to the registry.
// Panics if a layout for the same kind is already registered.
func Register(l Layout) {
	layoutsMu.Lock()
	defer layoutsMu.Unlock()

	if _, exists := layouts[l.Kind]; exists {
		panic(fmt.Sprintf("layout already registered: %s", l.Kind))
	}
	layouts[l.Kind] = l
}

// Lookup returns the layout for a kind.
func Lookup(kind core.Kind) (Layout, bool) {
	layoutsMu.RLock()
	defer layoutsMu.RUnlock()

	l, ok := layouts[kind]
	return l, ok
}

// All returns every registered layout sorted by kind.
func All() []Layout {
	layoutsMu.RLock()
	defer layoutsMu.RUnlock()

	result := make([]Layout, 0, len(layouts))
	for _, l := range layouts {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// headerIndex maps a field name to its column position.
type headerIndex map[string]int

// normalizeHeader lowercases and strips a header cell for comparison.
func normalizeHeader(s string) string {
	s = strings.ToLower(CleanCell(s))
	s = strings.NewReplacer("（", "(", "）", ")", "_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// headerCandidates splits a bilingual header into the forms it may be
// matched by: the whole text, the part before the parenthesis and the part
// inside it.
func headerCandidates(cell string) []string {
	h := normalizeHeader(cell)
	if h == "" {
		return nil
	}
	out := []string{h}
	if open := strings.Index(h, "("); open > 0 {
		out = append(out, strings.TrimSpace(h[:open]))
		if end := strings.LastIndex(h, ")"); end > open {
			out = append(out, strings.TrimSpace(h[open+1:end]))
		}
	}
	return out
}

// matchHeader resolves a candidate header row against the layout. It
// returns the index and the names of required fields it could not find.
// The first column matching a field wins.
func (l Layout) matchHeader(row []string) (headerIndex, []string) {
	names := make(map[string]string)
	for _, f := range l.Fields {
		names[normalizeHeader(f.Name)] = f.Name
		for _, a := range f.Aliases {
			names[normalizeHeader(a)] = f.Name
		}
	}

	idx := make(headerIndex, len(l.Fields))
	for col, cell := range row {
		for _, cand := range headerCandidates(cell) {
			if field, ok := names[cand]; ok {
				if _, taken := idx[field]; !taken {
					idx[field] = col
				}
				break
			}
		}
	}

	var missing []string
	for _, f := range l.Fields {
		if _, ok := idx[f.Name]; f.Required && !ok {
			missing = append(missing, f.Name)
		}
	}
	return idx, missing
}
