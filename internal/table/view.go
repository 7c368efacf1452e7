// Package table implements the sortable, searchable row views behind every
// positions, orders and trades tab.
package table

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Row is anything a View can display: a fixed set of named fields, each
// with a display value.
type Row interface {
	Fields() []string
	Value(field string) string
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseSort reads a sort parameter: "field" sorts ascending, "-field"
// descending. ok is false when field is not one of fields.
func ParseSort(param string, fields []string) (s Sort, ok bool) {
	field, desc := strings.CutPrefix(param, "-")
	if !slices.Contains(fields, field) {
		return Sort{}, false
	}
	s.Field = field
	if desc {
		s.Direction = Descending
	}
	return s, true
}

// Sort is the active sort. An empty Field means the view's default order.
type Sort struct {
	Field     string
	Direction Direction
}

// View holds one tab's rows plus its sort and search state. Rows() derives
// the visible rows on every call; nothing is cached across SetRows.
type View[R Row] struct {
	mu           sync.RWMutex
	rows         []R
	sort         Sort
	search       string
	timeFields   map[string]bool
	defaultOrder func(a, b R) int
}

// Option configures a View.
type Option[R Row] func(*View[R])

// WithTimeFields marks fields whose values compare as timestamps.
func WithTimeFields[R Row](fields ...string) Option[R] {
	return func(v *View[R]) {
		for _, f := range fields {
			v.timeFields[f] = true
		}
	}
}

// WithDefaultOrder sets the ordering used while no field sort is active.
func WithDefaultOrder[R Row](order func(a, b R) int) Option[R] {
	return func(v *View[R]) {
		v.defaultOrder = order
	}
}

// New creates an empty view.
func New[R Row](opts ...Option[R]) *View[R] {
	v := &View[R]{timeFields: make(map[string]bool)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetRows replaces the row set wholesale.
func (v *View[R]) SetRows(rows []R) {
	cp := make([]R, len(rows))
	copy(cp, rows)

	v.mu.Lock()
	v.rows = cp
	v.mu.Unlock()
}

// SetSort sorts by field. Selecting the active field again flips the
// direction; a different field starts ascending.
func (v *View[R]) SetSort(field string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if field != "" && v.sort.Field == field {
		if v.sort.Direction == Ascending {
			v.sort.Direction = Descending
		} else {
			v.sort.Direction = Ascending
		}
		return
	}
	v.sort = Sort{Field: field, Direction: Ascending}
}

// SetSortDirection sets field and direction explicitly.
func (v *View[R]) SetSortDirection(field string, dir Direction) {
	v.mu.Lock()
	v.sort = Sort{Field: field, Direction: dir}
	v.mu.Unlock()
}

// ClearSort restores the default order.
func (v *View[R]) ClearSort() {
	v.SetSortDirection("", Ascending)
}

// Sort returns the active sort.
func (v *View[R]) Sort() Sort {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sort
}

// SetSearch sets the case-insensitive substring filter. "" shows all rows.
func (v *View[R]) SetSearch(query string) {
	v.mu.Lock()
	v.search = strings.ToLower(strings.TrimSpace(query))
	v.mu.Unlock()
}

// Search returns the active (normalized) search query.
func (v *View[R]) Search() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.search
}

// Len returns the number of rows before filtering.
func (v *View[R]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.rows)
}

// Rows filters, then sorts, the current row set. Descending is the exact
// reverse of the stable ascending order.
func (v *View[R]) Rows() []R {
	v.mu.RLock()
	rows := v.rows
	s := v.sort
	query := v.search
	isTime := v.timeFields[s.Field]
	defaultOrder := v.defaultOrder
	v.mu.RUnlock()

	out := make([]R, 0, len(rows))
	for _, r := range rows {
		if Matches(r, query) {
			out = append(out, r)
		}
	}

	switch {
	case s.Field != "":
		slices.SortStableFunc(out, func(a, b R) int {
			return CompareValues(a.Value(s.Field), b.Value(s.Field), isTime)
		})
		if s.Direction == Descending {
			slices.Reverse(out)
		}
	case defaultOrder != nil:
		slices.SortStableFunc(out, defaultOrder)
	}
	return out
}

// Matches reports whether any field of r contains query (already lower-cased).
func Matches(r Row, query string) bool {
	if query == "" {
		return true
	}
	for _, f := range r.Fields() {
		if strings.Contains(strings.ToLower(r.Value(f)), query) {
			return true
		}
	}
	return false
}

// CompareValues compares two display values: as timestamps when isTime and
// both parse, else numerically when both parse as numbers, else lexically.
func CompareValues(a, b string, isTime bool) int {
	if isTime {
		ta, okA := ParseTime(a)
		tb, okB := ParseTime(b)
		if okA && okB {
			return ta.Compare(tb)
		}
	}
	fa, okA := parseNumber(a)
	fb, okB := parseNumber(b)
	if okA && okB {
		return cmp.Compare(fa, fb)
	}
	return strings.Compare(a, b)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// timeLayouts are the timestamp shapes the broker and backend emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006 15:04:05.000",
	"Jan 2 2006 15:04:05",
	"02/01/2006 15:04:05",
	"15:04:05",
}

// ParseTime parses a broker timestamp.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
