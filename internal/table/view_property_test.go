package table

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type testRow struct {
	id   int
	name string
	qty  int64
	at   string
}

func (r testRow) Fields() []string { return []string{"id", "name", "qty", "at"} }

func (r testRow) Value(field string) string {
	switch field {
	case "id":
		return fmt.Sprint(r.id)
	case "name":
		return r.name
	case "qty":
		return fmt.Sprint(r.qty)
	case "at":
		return r.at
	}
	return ""
}

func buildRows(names []string, qtys []int64) []testRow {
	n := min(len(names), len(qtys))
	base := time.Date(2024, 8, 1, 9, 15, 0, 0, time.UTC)
	rows := make([]testRow, n)
	for i := 0; i < n; i++ {
		rows[i] = testRow{
			id:   i,
			name: names[i],
			qty:  qtys[i],
			at:   base.Add(time.Duration(qtys[i]) * time.Minute).Format("02-Jan-2006 15:04:05"),
		}
	}
	return rows
}

func ids(rows []testRow) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.id
	}
	return out
}

func newTestView() *View[testRow] {
	return New[testRow](WithTimeFields[testRow]("at"))
}

// Property: selecting the same sort field twice yields the exact reverse of
// the first ordering, for every sortable column.
func TestProperty_SortTwiceIsExactReverse(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("second SetSort reverses the first", prop.ForAll(
		func(names []string, qtys []int64, field string) bool {
			v := newTestView()
			v.SetRows(buildRows(names, qtys))

			v.SetSort(field)
			first := ids(v.Rows())
			v.SetSort(field)
			second := ids(v.Rows())

			slices.Reverse(first)
			return slices.Equal(first, second)
		},
		gen.SliceOf(gen.OneConstOf("NIFTY", "nifty", "BANKNIFTY", "10", "9", "", "SENSEX", "FINNIFTY")),
		gen.SliceOf(gen.Int64Range(-50, 50)),
		gen.OneConstOf("id", "name", "qty", "at"),
	))

	properties.TestingRun(t)
}

// Property: the empty search is the identity, and any search returns a
// subset of it.
func TestProperty_SearchIsSubsetOfUnfiltered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("search subset", prop.ForAll(
		func(names []string, qtys []int64, query string) bool {
			rows := buildRows(names, qtys)
			v := newTestView()
			v.SetRows(rows)

			v.SetSearch("")
			all := ids(v.Rows())
			if !slices.Equal(all, ids(rows)) {
				return false
			}

			v.SetSearch(query)
			for _, id := range ids(v.Rows()) {
				if !slices.Contains(all, id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Int64Range(-50, 50)),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestSetSortToggleAndReset(t *testing.T) {
	v := newTestView()
	v.SetSort("qty")
	if s := v.Sort(); s.Field != "qty" || s.Direction != Ascending {
		t.Fatalf("got %+v, want qty asc", s)
	}
	v.SetSort("qty")
	if s := v.Sort(); s.Direction != Descending {
		t.Fatalf("got %+v, want qty desc", s)
	}
	v.SetSort("name")
	if s := v.Sort(); s.Field != "name" || s.Direction != Ascending {
		t.Fatalf("got %+v, want name asc", s)
	}
}

func TestParseSort(t *testing.T) {
	fields := testRow{}.Fields()
	if s, ok := ParseSort("-qty", fields); !ok || s.Field != "qty" || s.Direction != Descending {
		t.Fatalf("-qty: got %+v %v", s, ok)
	}
	if s, ok := ParseSort("name", fields); !ok || s.Direction != Ascending {
		t.Fatalf("name: got %+v %v", s, ok)
	}
	if _, ok := ParseSort("price", fields); ok {
		t.Fatal("unknown field accepted")
	}
}

func TestNumericBeforeLexical(t *testing.T) {
	v := newTestView()
	v.SetRows([]testRow{{id: 0, qty: 10}, {id: 1, qty: 9}, {id: 2, qty: -3}})
	v.SetSort("qty")

	got := ids(v.Rows())
	want := []int{2, 1, 0}
	if !slices.Equal(got, want) {
		t.Fatalf("numeric sort: got %v, want %v", got, want)
	}
}

func TestTimeFieldsCompareAsDates(t *testing.T) {
	v := newTestView()
	// Lexically "02-Aug" < "31-Jul"; as dates it is the other way round.
	v.SetRows([]testRow{
		{id: 0, at: "02-Aug-2024 09:15:00"},
		{id: 1, at: "31-Jul-2024 15:29:59"},
	})
	v.SetSort("at")

	got := ids(v.Rows())
	if !slices.Equal(got, []int{1, 0}) {
		t.Fatalf("time sort: got %v, want [1 0]", got)
	}
}

func TestSearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	v := newTestView()
	v.SetRows([]testRow{
		{id: 0, name: "NIFTY24AUGFUT", qty: 75},
		{id: 1, name: "BANKNIFTY", qty: 15},
		{id: 2, name: "SENSEX", qty: 10},
	})

	v.SetSearch("nifty")
	if got := ids(v.Rows()); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("search nifty: got %v", got)
	}

	v.SetSearch("75")
	if got := ids(v.Rows()); !slices.Equal(got, []int{0}) {
		t.Fatalf("search 75: got %v", got)
	}
}

func TestRowsReflectLatestSetRows(t *testing.T) {
	v := newTestView()
	v.SetSearch("a")
	v.SetRows([]testRow{{id: 0, name: "alpha"}})
	if len(v.Rows()) != 1 {
		t.Fatal("expected one row")
	}
	v.SetRows([]testRow{{id: 1, name: "beta"}, {id: 2, name: "gamma"}, {id: 3, name: "xyz"}})
	if got := ids(v.Rows()); !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("got %v, want [1 2]", got)
	}
}

func TestDefaultOrder(t *testing.T) {
	v := New[testRow](WithDefaultOrder[testRow](func(a, b testRow) int {
		return int(b.qty - a.qty)
	}))
	v.SetRows([]testRow{{id: 0, qty: 1}, {id: 1, qty: 5}, {id: 2, qty: 3}})
	if got := ids(v.Rows()); !slices.Equal(got, []int{1, 2, 0}) {
		t.Fatalf("default order: got %v", got)
	}

	v.SetSort("id")
	v.ClearSort()
	if got := ids(v.Rows()); !slices.Equal(got, []int{1, 2, 0}) {
		t.Fatalf("after ClearSort: got %v", got)
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2024-08-01T09:15:00Z", "2024-08-01 09:15:00", "01-Aug-2024 09:15:00", "09:15:00"} {
		if _, ok := ParseTime(s); !ok {
			t.Errorf("ParseTime(%q) failed", s)
		}
	}
	if _, ok := ParseTime("-"); ok {
		t.Error("ParseTime(-) should fail")
	}
}
