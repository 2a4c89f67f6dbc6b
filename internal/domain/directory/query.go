package directory

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ehr/directory/pkg/pagination"
)

// SortField selects the attribute used by the primary sort pass.
type SortField string

const (
	SortNone      SortField = "none"
	SortName      SortField = "patient_name"
	SortAge       SortField = "age"
	SortCondition SortField = "medical_issue"
)

// ParseSortField maps a raw request value to a SortField, ignoring case.
// Unknown values disable the primary sort.
func ParseSortField(s string) SortField {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case SortName, SortAge, SortCondition:
		return f
	default:
		return SortNone
	}
}

// IDOrder selects the direction of the identifier sort pass.
type IDOrder string

const (
	IDOrderNone IDOrder = "none"
	IDOrderAsc  IDOrder = "asc"
	IDOrderDesc IDOrder = "desc"
)

// ParseIDOrder maps a raw request value to an IDOrder, ignoring case.
// Unknown values disable the identifier sort.
func ParseIDOrder(s string) IDOrder {
	switch o := IDOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case IDOrderAsc, IDOrderDesc:
		return o
	default:
		return IDOrderNone
	}
}

// Params is the query parameter bundle.
type Params struct {
	Page     int
	PageSize int
	Search   string
	SortBy   SortField
	IDOrder  IDOrder
}

// Result is one page of matching records plus pagination metadata computed
// against the filtered, pre-slice total.
type Result struct {
	Records    []Patient       `json:"data"`
	Pagination pagination.Meta `json:"pagination"`
}

// Query runs the filter, primary sort, identifier sort and pagination
// pipeline using English collation for string sorts.
func Query(records []Patient, p Params) Result {
	return QueryLocale(records, p, language.English)
}

// QueryLocale is Query with an explicit collation language. The input slice
// is never modified.
func QueryLocale(records []Patient, p Params, tag language.Tag) Result {
	matched := filter(records, p.Search)

	if p.SortBy != "" && p.SortBy != SortNone {
		sortByField(matched, p.SortBy, collate.New(tag))
	}
	if p.IDOrder != "" && p.IDOrder != IDOrderNone {
		sortByID(matched, p.IDOrder)
	}

	pg := pagination.Params{Page: p.Page, Limit: p.PageSize}.Normalize()
	start, end := pg.Bounds(len(matched))

	page := make([]Patient, end-start)
	copy(page, matched[start:end])

	return Result{
		Records:    page,
		Pagination: pagination.NewMeta(pg, len(matched)),
	}
}

// filter returns a fresh slice of the records whose name, condition or
// primary address contains term, case-insensitively. An empty term keeps
// every record.
func filter(records []Patient, term string) []Patient {
	out := make([]Patient, 0, len(records))
	if term == "" {
		return append(out, records...)
	}

	needle := strings.ToLower(term)
	for _, r := range records {
		if matches(&r, needle) {
			out = append(out, r)
		}
	}
	return out
}

func matches(p *Patient, needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Condition), needle) {
		return true
	}
	if addr, ok := p.PrimaryAddress(); ok {
		return strings.Contains(strings.ToLower(addr), needle)
	}
	return false
}

// sortByField always sorts ascending.
func sortByField(records []Patient, field SortField, col *collate.Collator) {
	var less func(a, b *Patient) bool
	switch field {
	case SortAge:
		less = func(a, b *Patient) bool { return a.Age-b.Age < 0 }
	case SortName:
		less = func(a, b *Patient) bool { return col.CompareString(a.Name, b.Name) < 0 }
	case SortCondition:
		less = func(a, b *Patient) bool { return col.CompareString(a.Condition, b.Condition) < 0 }
	default:
		return
	}

	sort.SliceStable(records, func(i, j int) bool {
		return less(&records[i], &records[j])
	})
}

func sortByID(records []Patient, order IDOrder) {
	sort.SliceStable(records, func(i, j int) bool {
		if order == IDOrderDesc {
			return records[i].ID > records[j].ID
		}
		return records[i].ID < records[j].ID
	})
}
