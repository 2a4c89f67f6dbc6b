package directory

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func strPtr(s string) *string { return &s }

// sampleDataset is the three-record dataset used by the worked examples.
func sampleDataset() []Patient {
	return []Patient{
		{ID: 3, Name: "Bob", Age: 40, Condition: "fever", Contacts: []Contact{{Address: strPtr("1 Elm")}}},
		{ID: 1, Name: "Amy", Age: 25, Condition: "rash", Contacts: []Contact{}},
		{ID: 2, Name: "Cid", Age: 33, Condition: "Fever", Contacts: []Contact{{Email: strPtr("c@x.com")}}},
	}
}

func ids(records []Patient) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// generatedDataset builds n records with repeating names, ages and
// conditions so sorts have ties and searches have partial hits.
func generatedDataset(n int) []Patient {
	names := []string{"Amy Lee", "bob stone", "Cid Park", "Dora elm", "Émile Roux", "zoe Quinn"}
	conditions := []string{"fever", "Headache", "sore throat", "Sprained Ankle", "rash", "ear infection"}
	addresses := []string{"12 Elm Street", "4 Oak Ave", "", "99 PARK lane"}

	out := make([]Patient, 0, n)
	for i := 0; i < n; i++ {
		p := Patient{
			ID:        (i*7)%n + 1,
			Name:      names[i%len(names)],
			Age:       (i * 13) % 90,
			Condition: conditions[(i/2)%len(conditions)],
		}
		switch addr := addresses[i%len(addresses)]; {
		case i%5 == 0:
			p.Contacts = nil
		case addr == "":
			p.Contacts = []Contact{{Number: strPtr("555-0100")}}
		default:
			p.Contacts = []Contact{{Address: strPtr(addr)}, {Address: strPtr("Secondary Road")}}
		}
		out = append(out, p)
	}
	return out
}

func TestQuery_SearchConditionCaseInsensitive(t *testing.T) {
	res := Query(sampleDataset(), Params{Search: "fever", IDOrder: IDOrderAsc, Page: 1, PageSize: 10})

	if got, want := ids(res.Records), []int{2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if res.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", res.Pagination.Total)
	}
	if res.Pagination.TotalPages != 1 {
		t.Errorf("totalPages = %d, want 1", res.Pagination.TotalPages)
	}
}

func TestQuery_SortByAgeFirstPage(t *testing.T) {
	res := Query(sampleDataset(), Params{SortBy: SortAge, Page: 1, PageSize: 2})

	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	if res.Records[0].Name != "Amy" || res.Records[0].Age != 25 {
		t.Errorf("first = %s(%d), want Amy(25)", res.Records[0].Name, res.Records[0].Age)
	}
	if res.Records[1].Name != "Cid" || res.Records[1].Age != 33 {
		t.Errorf("second = %s(%d), want Cid(33)", res.Records[1].Name, res.Records[1].Age)
	}
	if res.Pagination.Total != 3 {
		t.Errorf("total = %d, want 3", res.Pagination.Total)
	}
	if res.Pagination.TotalPages != 2 {
		t.Errorf("totalPages = %d, want 2", res.Pagination.TotalPages)
	}
}

func TestQuery_EmptySearchKeepsEverything(t *testing.T) {
	data := generatedDataset(37)
	res := Query(data, Params{Page: 1, PageSize: 100})

	if !reflect.DeepEqual(res.Records, data) {
		t.Error("expected unfiltered, unsorted result to equal the input")
	}
	if res.Pagination.Total != len(data) {
		t.Errorf("total = %d, want %d", res.Pagination.Total, len(data))
	}
}

func TestQuery_FilterProperty(t *testing.T) {
	data := generatedDataset(60)
	terms := []string{"e", "ELM", "park", "fever", "ankle", "oak ave", "road", "555", "zzz", "É"}

	for _, term := range terms {
		t.Run(term, func(t *testing.T) {
			res := Query(data, Params{Search: term, Page: 1, PageSize: 1000})

			needle := strings.ToLower(term)
			want := map[int]bool{}
			for _, p := range data {
				hit := strings.Contains(strings.ToLower(p.Name), needle) ||
					strings.Contains(strings.ToLower(p.Condition), needle)
				if len(p.Contacts) > 0 && p.Contacts[0].Address != nil {
					hit = hit || strings.Contains(strings.ToLower(*p.Contacts[0].Address), needle)
				}
				if hit {
					want[p.ID] = true
				}
			}

			if len(res.Records) != len(want) {
				t.Fatalf("matched %d records, want %d", len(res.Records), len(want))
			}
			for _, p := range res.Records {
				if !want[p.ID] {
					t.Errorf("record %d should not match %q", p.ID, term)
				}
			}
		})
	}
}

func TestQuery_SearchIgnoresSecondaryContacts(t *testing.T) {
	data := []Patient{
		{ID: 1, Name: "Amy", Condition: "rash", Contacts: []Contact{{Email: strPtr("a@x.com")}, {Address: strPtr("Maple Court")}}},
		{ID: 2, Name: "Bob", Condition: "rash", Contacts: []Contact{{Address: strPtr("Maple Court")}}},
	}

	res := Query(data, Params{Search: "maple", Page: 1, PageSize: 10})

	if got := ids(res.Records); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("ids = %v, want [2]", got)
	}
}

func TestQuery_SearchMissingAddressIsNotAnError(t *testing.T) {
	data := []Patient{
		{ID: 1, Name: "Amy", Condition: "rash"},
		{ID: 2, Name: "Bob", Condition: "rash", Contacts: []Contact{{}}},
		{ID: 3, Name: "Cid", Condition: "fever", Contacts: []Contact{{Number: strPtr("555")}}},
	}

	res := Query(data, Params{Search: "fever", Page: 1, PageSize: 10})

	if got := ids(res.Records); !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("ids = %v, want [3]", got)
	}
}

func TestQuery_PaginationProperty(t *testing.T) {
	for total := 0; total <= 23; total++ {
		data := generatedDataset(total)
		for size := 1; size <= 7; size++ {
			for page := 1; page <= 6; page++ {
				res := Query(data, Params{Page: page, PageSize: size})

				want := total - (page-1)*size
				if want < 0 {
					want = 0
				}
				if want > size {
					want = size
				}
				if len(res.Records) != want {
					t.Fatalf("total=%d size=%d page=%d: len = %d, want %d", total, size, page, len(res.Records), want)
				}

				wantPages := (total + size - 1) / size
				if res.Pagination.TotalPages != wantPages {
					t.Fatalf("total=%d size=%d: totalPages = %d, want %d", total, size, res.Pagination.TotalPages, wantPages)
				}
				if res.Pagination.Total != total {
					t.Fatalf("total = %d, want %d", res.Pagination.Total, total)
				}
			}
		}
	}
}

func TestQuery_PagePastEndIsEmpty(t *testing.T) {
	res := Query(sampleDataset(), Params{Page: 9, PageSize: 2})

	if res.Records == nil {
		t.Fatal("expected empty, non-nil page")
	}
	if len(res.Records) != 0 {
		t.Errorf("expected no records, got %d", len(res.Records))
	}
	if res.Pagination.Page != 9 || res.Pagination.TotalPages != 2 {
		t.Errorf("pagination = %+v", res.Pagination)
	}

	b, _ := json.Marshal(res)
	if !strings.Contains(string(b), `"data":[]`) {
		t.Errorf("expected empty JSON array, got %s", b)
	}
}

func TestQuery_HugePageIsEmpty(t *testing.T) {
	for _, page := range []int{18446744073709553, math.MaxInt64/500 + 1, math.MaxInt} {
		res := Query(sampleDataset(), Params{Page: page, PageSize: 500})

		if len(res.Records) != 0 {
			t.Errorf("page %d: expected no records, got %d", page, len(res.Records))
		}
		if res.Pagination.Total != 3 || res.Pagination.TotalPages != 1 {
			t.Errorf("page %d: pagination = %+v", page, res.Pagination)
		}
	}
}

func TestQuery_ZeroParamsUseDefaults(t *testing.T) {
	res := Query(generatedDataset(120), Params{})

	if res.Pagination.Page != 1 || res.Pagination.Limit != 50 {
		t.Errorf("pagination = %+v, want page 1 limit 50", res.Pagination)
	}
	if len(res.Records) != 50 {
		t.Errorf("len = %d, want 50", len(res.Records))
	}
}

func TestQuery_AgeSortIsNonDecreasing(t *testing.T) {
	data := generatedDataset(50)

	for _, order := range []IDOrder{"", IDOrderNone} {
		res := Query(data, Params{SortBy: SortAge, IDOrder: order, Page: 1, PageSize: 100})
		for i := 1; i < len(res.Records); i++ {
			if res.Records[i-1].Age > res.Records[i].Age {
				t.Fatalf("ages not ascending at %d: %d > %d", i, res.Records[i-1].Age, res.Records[i].Age)
			}
		}
	}
}

func TestQuery_NameSortUsesCollation(t *testing.T) {
	data := []Patient{
		{ID: 1, Name: "Zed"},
		{ID: 2, Name: "émile"},
		{ID: 3, Name: "bob"},
		{ID: 4, Name: "Amy"},
		{ID: 5, Name: ""},
	}

	res := Query(data, Params{SortBy: SortName, Page: 1, PageSize: 10})

	var got []string
	for _, p := range res.Records {
		got = append(got, p.Name)
	}
	want := []string{"", "Amy", "bob", "émile", "Zed"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("names = %q, want %q", got, want)
	}
}

func TestQuery_ConditionSortIsStable(t *testing.T) {
	data := []Patient{
		{ID: 5, Condition: "fever"},
		{ID: 1, Condition: "rash"},
		{ID: 3, Condition: "fever"},
		{ID: 4, Condition: "Fever"},
		{ID: 2, Condition: "ear infection"},
	}

	res := Query(data, Params{SortBy: SortCondition, Page: 1, PageSize: 10})

	// Lowercase sorts before uppercase at the tertiary level; equal keys keep input order.
	if got, want := ids(res.Records), []int{2, 5, 3, 4, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestQuery_IDSortOverridesPrimarySort(t *testing.T) {
	data := generatedDataset(40)

	for _, field := range []SortField{SortName, SortAge, SortCondition} {
		asc := Query(data, Params{SortBy: field, IDOrder: IDOrderAsc, Page: 1, PageSize: 100})
		for i := 1; i < len(asc.Records); i++ {
			if asc.Records[i-1].ID >= asc.Records[i].ID {
				t.Fatalf("%s/asc: ids not increasing at %d", field, i)
			}
		}

		desc := Query(data, Params{SortBy: field, IDOrder: IDOrderDesc, Page: 1, PageSize: 100})
		for i := 1; i < len(desc.Records); i++ {
			if desc.Records[i-1].ID <= desc.Records[i].ID {
				t.Fatalf("%s/desc: ids not decreasing at %d", field, i)
			}
		}
	}
}

func TestQuery_IDSortWithoutPrimarySort(t *testing.T) {
	res := Query(sampleDataset(), Params{IDOrder: IDOrderDesc, Page: 1, PageSize: 10})

	if got, want := ids(res.Records), []int{3, 2, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestQuery_DoesNotMutateInput(t *testing.T) {
	data := sampleDataset()
	before := ids(data)

	Query(data, Params{SortBy: SortName, IDOrder: IDOrderDesc, Page: 1, PageSize: 10})

	if after := ids(data); !reflect.DeepEqual(before, after) {
		t.Errorf("input reordered: %v -> %v", before, after)
	}
}

func TestQuery_Idempotent(t *testing.T) {
	data := generatedDataset(45)
	p := Params{Search: "e", SortBy: SortCondition, IDOrder: IDOrderNone, Page: 2, PageSize: 7}

	first := Query(data, p)
	second := Query(data, p)

	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical results for identical inputs")
	}
}

func TestQueryLocale_Swedish(t *testing.T) {
	data := []Patient{{ID: 1, Name: "Östen"}, {ID: 2, Name: "Zara"}}

	en := QueryLocale(data, Params{SortBy: SortName, Page: 1, PageSize: 10}, language.English)
	sv := QueryLocale(data, Params{SortBy: SortName, Page: 1, PageSize: 10}, language.Swedish)

	if got := ids(en.Records); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("en ids = %v, want [1 2]", got)
	}
	if got := ids(sv.Records); !reflect.DeepEqual(got, []int{2, 1}) {
		t.Errorf("sv ids = %v, want [2 1]", got)
	}
}

func TestParseSortField(t *testing.T) {
	tests := map[string]SortField{
		"patient_name":  SortName,
		"age":           SortAge,
		"medical_issue": SortCondition,
		"AGE":           SortAge,
		"Patient_Name":  SortName,
		" age ":         SortAge,
		"none":          SortNone,
		"":              SortNone,
		"patient_id":    SortNone,
		"photo_url":     SortNone,
	}
	for in, want := range tests {
		if got := ParseSortField(in); got != want {
			t.Errorf("ParseSortField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseIDOrder(t *testing.T) {
	tests := map[string]IDOrder{
		"asc":  IDOrderAsc,
		"ASC":  IDOrderAsc,
		"desc": IDOrderDesc,
		"none": IDOrderNone,
		"":     IDOrderNone,
		"up":   IDOrderNone,
	}
	for in, want := range tests {
		if got := ParseIDOrder(in); got != want {
			t.Errorf("ParseIDOrder(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPatient_PrimaryAddress(t *testing.T) {
	tests := []struct {
		name   string
		p      Patient
		want   string
		wantOK bool
	}{
		{"no contacts", Patient{}, "", false},
		{"first without address", Patient{Contacts: []Contact{{Email: strPtr("x@y")}, {Address: strPtr("B")}}}, "", false},
		{"first with address", Patient{Contacts: []Contact{{Address: strPtr("A")}}}, "A", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.p.PrimaryAddress()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("PrimaryAddress() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func ExampleQuery() {
	res := Query(sampleDataset(), Params{Search: "fever", IDOrder: IDOrderAsc, Page: 1, PageSize: 10})
	fmt.Println(ids(res.Records), res.Pagination.Total, res.Pagination.TotalPages)
	// Output: [2 3] 2 1
}
