package domain

import "testing"

func TestParseFiltersIgnoresUnknownParams(t *testing.T) {
	filters := ParseFilters(PostCode, map[string][]string{
		"code":  {"31310"},
		"bogus": {"x"},
	})
	if len(filters) != 1 {
		t.Fatalf("got %d filters", len(filters))
	}
	if filters[0].Param != "code" || filters[0].Column != "code" {
		t.Errorf("got %+v", filters[0])
	}
}

func TestParseFiltersDedupsRepeatedValues(t *testing.T) {
	filters := ParseFilters(PostCode, map[string][]string{
		"code": {"31310", "31310"},
	})
	if len(filters) != 1 || len(filters[0].Values) != 1 {
		t.Fatalf("got %+v", filters)
	}
}

func TestParseFiltersKeepsFirstSeenOrder(t *testing.T) {
	filters := ParseFilters(PostCode, map[string][]string{
		"code": {"31310", "09350", "31310"},
	})
	if len(filters) != 1 {
		t.Fatalf("got %+v", filters)
	}
	values := filters[0].Values
	if len(values) != 2 || values[0] != "31310" || values[1] != "09350" {
		t.Errorf("got %v", values)
	}
}

func TestParseFiltersFollowsDeclaredOrder(t *testing.T) {
	filters := ParseFilters(PostCode, map[string][]string{
		"municipality": {"11111111-1111-1111-1111-111111111111"},
		"code":         {"31310"},
	})
	if len(filters) != 2 {
		t.Fatalf("got %d filters", len(filters))
	}
	if filters[0].Param != "code" || filters[1].Param != "municipality" {
		t.Errorf("declared order not kept: %+v", filters)
	}
}

func TestParseFiltersDropsEmptyValues(t *testing.T) {
	filters := ParseFilters(PostCode, map[string][]string{
		"code": {""},
	})
	if len(filters) != 0 {
		t.Errorf("got %+v", filters)
	}
}

func TestPageLinks(t *testing.T) {
	p := Page{Items: make([]Record, PageSize), Total: 50, Offset: 20}
	if !p.HasNext() {
		t.Error("page 2 of 50 has a next page")
	}
	if !p.HasPrevious() {
		t.Error("page 2 has a previous page")
	}

	first := Page{Items: make([]Record, PageSize), Total: 50, Offset: 0}
	if first.HasPrevious() {
		t.Error("first page has no previous page")
	}

	last := Page{Items: make([]Record, 10), Total: 50, Offset: 40}
	if last.HasNext() {
		t.Error("last page has no next page")
	}
}
