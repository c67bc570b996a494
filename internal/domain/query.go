package domain

// PageSize is the fixed number of items per collection page.
const PageSize = 20

// Filter is one equality or set-membership predicate over a column. Values
// keep the first-seen order of the request so multi-valued filters can keep
// their results ordered by filter value.
type Filter struct {
	Param  string
	Column string
	Values []string
}

// Query is a translated collection request: recognized filters plus an
// offset into the deterministically ordered result set.
type Query struct {
	Filters []Filter
	Offset  int
}

// Page is one page of an ordered collection, with the total match count.
type Page struct {
	Items  []Record
	Total  int
	Offset int
}

// HasNext reports whether more items follow this page.
func (p Page) HasNext() bool {
	return p.Offset+len(p.Items) < p.Total
}

// HasPrevious reports whether the page was not the first one.
func (p Page) HasPrevious() bool {
	return p.Offset > 0
}

// ParseFilters translates request parameters into predicates for the
// resource type. Unrecognized parameters are ignored; repeating a parameter
// with the same value collapses to one predicate, repeating with distinct
// values produces a set-membership predicate. Filter order follows the
// resource type's declared parameter order so pagination links stay
// canonical.
func ParseFilters(rt *ResourceType, params map[string][]string) []Filter {
	var filters []Filter
	for _, fp := range rt.Filters {
		raw, ok := params[fp.Param]
		if !ok || len(raw) == 0 {
			continue
		}
		seen := make(map[string]struct{}, len(raw))
		values := make([]string, 0, len(raw))
		for _, v := range raw {
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		if len(values) == 0 {
			continue
		}
		filters = append(filters, Filter{Param: fp.Param, Column: fp.Column, Values: values})
	}
	return filters
}
