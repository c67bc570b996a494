package domain

import (
	"fmt"
	"time"
)

// DateRange is a half-open time interval: the start bound is included, the
// end bound is excluded. A nil bound means unbounded on that side.
type DateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && !t.Before(*r.End) {
		return false
	}
	return true
}

// ParseDateRange coerces a two-element [start, end] pair into a DateRange.
// Either bound may be absent. Empty input coerces to an unbounded range.
func ParseDateRange(raw any) (DateRange, error) {
	if isEmpty(raw) {
		return DateRange{}, nil
	}

	if v, ok := raw.(DateRange); ok {
		return v, nil
	}

	pair, ok := toSlice(raw)
	if !ok || len(pair) != 2 {
		return DateRange{}, fmt.Errorf("expected a [start, end] pair")
	}

	start, err := parseBound(pair[0])
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start bound: %w", err)
	}
	end, err := parseBound(pair[1])
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end bound: %w", err)
	}
	if start != nil && end != nil && end.Before(*start) {
		return DateRange{}, fmt.Errorf("end bound precedes start bound")
	}

	return DateRange{Start: start, End: end}, nil
}

func parseBound(raw any) (*time.Time, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("unrecognized time %q", v)
	default:
		return nil, fmt.Errorf("unsupported bound type %T", raw)
	}
}
