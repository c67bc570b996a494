package domain

// Record holds canonical field values for one resource, keyed by field name.
// Values are the outputs of the field coercion layer: strings, int64, bool,
// *Point, DateRange, uuid.UUID for references, []uuid.UUID for related sets,
// []string for arrays, or nil for absent.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// isEmpty reports whether a raw input value coerces to absent: nil, the
// empty string, or an empty sequence.
func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
