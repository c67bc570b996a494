package domain

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Kind identifies one of the closed set of field coercion variants.
type Kind string

const (
	KindChar       Kind = "char"
	KindText       Kind = "text"
	KindInteger    Kind = "integer"
	KindBool       Kind = "boolean"
	KindPostCode   Kind = "postcode"
	KindFantoir    Kind = "fantoir"
	KindPoint      Kind = "point"
	KindDateRange  Kind = "daterange"
	KindArray      Kind = "array"
	KindForeignKey Kind = "foreign_key"
	KindManyToMany Kind = "many_to_many"
)

// Field describes one typed column of a resource schema.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Length, when non-zero, is the exact length a char value must have.
	Length int
	// MaxLength, when non-zero, caps char/text values.
	MaxLength int
	// Ref names the referenced resource type for foreign_key/many_to_many.
	Ref string
	// NoExpand renders the reference as a raw identifier instead of the
	// related resource's rendered form.
	NoExpand bool
	// Default is substituted when the field is missing from input.
	Default any
}

// Column returns the database column backing the field.
func (f Field) Column() string {
	switch f.Kind {
	case KindForeignKey:
		return f.Name + "_id"
	default:
		return f.Name
	}
}

type coerceFunc func(Field, any) (any, error)

// coercers maps each field kind to its coercion variant. The registry is
// consulted at schema definition time, never via runtime type inspection of
// the field itself.
var coercers = map[Kind]coerceFunc{
	KindChar:       coerceChar,
	KindText:       coerceChar,
	KindInteger:    coerceInteger,
	KindBool:       coerceBool,
	KindPostCode:   coercePostCode,
	KindFantoir:    coerceFantoir,
	KindPoint:      coercePointField,
	KindDateRange:  coerceDateRange,
	KindArray:      coerceArray,
	KindForeignKey: coerceForeignKey,
	KindManyToMany: coerceManyToMany,
}

// Schema is the ordered set of fields of a resource type.
type Schema struct {
	fields []Field
	byName map[string]Field
}

// NewSchema builds a schema, resolving every field kind against the coercion
// registry. Unknown kinds are a programming error and panic at definition
// time.
func NewSchema(fields ...Field) Schema {
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		if _, ok := coercers[f.Kind]; !ok {
			panic(fmt.Sprintf("unknown field kind %q for field %q", f.Kind, f.Name))
		}
		byName[f.Name] = f
	}
	return Schema{fields: fields, byName: byName}
}

// Fields returns the schema's fields in declaration order.
func (s Schema) Fields() []Field {
	return s.fields
}

// Field looks a field up by name.
func (s Schema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Clean coerces every schema field present in input into its canonical value
// and checks required fields. Failures are aggregated across all fields so
// the caller can report every problem at once. Keys not belonging to the
// schema are ignored.
func (s Schema) Clean(input map[string]any) (Record, *ValidationError) {
	rec := make(Record, len(s.fields))
	ve := NewValidationError()

	for _, f := range s.fields {
		raw, present := input[f.Name]
		if !present {
			if f.Default != nil {
				rec[f.Name] = f.Default
				continue
			}
			if f.Required {
				ve.Add(f.Name, "this field is required")
			}
			continue
		}

		value, err := coercers[f.Kind](f, raw)
		if err != nil {
			ve.Add(f.Name, err.Error())
			continue
		}
		if value == nil && f.Required {
			ve.Add(f.Name, "this field is required")
			continue
		}
		rec[f.Name] = value
	}

	if ve.HasErrors() {
		return nil, ve
	}
	return rec, nil
}

func coerceChar(f Field, raw any) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	value, err := stringify(raw)
	if err != nil {
		return nil, err
	}
	if f.Length > 0 && len(value) != f.Length {
		return nil, fmt.Errorf("expected %d characters, got %q", f.Length, value)
	}
	if f.MaxLength > 0 && len(value) > f.MaxLength {
		return nil, fmt.Errorf("value longer than %d characters: %q", f.MaxLength, value)
	}
	return value, nil
}

func coerceInteger(_ Field, raw any) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	switch v := raw.(type) {
	case int:
		return nilIfZero(int64(v)), nil
	case int64:
		return nilIfZero(v), nil
	case float64:
		if math.Mod(v, 1) != 0 {
			return nil, fmt.Errorf("not an integer: %v", v)
		}
		return nilIfZero(int64(v)), nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", v)
		}
		return nilIfZero(i), nil
	default:
		return nil, fmt.Errorf("not an integer: %v", raw)
	}
}

// nilIfZero mirrors the falsy-to-absent rule for integers.
func nilIfZero(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func coerceBool(_ Field, raw any) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("not a boolean: %v", raw)
	}
}

func coercePostCode(_ Field, raw any) (any, error) {
	value, err := stringify(raw)
	if err != nil {
		return nil, err
	}
	if len(value) != 5 || !allDigits(value) {
		return nil, fmt.Errorf("invalid postcode: %q", value)
	}
	return value, nil
}

func coerceFantoir(_ Field, raw any) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	value, err := stringify(raw)
	if err != nil {
		return nil, err
	}
	if len(value) == 10 {
		value = value[:9]
	}
	if len(value) != 9 {
		return nil, fmt.Errorf("FANTOIR must be municipality INSEE plus the 4 first chars of the way code, got %q", value)
	}
	return value, nil
}

func coercePointField(_ Field, raw any) (any, error) {
	p, err := ParsePoint(raw)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return p, nil
}

func coerceDateRange(_ Field, raw any) (any, error) {
	r, err := ParseDateRange(raw)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func coerceArray(_ Field, raw any) (any, error) {
	if isEmpty(raw) {
		return []string{}, nil
	}
	items, ok := toSlice(raw)
	if !ok {
		items = []any{raw}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		value, err := stringify(item)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

func coerceForeignKey(f Field, raw any) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case map[string]any:
		// Embedded resource dict: extract its id.
		id, ok := v["id"]
		if !ok {
			return nil, fmt.Errorf("embedded %s resource has no id", f.Ref)
		}
		return coerceForeignKey(f, id)
	case Record:
		return coerceForeignKey(f, map[string]any(v))
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s reference: %q", f.Ref, v)
		}
		return id, nil
	default:
		return nil, fmt.Errorf("invalid %s reference: %v", f.Ref, raw)
	}
}

func coerceManyToMany(f Field, raw any) (any, error) {
	// Canonical output coerces to itself, so stored values survive a
	// merge-and-clean round trip.
	if v, ok := raw.([]uuid.UUID); ok {
		out := make([]uuid.UUID, len(v))
		copy(out, v)
		return out, nil
	}
	if isEmpty(raw) {
		return []uuid.UUID{}, nil
	}
	items, ok := toSlice(raw)
	if !ok {
		items = []any{raw}
	}
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		id, err := coerceForeignKey(f, item)
		if err != nil {
			return nil, err
		}
		if id == nil {
			return nil, fmt.Errorf("empty %s reference in sequence", f.Ref)
		}
		out = append(out, id.(uuid.UUID))
	}
	return out, nil
}

func stringify(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.Mod(v, 1) == 0 {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("not a string: %v", raw)
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
