package domain

import (
	"strings"

	"github.com/google/uuid"
)

// FilterParam maps a recognized query-string parameter onto a column.
type FilterParam struct {
	Param  string
	Column string
}

// NestedCollection exposes a child resource collection under a parent route,
// e.g. /municipality/{ref}/streets.
type NestedCollection struct {
	Route   string
	Child   string
	FKField string
}

// JoinTable describes the association table backing an ordered
// many-to-many field.
type JoinTable struct {
	Field         string
	Table         string
	OwnerColumn   string
	RelatedColumn string
}

// ResourceType ties a resource name to its schema, table, identifier kinds,
// recognized filters and default ordering. Instances are defined once at
// startup and shared read-only.
type ResourceType struct {
	Name   string
	Table  string
	Schema Schema
	// IdentifierKinds maps an identifier kind ("id", "insee", "cia", ...)
	// to the column it resolves against.
	IdentifierKinds map[string]string
	Filters         []FilterParam
	// DefaultOrder lists the columns of the deterministic default ordering.
	DefaultOrder []string
	Nested       []NestedCollection
	Join         *JoinTable
	// Computed lists store-maintained columns that are rendered but never
	// accepted as input, e.g. a house number's CIA.
	Computed []string
}

// FieldsOfKind returns the schema fields of the given kind, in order.
func (rt *ResourceType) FieldsOfKind(kind Kind) []Field {
	var out []Field
	for _, f := range rt.Schema.Fields() {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// FilterColumn resolves a query parameter to its column, if recognized.
func (rt *ResourceType) FilterColumn(param string) (string, bool) {
	for _, fp := range rt.Filters {
		if fp.Param == param {
			return fp.Column, true
		}
	}
	return "", false
}

// Identifier is a parsed item reference: an identifier kind plus its value.
type Identifier struct {
	Kind   string
	Value  string
	Column string
}

// ParseIdentifier parses a path reference of the form "value" or
// "kind:value". A bare value is an id. Unknown kinds and malformed ids fail
// with MalformedRequestError.
func (rt *ResourceType) ParseIdentifier(ref string) (Identifier, error) {
	kind, value := "id", ref
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		kind, value = ref[:i], ref[i+1:]
	}
	column, ok := rt.IdentifierKinds[kind]
	if !ok {
		return Identifier{}, malformedf("%s cannot be looked up by %q", rt.Name, kind)
	}
	if kind == "id" {
		if _, err := uuid.Parse(value); err != nil {
			return Identifier{}, malformedf("invalid %s id: %q", rt.Name, value)
		}
	}
	return Identifier{Kind: kind, Value: value, Column: column}, nil
}

// ComputeCIA derives a house number's composite business identifier from its
// municipality INSEE code, the street FANTOIR, and the number and ordinal.
// The way part of the FANTOIR is the code minus its INSEE prefix.
func ComputeCIA(insee, fantoir, number, ordinal string) string {
	way := fantoir
	if len(fantoir) > 5 {
		way = fantoir[5:]
	}
	return strings.ToUpper(strings.Join([]string{insee, way, number, ordinal}, "_"))
}

var (
	// Municipality is the root administrative resource, addressable by its
	// INSEE or SIREN code as well as by id.
	Municipality = &ResourceType{
		Name:  "municipality",
		Table: "municipalities",
		Schema: NewSchema(
			Field{Name: "name", Kind: KindChar, Required: true, MaxLength: 200},
			Field{Name: "insee", Kind: KindChar, Required: true, Length: 5},
			Field{Name: "siren", Kind: KindChar, Length: 9},
		),
		IdentifierKinds: map[string]string{"id": "id", "insee": "insee", "siren": "siren"},
		Filters: []FilterParam{
			{Param: "insee", Column: "insee"},
			{Param: "siren", Column: "siren"},
		},
		DefaultOrder: []string{"insee", "id"},
		Nested: []NestedCollection{
			{Route: "streets", Child: "street", FKField: "municipality"},
			{Route: "postcodes", Child: "postcode", FKField: "municipality"},
			{Route: "districts", Child: "district", FKField: "municipality"},
		},
	}

	// PostCode keeps its municipality as a raw identifier when rendered.
	PostCode = &ResourceType{
		Name:  "postcode",
		Table: "postcodes",
		Schema: NewSchema(
			Field{Name: "code", Kind: KindPostCode, Required: true},
			Field{Name: "name", Kind: KindChar, Required: true, MaxLength: 200},
			Field{Name: "municipality", Kind: KindForeignKey, Required: true, Ref: "municipality", NoExpand: true},
			Field{Name: "alias", Kind: KindArray},
		),
		IdentifierKinds: map[string]string{"id": "id"},
		Filters: []FilterParam{
			{Param: "code", Column: "code"},
			{Param: "municipality", Column: "municipality_id"},
		},
		DefaultOrder: []string{"code", "municipality_id", "id"},
	}

	// District is a sub-municipality area house numbers may belong to.
	District = &ResourceType{
		Name:  "district",
		Table: "districts",
		Schema: NewSchema(
			Field{Name: "name", Kind: KindChar, Required: true, MaxLength: 200},
			Field{Name: "code", Kind: KindChar},
			Field{Name: "municipality", Kind: KindForeignKey, Required: true, Ref: "municipality"},
		),
		IdentifierKinds: map[string]string{"id": "id"},
		Filters: []FilterParam{
			{Param: "municipality", Column: "municipality_id"},
			{Param: "code", Column: "code"},
		},
		DefaultOrder: []string{"name", "id"},
	}

	// Street is addressable by its FANTOIR code.
	Street = &ResourceType{
		Name:  "street",
		Table: "streets",
		Schema: NewSchema(
			Field{Name: "name", Kind: KindChar, Required: true, MaxLength: 200},
			Field{Name: "fantoir", Kind: KindFantoir},
			Field{Name: "municipality", Kind: KindForeignKey, Required: true, Ref: "municipality"},
		),
		IdentifierKinds: map[string]string{"id": "id", "fantoir": "fantoir"},
		Filters: []FilterParam{
			{Param: "fantoir", Column: "fantoir"},
			{Param: "municipality", Column: "municipality_id"},
		},
		DefaultOrder: []string{"name", "id"},
		Nested: []NestedCollection{
			{Route: "housenumbers", Child: "housenumber", FKField: "street"},
		},
	}

	// HouseNumber is addressable by its CIA composite key. Its district set
	// is an ordered many-to-many relation.
	HouseNumber = &ResourceType{
		Name:  "housenumber",
		Table: "housenumbers",
		Schema: NewSchema(
			Field{Name: "number", Kind: KindChar, Required: true, MaxLength: 16},
			Field{Name: "ordinal", Kind: KindChar, MaxLength: 16, Default: ""},
			Field{Name: "street", Kind: KindForeignKey, Required: true, Ref: "street"},
			Field{Name: "postcode", Kind: KindForeignKey, Ref: "postcode"},
			Field{Name: "districts", Kind: KindManyToMany, Ref: "district"},
		),
		IdentifierKinds: map[string]string{"id": "id", "cia": "cia"},
		Filters: []FilterParam{
			{Param: "street", Column: "street_id"},
			{Param: "postcode", Column: "postcode_id"},
			{Param: "cia", Column: "cia"},
		},
		DefaultOrder: []string{"number", "ordinal", "id"},
		Computed:     []string{"cia"},
		Nested: []NestedCollection{
			{Route: "positions", Child: "position", FKField: "housenumber"},
		},
		Join: &JoinTable{
			Field:         "districts",
			Table:         "housenumber_districts",
			OwnerColumn:   "housenumber_id",
			RelatedColumn: "district_id",
		},
	}

	// Position is a geocoded point attached to a house number.
	Position = &ResourceType{
		Name:  "position",
		Table: "positions",
		Schema: NewSchema(
			Field{Name: "center", Kind: KindPoint, Required: true},
			Field{Name: "source", Kind: KindChar, MaxLength: 64},
			Field{Name: "comment", Kind: KindText},
			Field{Name: "housenumber", Kind: KindForeignKey, Required: true, Ref: "housenumber"},
		),
		IdentifierKinds: map[string]string{"id": "id"},
		Filters: []FilterParam{
			{Param: "housenumber", Column: "housenumber_id"},
		},
		DefaultOrder: []string{"id"},
	}
)

// Resources lists every resource type served by the API.
func Resources() []*ResourceType {
	return []*ResourceType{Municipality, PostCode, District, Street, HouseNumber, Position}
}

// ResourceByName resolves a resource type from its name.
func ResourceByName(name string) (*ResourceType, bool) {
	for _, rt := range Resources() {
		if rt.Name == name {
			return rt, true
		}
	}
	return nil, false
}
