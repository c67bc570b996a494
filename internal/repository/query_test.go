package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adresse-nationale/ban/internal/domain"
)

func TestBuildListSQLDefaultOrdering(t *testing.T) {
	sql, err := buildListSQL(domain.PostCode, domain.Query{})
	require.NoError(t, err)

	assert.Contains(t, sql, `FROM "postcodes"`)
	assert.Contains(t, sql, `count(*) OVER () AS "total_count"`)
	assert.Contains(t, sql, `ORDER BY "code" ASC, "municipality_id" ASC, "id" ASC`)
	assert.Contains(t, sql, `LIMIT 20`)
	assert.NotContains(t, sql, "OFFSET")
}

func TestBuildListSQLOffset(t *testing.T) {
	sql, err := buildListSQL(domain.Municipality, domain.Query{Offset: 40})
	require.NoError(t, err)

	assert.Contains(t, sql, `LIMIT 20 OFFSET 40`)
}

func TestBuildListSQLSingleValueFilter(t *testing.T) {
	q := domain.Query{Filters: []domain.Filter{
		{Param: "code", Column: "code", Values: []string{"31310"}},
	}}
	sql, err := buildListSQL(domain.PostCode, q)
	require.NoError(t, err)

	assert.Contains(t, sql, `"code" = '31310'`)
	assert.NotContains(t, sql, "array_position")
}

func TestBuildListSQLMultiValueFilterOrdersByValue(t *testing.T) {
	q := domain.Query{Filters: []domain.Filter{
		{Param: "code", Column: "code", Values: []string{"31310", "09350"}},
	}}
	sql, err := buildListSQL(domain.PostCode, q)
	require.NoError(t, err)

	assert.Contains(t, sql, `"code" IN ('31310', '09350')`)
	assert.Contains(t, sql, `array_position(ARRAY['31310', '09350']::text[], code::text)`)
}

func TestBuildListSQLGeometryAsGeoJSON(t *testing.T) {
	sql, err := buildListSQL(domain.Position, domain.Query{})
	require.NoError(t, err)

	assert.Contains(t, sql, `ST_AsGeoJSON(center) AS "center"`)
}

func TestBuildListSQLSkipsManyToManyColumns(t *testing.T) {
	sql, err := buildListSQL(domain.HouseNumber, domain.Query{})
	require.NoError(t, err)

	assert.NotContains(t, sql, "districts")
	assert.Contains(t, sql, `"cia"`)
}

func TestBuildGetSQL(t *testing.T) {
	sql, err := buildGetSQL(domain.Municipality, "insee", "34120")
	require.NoError(t, err)

	assert.Contains(t, sql, `"insee" = '34120'`)
	assert.Contains(t, sql, `LIMIT 1`)
}

func TestBuildInsertSQLForcesVersionOne(t *testing.T) {
	id := uuid.MustParse("1d0b6a66-6c5c-44f8-9bb3-3b87a0d9f2a1")
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.Record{"name": "Montbrun-Bocage", "insee": "31365"}

	sql, err := buildInsertSQL(domain.Municipality, id, rec, now)
	require.NoError(t, err)

	assert.Contains(t, sql, `INSERT INTO "municipalities"`)
	assert.Contains(t, sql, `'1d0b6a66-6c5c-44f8-9bb3-3b87a0d9f2a1'`)
	assert.Contains(t, sql, `'Montbrun-Bocage'`)
	assert.Contains(t, sql, `"version"`)
	assert.Contains(t, sql, `1`)
}

func TestBuildInsertSQLEncodesPoint(t *testing.T) {
	id := uuid.New()
	rec := domain.Record{
		"center":      &domain.Point{Lon: 3.25, Lat: 48.2},
		"housenumber": uuid.MustParse("6e2f9b4c-7a1d-4e8f-a6c3-0d5b8e7f1a2b"),
	}

	sql, err := buildInsertSQL(domain.Position, id, rec, time.Now().UTC())
	require.NoError(t, err)

	assert.Contains(t, sql, `ST_SetSRID(ST_MakePoint(3.25, 48.2), 4326)`)
	assert.Contains(t, sql, `'6e2f9b4c-7a1d-4e8f-a6c3-0d5b8e7f1a2b'`)
}

func TestBuildUpdateSQLComparesAndBumpsVersion(t *testing.T) {
	id := uuid.MustParse("1d0b6a66-6c5c-44f8-9bb3-3b87a0d9f2a1")
	rec := domain.Record{"name": "Fornex", "insee": "09123"}

	sql, err := buildUpdateSQL(domain.Municipality, id, rec, 2, time.Now().UTC())
	require.NoError(t, err)

	assert.Contains(t, sql, `UPDATE "municipalities"`)
	assert.Contains(t, sql, `"version"=3`)
	assert.Contains(t, sql, `("version" = 2)`)
	assert.Contains(t, sql, `("id" = '1d0b6a66-6c5c-44f8-9bb3-3b87a0d9f2a1')`)
}

func TestBuildUpdateSQLNullsAbsentOptionalFields(t *testing.T) {
	id := uuid.New()
	rec := domain.Record{"name": "Fornex", "insee": "09123"}

	sql, err := buildUpdateSQL(domain.Municipality, id, rec, 1, time.Now().UTC())
	require.NoError(t, err)

	assert.Contains(t, sql, `"siren"=NULL`)
}

func TestBuildHistoryInsertSQL(t *testing.T) {
	id := uuid.MustParse("1d0b6a66-6c5c-44f8-9bb3-3b87a0d9f2a1")
	data := []byte(`{"id":"1d0b6a66-6c5c-44f8-9bb3-3b87a0d9f2a1","version":2}`)

	sql, err := buildHistoryInsertSQL(domain.Municipality, id, 2, data, time.Now().UTC())
	require.NoError(t, err)

	assert.Contains(t, sql, `INSERT INTO "resource_history"`)
	assert.Contains(t, sql, `'municipality'`)
	assert.Contains(t, sql, `::jsonb`)
}

func TestBuildListVersionsSQLOldestFirst(t *testing.T) {
	id := uuid.New()
	sql, err := buildListVersionsSQL(domain.Street, id)
	require.NoError(t, err)

	assert.Contains(t, sql, `"resource" = 'street'`)
	assert.Contains(t, sql, `ORDER BY "version" ASC`)
}

func TestBuildJoinInsertSQLKeepsOrder(t *testing.T) {
	owner := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	related := []uuid.UUID{
		uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002"),
		uuid.MustParse("cccccccc-0000-0000-0000-000000000003"),
	}

	sql, err := buildJoinInsertSQL(domain.HouseNumber.Join, owner, related)
	require.NoError(t, err)

	assert.Contains(t, sql, `INSERT INTO "housenumber_districts"`)
	i := strings.Index(sql, "bbbbbbbb")
	j := strings.Index(sql, "cccccccc")
	require.GreaterOrEqual(t, i, 0)
	require.GreaterOrEqual(t, j, 0)
	assert.Less(t, i, j)
}
