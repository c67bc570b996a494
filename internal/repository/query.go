package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // postgres dialect
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/adresse-nationale/ban/internal/domain"
)

const historyTable = "resource_history"

var dialect = goqu.Dialect("postgres")

// selectColumns builds the deterministic select list for a resource type:
// id, version, the schema columns (geometry rendered as GeoJSON so it scans
// into a plain string), computed columns, then timestamps. Many-to-many
// fields live in the join table and are loaded separately.
func selectColumns(rt *domain.ResourceType) []any {
	cols := []any{goqu.C("id"), goqu.C("version")}
	for _, f := range rt.Schema.Fields() {
		switch f.Kind {
		case domain.KindManyToMany:
			continue
		case domain.KindPoint:
			cols = append(cols, goqu.L(fmt.Sprintf("ST_AsGeoJSON(%s)", f.Column())).As(f.Column()))
		default:
			cols = append(cols, goqu.C(f.Column()))
		}
	}
	for _, col := range rt.Computed {
		cols = append(cols, goqu.C(col))
	}
	cols = append(cols, goqu.C("created_at"), goqu.C("updated_at"))
	return cols
}

// buildListSQL translates a collection query into one SQL statement carrying
// the page and the total match count. Multi-valued filters order their
// matches by the first-seen filter value ahead of the default ordering.
func buildListSQL(rt *domain.ResourceType, q domain.Query) (string, error) {
	cols := append(selectColumns(rt), goqu.L("count(*) OVER ()").As("total_count"))
	ds := dialect.From(rt.Table).Select(cols...)

	for _, f := range q.Filters {
		if len(f.Values) == 1 {
			ds = ds.Where(goqu.C(f.Column).Eq(f.Values[0]))
		} else {
			ds = ds.Where(goqu.C(f.Column).In(f.Values))
		}
	}

	var order []exp.OrderedExpression
	for _, f := range q.Filters {
		if len(f.Values) > 1 {
			order = append(order, valuePositionExpr(f.Column, f.Values))
		}
	}
	for _, col := range rt.DefaultOrder {
		order = append(order, goqu.C(col).Asc())
	}
	ds = ds.Order(order...).Limit(uint(domain.PageSize)).Offset(uint(q.Offset))

	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build list query: %w", err)
	}
	return sql, nil
}

// valuePositionExpr orders rows by the position of the column's value within
// the filter's first-seen value list.
func valuePositionExpr(column string, values []string) exp.OrderedExpression {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return goqu.L(
		fmt.Sprintf("array_position(ARRAY[%s]::text[], %s::text)", placeholders, column),
		args...,
	).Asc()
}

// buildCountSQL counts all rows matching the query's filters.
func buildCountSQL(rt *domain.ResourceType, q domain.Query) (string, error) {
	ds := dialect.From(rt.Table).Select(goqu.COUNT(goqu.Star()))
	for _, f := range q.Filters {
		if len(f.Values) == 1 {
			ds = ds.Where(goqu.C(f.Column).Eq(f.Values[0]))
		} else {
			ds = ds.Where(goqu.C(f.Column).In(f.Values))
		}
	}
	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build count query: %w", err)
	}
	return sql, nil
}

// buildGetSQL fetches one row by an identifier column.
func buildGetSQL(rt *domain.ResourceType, column, value string) (string, error) {
	ds := dialect.From(rt.Table).
		Select(selectColumns(rt)...).
		Where(goqu.C(column).Eq(value)).
		Limit(1)
	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build get query: %w", err)
	}
	return sql, nil
}

// encodeValue maps a canonical field value onto its SQL representation.
func encodeValue(f domain.Field, value any) any {
	if value == nil {
		return nil
	}
	switch f.Kind {
	case domain.KindPoint:
		p := value.(*domain.Point)
		return goqu.L("ST_SetSRID(ST_MakePoint(?, ?), ?)", p.Lon, p.Lat, domain.SRID)
	case domain.KindArray:
		data, _ := json.Marshal(value)
		return goqu.L("?::jsonb", string(data))
	case domain.KindDateRange:
		r := value.(domain.DateRange)
		return goqu.L("tstzrange(?, ?, '[)')", r.Start, r.End)
	case domain.KindForeignKey:
		return value.(uuid.UUID).String()
	default:
		return value
	}
}

func rowRecord(rt *domain.ResourceType, rec domain.Record) goqu.Record {
	row := goqu.Record{}
	for _, f := range rt.Schema.Fields() {
		if f.Kind == domain.KindManyToMany {
			continue
		}
		value, ok := rec[f.Name]
		if !ok {
			value = nil
		}
		row[f.Column()] = encodeValue(f, value)
	}
	for _, col := range rt.Computed {
		if value, ok := rec[col]; ok {
			row[col] = value
		}
	}
	return row
}

// buildInsertSQL inserts a new current row at version 1.
func buildInsertSQL(rt *domain.ResourceType, id uuid.UUID, rec domain.Record, now time.Time) (string, error) {
	row := rowRecord(rt, rec)
	row["id"] = id.String()
	row["version"] = 1
	row["created_at"] = now
	row["updated_at"] = now

	sql, _, err := dialect.Insert(rt.Table).Rows(row).ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build insert query: %w", err)
	}
	return sql, nil
}

// buildUpdateSQL builds the conditional compare-and-write statement: the row
// is only touched when its persisted version still equals expectedVersion.
func buildUpdateSQL(rt *domain.ResourceType, id uuid.UUID, rec domain.Record, expectedVersion int, now time.Time) (string, error) {
	row := rowRecord(rt, rec)
	row["version"] = expectedVersion + 1
	row["updated_at"] = now

	ds := dialect.Update(rt.Table).Set(row).Where(
		goqu.C("id").Eq(id.String()),
		goqu.C("version").Eq(expectedVersion),
	)
	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build update query: %w", err)
	}
	return sql, nil
}

func buildDeleteSQL(rt *domain.ResourceType, id uuid.UUID) (string, error) {
	sql, _, err := dialect.Delete(rt.Table).Where(goqu.C("id").Eq(id.String())).ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build delete query: %w", err)
	}
	return sql, nil
}

// buildHistoryInsertSQL appends one immutable snapshot keyed by
// (resource id, version).
func buildHistoryInsertSQL(rt *domain.ResourceType, id uuid.UUID, version int, data []byte, now time.Time) (string, error) {
	row := goqu.Record{
		"resource_id": id.String(),
		"resource":    rt.Name,
		"version":     version,
		"data":        goqu.L("?::jsonb", string(data)),
		"created_at":  now,
	}
	sql, _, err := dialect.Insert(historyTable).Rows(row).ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build history insert: %w", err)
	}
	return sql, nil
}

func buildGetVersionSQL(rt *domain.ResourceType, id uuid.UUID, version int) (string, error) {
	ds := dialect.From(historyTable).Select(goqu.C("data")).Where(
		goqu.C("resource").Eq(rt.Name),
		goqu.C("resource_id").Eq(id.String()),
		goqu.C("version").Eq(version),
	)
	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build version query: %w", err)
	}
	return sql, nil
}

// buildListVersionsSQL lists snapshots oldest first.
func buildListVersionsSQL(rt *domain.ResourceType, id uuid.UUID) (string, error) {
	ds := dialect.From(historyTable).Select(goqu.C("data")).Where(
		goqu.C("resource").Eq(rt.Name),
		goqu.C("resource_id").Eq(id.String()),
	).Order(goqu.C("version").Asc())
	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build versions query: %w", err)
	}
	return sql, nil
}

func buildJoinDeleteSQL(join *domain.JoinTable, owner uuid.UUID) (string, error) {
	sql, _, err := dialect.Delete(join.Table).
		Where(goqu.C(join.OwnerColumn).Eq(owner.String())).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build join delete: %w", err)
	}
	return sql, nil
}

func buildJoinInsertSQL(join *domain.JoinTable, owner uuid.UUID, related []uuid.UUID) (string, error) {
	rows := make([]any, 0, len(related))
	for i, id := range related {
		rows = append(rows, goqu.Record{
			join.OwnerColumn:   owner.String(),
			join.RelatedColumn: id.String(),
			"position":         i,
		})
	}
	sql, _, err := dialect.Insert(join.Table).Rows(rows...).ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build join insert: %w", err)
	}
	return sql, nil
}

// buildJoinSelectSQL reads the related ids back in their stored order.
func buildJoinSelectSQL(join *domain.JoinTable, owner uuid.UUID) (string, error) {
	ds := dialect.From(join.Table).
		Select(goqu.C(join.RelatedColumn)).
		Where(goqu.C(join.OwnerColumn).Eq(owner.String())).
		Order(goqu.C("position").Asc())
	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build join select: %w", err)
	}
	return sql, nil
}
