package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adresse-nationale/ban/internal/db"
	"github.com/adresse-nationale/ban/internal/domain"
)

// queryer is the slice of pgx satisfied by both the pool and a transaction,
// so every read helper can run inside or outside a write transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// writeHook runs inside the write transaction before the row is persisted,
// e.g. to derive a house number's CIA from its street and municipality.
type writeHook func(ctx context.Context, q queryer, rec domain.Record) error

type store struct {
	conn       *db.Connection
	rt         *domain.ResourceType
	beforeSave writeHook
}

// New builds the repository for one resource type.
func New(conn *db.Connection, rt *domain.ResourceType) Repository {
	s := &store{conn: conn, rt: rt}
	if rt.Name == domain.HouseNumber.Name {
		s.beforeSave = computeHouseNumberCIA
	}
	return s
}

func (s *store) Type() *domain.ResourceType {
	return s.rt
}

func (s *store) Create(ctx context.Context, fields domain.Record) (domain.Record, error) {
	id := uuid.New()
	now := time.Now().UTC()
	rec := fields.Clone()

	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if s.beforeSave != nil {
			if err := s.beforeSave(ctx, tx, rec); err != nil {
				return err
			}
		}

		sql, err := buildInsertSQL(s.rt, id, rec, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql); err != nil {
			return s.translateError(err)
		}

		if err := s.saveRelated(ctx, tx, id, rec); err != nil {
			return err
		}
		return s.appendHistory(ctx, tx, id, 1, rec, now)
	})
	if err != nil {
		return nil, err
	}

	out := rec.Clone()
	out["id"] = id
	out["version"] = 1
	return out, nil
}

func (s *store) GetByIdentifier(ctx context.Context, ident domain.Identifier) (domain.Record, error) {
	return s.getByColumn(ctx, s.conn.Pool, ident.Column, ident.Value, ident.Kind+":"+ident.Value)
}

func (s *store) Update(ctx context.Context, id uuid.UUID, fields domain.Record, expectedVersion int) (domain.Record, error) {
	now := time.Now().UTC()
	rec := fields.Clone()

	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if s.beforeSave != nil {
			if err := s.beforeSave(ctx, tx, rec); err != nil {
				return err
			}
		}

		sql, err := buildUpdateSQL(s.rt, id, rec, expectedVersion, now)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, sql)
		if err != nil {
			return s.translateError(err)
		}
		if tag.RowsAffected() == 0 {
			// Either the row is gone or its version moved on. Read it back
			// to tell the two apart and report the persisted state.
			current, getErr := s.getByColumn(ctx, tx, "id", id.String(), id.String())
			if getErr != nil {
				return getErr
			}
			return &domain.ConflictError{
				Resource:        s.rt.Name,
				ExpectedVersion: expectedVersion,
				CurrentVersion:  recordVersion(current),
				Current:         current,
			}
		}

		if err := s.saveRelated(ctx, tx, id, rec); err != nil {
			return err
		}
		return s.appendHistory(ctx, tx, id, expectedVersion+1, rec, now)
	})
	if err != nil {
		return nil, err
	}

	out := rec.Clone()
	out["id"] = id
	out["version"] = expectedVersion + 1
	return out, nil
}

func (s *store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if s.rt.Join != nil {
			sql, err := buildJoinDeleteSQL(s.rt.Join, id)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, sql); err != nil {
				return s.translateError(err)
			}
		}

		sql, err := buildDeleteSQL(s.rt, id)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, sql)
		if err != nil {
			return s.translateError(err)
		}
		if tag.RowsAffected() == 0 {
			return &domain.NotFoundError{Resource: s.rt.Name, Ref: id.String()}
		}
		return nil
	})
}

func (s *store) List(ctx context.Context, q domain.Query) (domain.Page, error) {
	sql, err := buildListSQL(s.rt, q)
	if err != nil {
		return domain.Page{}, err
	}

	rows, err := s.conn.Pool.Query(ctx, sql)
	if err != nil {
		return domain.Page{}, fmt.Errorf("failed to list %s: %w", s.rt.Name, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return domain.Page{}, fmt.Errorf("failed to scan %s rows: %w", s.rt.Name, err)
	}

	total := 0
	items := make([]domain.Record, 0, len(maps))
	for _, m := range maps {
		if total == 0 {
			total = asInt(m["total_count"])
		}
		rec, err := s.decodeRow(m)
		if err != nil {
			return domain.Page{}, err
		}
		if err := s.loadRelated(ctx, s.conn.Pool, rec); err != nil {
			return domain.Page{}, err
		}
		items = append(items, rec)
	}

	if len(items) == 0 {
		// The window count rides on the rows, so an empty page past the end
		// still needs the real total.
		total, err = s.count(ctx, q)
		if err != nil {
			return domain.Page{}, err
		}
	}

	return domain.Page{Items: items, Total: total, Offset: q.Offset}, nil
}

func (s *store) count(ctx context.Context, q domain.Query) (int, error) {
	sql, err := buildCountSQL(s.rt, q)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := s.conn.Pool.QueryRow(ctx, sql).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.rt.Name, err)
	}
	return int(total), nil
}

func (s *store) GetVersion(ctx context.Context, id uuid.UUID, version int) (domain.Record, error) {
	sql, err := buildGetVersionSQL(s.rt, id, version)
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := s.conn.Pool.QueryRow(ctx, sql).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{
				Resource: s.rt.Name,
				Ref:      fmt.Sprintf("%s version %d", id, version),
			}
		}
		return nil, fmt.Errorf("failed to fetch %s version: %w", s.rt.Name, err)
	}
	return decodeSnapshot(data)
}

func (s *store) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Record, error) {
	sql, err := buildListVersionsSQL(s.rt, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s versions: %w", s.rt.Name, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s version: %w", s.rt.Name, err)
		}
		rec, err := decodeSnapshot(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s versions: %w", s.rt.Name, err)
	}
	return out, nil
}

// getByColumn fetches and decodes one current row, loading its ordered
// many-to-many relations.
func (s *store) getByColumn(ctx context.Context, q queryer, column, value, ref string) (domain.Record, error) {
	sql, err := buildGetSQL(s.rt, column, value)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.rt.Name, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s row: %w", s.rt.Name, err)
	}
	if len(maps) == 0 {
		return nil, &domain.NotFoundError{Resource: s.rt.Name, Ref: ref}
	}
	rec, err := s.decodeRow(maps[0])
	if err != nil {
		return nil, err
	}
	if err := s.loadRelated(ctx, q, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// saveRelated replaces the join table rows for the resource's many-to-many
// field, preserving the submitted order.
func (s *store) saveRelated(ctx context.Context, q queryer, id uuid.UUID, rec domain.Record) error {
	join := s.rt.Join
	if join == nil {
		return nil
	}
	related, ok := rec[join.Field].([]uuid.UUID)
	if !ok {
		return nil
	}

	sql, err := buildJoinDeleteSQL(join, id)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, sql); err != nil {
		return s.translateError(err)
	}
	if len(related) == 0 {
		return nil
	}

	sql, err = buildJoinInsertSQL(join, id, related)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, sql); err != nil {
		return s.translateError(err)
	}
	return nil
}

// loadRelated reads the join table rows back into the record, in stored order.
func (s *store) loadRelated(ctx context.Context, q queryer, rec domain.Record) error {
	join := s.rt.Join
	if join == nil {
		return nil
	}
	id, ok := rec["id"].(uuid.UUID)
	if !ok {
		return nil
	}

	sql, err := buildJoinSelectSQL(join, id)
	if err != nil {
		return err
	}
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return fmt.Errorf("failed to load %s relations: %w", s.rt.Name, err)
	}
	defer rows.Close()

	related := []uuid.UUID{}
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan %s relation: %w", s.rt.Name, err)
		}
		relID, ok := asUUID(raw)
		if !ok {
			return fmt.Errorf("failed to decode %s relation id: %v", s.rt.Name, raw)
		}
		related = append(related, relID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s relations: %w", s.rt.Name, err)
	}
	rec[join.Field] = related
	return nil
}

// appendHistory writes the immutable snapshot for a freshly persisted version.
func (s *store) appendHistory(ctx context.Context, q queryer, id uuid.UUID, version int, rec domain.Record, now time.Time) error {
	data, err := marshalSnapshot(s.rt, id, version, rec)
	if err != nil {
		return err
	}
	sql, err := buildHistoryInsertSQL(s.rt, id, version, data, now)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, sql); err != nil {
		return s.translateError(err)
	}
	return nil
}

// marshalSnapshot serializes the canonical record for the history table. The
// canonical value types all have natural JSON forms, uuids included.
func marshalSnapshot(rt *domain.ResourceType, id uuid.UUID, version int, rec domain.Record) ([]byte, error) {
	snap := make(map[string]any, len(rec)+2)
	snap["id"] = id
	snap["version"] = version
	for _, f := range rt.Schema.Fields() {
		value, ok := rec[f.Name]
		if !ok {
			value = nil
		}
		snap[f.Name] = value
	}
	for _, col := range rt.Computed {
		if value, ok := rec[col]; ok {
			snap[col] = value
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s snapshot: %w", rt.Name, err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode history snapshot: %w", err)
	}
	if v, ok := rec["version"].(float64); ok {
		rec["version"] = int(v)
	}
	return rec, nil
}

// decodeRow turns a scanned row map into a canonical record.
func (s *store) decodeRow(m map[string]any) (domain.Record, error) {
	rec := make(domain.Record, len(m))

	id, ok := asUUID(m["id"])
	if !ok {
		return nil, fmt.Errorf("failed to decode %s id: %v", s.rt.Name, m["id"])
	}
	rec["id"] = id
	rec["version"] = asInt(m["version"])

	for _, f := range s.rt.Schema.Fields() {
		if f.Kind == domain.KindManyToMany {
			continue
		}
		raw, present := m[f.Column()]
		if !present || raw == nil {
			rec[f.Name] = nil
			continue
		}
		value, err := decodeColumn(f, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s.%s: %w", s.rt.Name, f.Name, err)
		}
		rec[f.Name] = value
	}

	for _, col := range s.rt.Computed {
		if raw, present := m[col]; present && raw != nil {
			rec[col] = raw
		}
	}
	return rec, nil
}

func decodeColumn(f domain.Field, raw any) (any, error) {
	switch f.Kind {
	case domain.KindPoint:
		return decodeGeoJSONPoint(raw)
	case domain.KindArray:
		return decodeStringArray(raw)
	case domain.KindForeignKey:
		id, ok := asUUID(raw)
		if !ok {
			return nil, fmt.Errorf("not a uuid: %v", raw)
		}
		return id, nil
	case domain.KindInteger:
		return int64(asInt(raw)), nil
	default:
		return raw, nil
	}
}

// decodeGeoJSONPoint parses the ST_AsGeoJSON rendering of a geometry column.
func decodeGeoJSONPoint(raw any) (*domain.Point, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("unexpected geometry value: %v", raw)
	}
	var geo struct {
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &geo); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	if len(geo.Coordinates) < 2 {
		return nil, fmt.Errorf("GeoJSON point has %d coordinates", len(geo.Coordinates))
	}
	return &domain.Point{Lon: geo.Coordinates[0], Lat: geo.Coordinates[1]}, nil
}

// decodeStringArray parses a jsonb-backed string list column.
func decodeStringArray(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []byte:
		var out []string
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("invalid jsonb array: %w", err)
		}
		return out, nil
	case string:
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("invalid jsonb array: %w", err)
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("non-string array item: %v", item)
			}
			out = append(out, str)
		}
		return out, nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("unexpected array value: %v", raw)
	}
}

func asUUID(raw any) (uuid.UUID, bool) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, true
	case [16]byte:
		return uuid.UUID(v), true
	case []byte:
		id, err := uuid.FromBytes(v)
		if err != nil {
			id, err = uuid.Parse(string(v))
		}
		return id, err == nil
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	default:
		return uuid.UUID{}, false
	}
}

func asInt(raw any) int {
	switch v := raw.(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func recordVersion(rec domain.Record) int {
	return asInt(rec["version"])
}

// computeHouseNumberCIA derives the composite identifier from the street's
// FANTOIR and its municipality's INSEE code before a house number is written.
func computeHouseNumberCIA(ctx context.Context, q queryer, rec domain.Record) error {
	streetID, ok := rec["street"].(uuid.UUID)
	if !ok {
		return nil
	}

	sql, _, err := dialect.From("streets").
		Select(goqu.C("fantoir").Table("streets"), goqu.C("insee").Table("municipalities")).
		Join(goqu.T("municipalities"), goqu.On(
			goqu.C("id").Table("municipalities").Eq(goqu.C("municipality_id").Table("streets")),
		)).
		Where(goqu.C("id").Table("streets").Eq(streetID.String())).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build street lookup: %w", err)
	}

	rows, err := q.Query(ctx, sql)
	if err != nil {
		return fmt.Errorf("failed to resolve street: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		ve := domain.NewValidationError()
		ve.Addf("street", "unknown street: %s", streetID)
		return ve
	}
	var fantoir, insee any
	if err := rows.Scan(&fantoir, &insee); err != nil {
		return fmt.Errorf("failed to scan street: %w", err)
	}
	rows.Close()

	number, _ := rec["number"].(string)
	ordinal, _ := rec["ordinal"].(string)
	rec["cia"] = domain.ComputeCIA(asString(insee), asString(fantoir), number, ordinal)
	return nil
}

func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// translateError maps constraint violations onto field-level validation
// failures so unique and referential breaches surface like any other invalid
// input.
func (s *store) translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("failed to write %s: %w", s.rt.Name, err)
	}

	switch pgErr.Code {
	case "23505":
		ve := domain.NewValidationError()
		ve.Addf(constraintField(s.rt, pgErr.ConstraintName), "already exists")
		return ve
	case "23503":
		ve := domain.NewValidationError()
		ve.Addf(constraintField(s.rt, pgErr.ConstraintName), "invalid reference")
		return ve
	default:
		return fmt.Errorf("failed to write %s: %w", s.rt.Name, err)
	}
}

// constraintField recovers the field name from a conventionally named
// constraint, e.g. municipalities_insee_key or postcodes_municipality_id_fkey.
func constraintField(rt *domain.ResourceType, constraint string) string {
	name := strings.TrimPrefix(constraint, rt.Table+"_")
	for _, suffix := range []string{"_key", "_fkey", "_pkey", "_check"} {
		name = strings.TrimSuffix(name, suffix)
	}
	name = strings.TrimSuffix(name, "_id")
	if name == "" {
		return "__all__"
	}
	if _, ok := rt.Schema.Field(name); ok {
		return name
	}
	for _, col := range rt.Computed {
		if col == name {
			return name
		}
	}
	return "__all__"
}
