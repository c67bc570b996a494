package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/adresse-nationale/ban/internal/domain"
	"github.com/adresse-nationale/ban/internal/repository"
)

// fakeRepo is an in-memory Repository with the same versioning semantics as
// the database-backed store, so handlers can be exercised without Postgres.
type fakeRepo struct {
	rt      *domain.ResourceType
	records map[uuid.UUID]domain.Record
	history map[uuid.UUID][]domain.Record
	order   []uuid.UUID
}

func newFakeRepos() repository.Repositories {
	repos := make(repository.Repositories)
	for _, rt := range domain.Resources() {
		repos[rt.Name] = &fakeRepo{
			rt:      rt,
			records: map[uuid.UUID]domain.Record{},
			history: map[uuid.UUID][]domain.Record{},
		}
	}
	return repos
}

func (f *fakeRepo) Type() *domain.ResourceType {
	return f.rt
}

func (f *fakeRepo) Create(_ context.Context, fields domain.Record) (domain.Record, error) {
	id := uuid.New()
	rec := fields.Clone()
	rec["id"] = id
	rec["version"] = 1
	f.records[id] = rec
	f.order = append(f.order, id)
	f.history[id] = append(f.history[id], rec.Clone())
	return rec.Clone(), nil
}

func (f *fakeRepo) GetByIdentifier(_ context.Context, ident domain.Identifier) (domain.Record, error) {
	if ident.Kind == "id" {
		id, err := uuid.Parse(ident.Value)
		if err == nil {
			if rec, ok := f.records[id]; ok {
				return rec.Clone(), nil
			}
		}
		return nil, &domain.NotFoundError{Resource: f.rt.Name, Ref: ident.Value}
	}

	for _, id := range f.order {
		rec := f.records[id]
		if matchValue(columnValue(f.rt, rec, ident.Column), ident.Value) {
			return rec.Clone(), nil
		}
	}
	return nil, &domain.NotFoundError{Resource: f.rt.Name, Ref: ident.Kind + ":" + ident.Value}
}

func (f *fakeRepo) Update(_ context.Context, id uuid.UUID, fields domain.Record, expectedVersion int) (domain.Record, error) {
	current, ok := f.records[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: f.rt.Name, Ref: id.String()}
	}
	currentVersion, _ := current["version"].(int)
	if currentVersion != expectedVersion {
		return nil, &domain.ConflictError{
			Resource:        f.rt.Name,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  currentVersion,
			Current:         current.Clone(),
		}
	}

	rec := fields.Clone()
	rec["id"] = id
	rec["version"] = expectedVersion + 1
	for _, field := range f.rt.Schema.Fields() {
		if _, ok := rec[field.Name]; !ok {
			rec[field.Name] = nil
		}
	}
	f.records[id] = rec
	f.history[id] = append(f.history[id], rec.Clone())
	return rec.Clone(), nil
}

func (f *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return &domain.NotFoundError{Resource: f.rt.Name, Ref: id.String()}
	}
	delete(f.records, id)
	for i, other := range f.order {
		if other == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRepo) List(_ context.Context, q domain.Query) (domain.Page, error) {
	var matched []domain.Record
	for _, id := range f.order {
		rec := f.records[id]
		if f.matches(rec, q.Filters) {
			matched = append(matched, rec.Clone())
		}
	}

	total := len(matched)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + domain.PageSize
	if end > total {
		end = total
	}
	return domain.Page{Items: matched[start:end], Total: total, Offset: q.Offset}, nil
}

func (f *fakeRepo) GetVersion(_ context.Context, id uuid.UUID, version int) (domain.Record, error) {
	for _, rec := range f.history[id] {
		if v, _ := rec["version"].(int); v == version {
			return rec.Clone(), nil
		}
	}
	return nil, &domain.NotFoundError{
		Resource: f.rt.Name,
		Ref:      fmt.Sprintf("%s version %d", id, version),
	}
}

func (f *fakeRepo) ListVersions(_ context.Context, id uuid.UUID) ([]domain.Record, error) {
	out := make([]domain.Record, 0, len(f.history[id]))
	for _, rec := range f.history[id] {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (f *fakeRepo) matches(rec domain.Record, filters []domain.Filter) bool {
	for _, filter := range filters {
		value := columnValue(f.rt, rec, filter.Column)
		found := false
		for _, want := range filter.Values {
			if matchValue(value, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func columnValue(rt *domain.ResourceType, rec domain.Record, column string) any {
	for _, f := range rt.Schema.Fields() {
		if f.Column() == column {
			return rec[f.Name]
		}
	}
	return rec[column]
}

func matchValue(value any, want string) bool {
	switch v := value.(type) {
	case uuid.UUID:
		return v.String() == want
	case string:
		return v == want
	case nil:
		return false
	default:
		return fmt.Sprintf("%v", v) == want
	}
}
