package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/adresse-nationale/ban/internal/db"
	"github.com/adresse-nationale/ban/internal/domain"
)

// Repository is the versioned CRUD contract for one resource type. Writes
// enforce optimistic concurrency and maintain the append-only history; reads
// never mutate.
type Repository interface {
	Type() *domain.ResourceType

	// Create persists a new resource at version 1, ignoring any
	// client-supplied version, and writes the version-1 history snapshot.
	Create(ctx context.Context, fields domain.Record) (domain.Record, error)

	// GetByIdentifier fetches the current row by any supported identifier
	// kind, or fails with NotFoundError.
	GetByIdentifier(ctx context.Context, ident domain.Identifier) (domain.Record, error)

	// Update performs the atomic compare-and-write: it succeeds only while
	// the persisted version still equals expectedVersion, bumping the
	// version by exactly one and appending a history snapshot. A version
	// mismatch fails with ConflictError carrying the persisted state.
	Update(ctx context.Context, id uuid.UUID, fields domain.Record, expectedVersion int) (domain.Record, error)

	// Delete removes the current row. History snapshots are retained.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns one page of the filtered, deterministically ordered
	// collection along with the total match count.
	List(ctx context.Context, q domain.Query) (domain.Page, error)

	// GetVersion returns the history snapshot for one version, or fails
	// with NotFoundError. Versions are 1-based and contiguous.
	GetVersion(ctx context.Context, id uuid.UUID, version int) (domain.Record, error)

	// ListVersions returns all history snapshots oldest first.
	ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Record, error)
}

// Repositories indexes one repository per resource type name.
type Repositories map[string]Repository

// NewAll wires a repository for every resource type served by the API.
func NewAll(conn *db.Connection) Repositories {
	repos := make(Repositories)
	for _, rt := range domain.Resources() {
		repos[rt.Name] = New(conn, rt)
	}
	return repos
}
