package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/adresse-nationale/ban/internal/domain"
	"github.com/adresse-nationale/ban/internal/repository"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Renderer turns canonical records into response documents. At the top level
// foreign keys expand into the related resource's shallow rendering; inside
// an expanded resource they stay raw identifiers, so documents never nest
// more than one level deep.
type Renderer struct {
	repos repository.Repositories
}

func NewRenderer(repos repository.Repositories) *Renderer {
	return &Renderer{repos: repos}
}

// Render builds the response document for one record.
func (rd *Renderer) Render(ctx context.Context, rt *domain.ResourceType, rec domain.Record, expand bool) (map[string]any, error) {
	out := make(map[string]any, len(rec)+1)
	out["id"] = idString(rec["id"])
	out["version"] = rec["version"]

	for _, f := range rt.Schema.Fields() {
		value, ok := rec[f.Name]
		if !ok || value == nil {
			out[f.Name] = nil
			if f.Kind == domain.KindArray {
				out[f.Name] = []string{}
			}
			if f.Kind == domain.KindManyToMany {
				out[f.Name] = []any{}
			}
			continue
		}

		switch f.Kind {
		case domain.KindForeignKey:
			rendered, err := rd.renderRef(ctx, f, value, expand)
			if err != nil {
				return nil, err
			}
			out[f.Name] = rendered
		case domain.KindManyToMany:
			ids, _ := value.([]uuid.UUID)
			items := make([]any, 0, len(ids))
			for _, id := range ids {
				rendered, err := rd.renderRef(ctx, f, id, expand)
				if err != nil {
					return nil, err
				}
				items = append(items, rendered)
			}
			out[f.Name] = items
		default:
			out[f.Name] = value
		}
	}

	for _, col := range rt.Computed {
		out[col] = rec[col]
	}
	return out, nil
}

// renderRef renders a single reference: the raw identifier when shallow, the
// related resource's shallow document when expanding.
func (rd *Renderer) renderRef(ctx context.Context, f domain.Field, value any, expand bool) (any, error) {
	id, ok := value.(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("unexpected %s reference: %v", f.Ref, value)
	}
	if !expand || f.NoExpand {
		return id.String(), nil
	}

	repo, ok := rd.repos[f.Ref]
	if !ok {
		return id.String(), nil
	}
	related, err := repo.GetByIdentifier(ctx, domain.Identifier{Kind: "id", Value: id.String(), Column: "id"})
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s reference: %w", f.Ref, err)
	}
	return rd.Render(ctx, repo.Type(), related, false)
}

func idString(raw any) string {
	switch v := raw.(type) {
	case uuid.UUID:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", raw)
	}
}

// collectionDocument is the paginated collection envelope.
type collectionDocument struct {
	Collection []any   `json:"collection"`
	Total      int     `json:"total"`
	Next       *string `json:"next,omitempty"`
	Previous   *string `json:"previous,omitempty"`
}

// buildLink renders a canonical collection URL from the recognized filters
// and the offset, omitted when zero. The encoding is deterministic, so
// replaying a link reproduces its page byte for byte.
func buildLink(path string, filters []domain.Filter, offset int) string {
	values := url.Values{}
	for _, f := range filters {
		for _, v := range f.Values {
			values.Add(f.Param, v)
		}
	}
	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

// collectionLinks computes the next/previous links for a page.
func collectionLinks(path string, filters []domain.Filter, page domain.Page) (next, previous *string) {
	if page.HasNext() {
		link := buildLink(path, filters, page.Offset+domain.PageSize)
		next = &link
	}
	if page.HasPrevious() {
		offset := page.Offset - domain.PageSize
		if offset < 0 {
			offset = 0
		}
		link := buildLink(path, filters, offset)
		previous = &link
	}
	return next, previous
}
