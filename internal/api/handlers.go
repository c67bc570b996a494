package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/adresse-nationale/ban/internal/domain"
	"github.com/adresse-nationale/ban/internal/repository"
)

// resourceHandler serves the REST surface of one resource type: the
// collection, the item routes, the version history and the nested
// collections.
type resourceHandler struct {
	rt       *domain.ResourceType
	repo     repository.Repository
	repos    repository.Repositories
	renderer *Renderer
}

func newResourceHandler(rt *domain.ResourceType, repos repository.Repositories, renderer *Renderer) *resourceHandler {
	return &resourceHandler{rt: rt, repo: repos[rt.Name], repos: repos, renderer: renderer}
}

// parseBody reads a JSON or form-encoded request body into a flat map. Form
// parameters repeated more than once become lists.
func parseBody(r *http.Request) (map[string]any, error) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/x-www-form-urlencoded") || strings.Contains(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, &domain.MalformedRequestError{Message: "invalid form body"}
		}
		payload := make(map[string]any, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) == 1 {
				payload[key] = values[0]
				continue
			}
			items := make([]any, len(values))
			for i, v := range values {
				items[i] = v
			}
			payload[key] = items
		}
		return payload, nil
	}

	payload := map[string]any{}
	if err := jsonAPI.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, &domain.MalformedRequestError{Message: "invalid JSON body"}
	}
	return payload, nil
}

// expectedVersion extracts the client's view of the persisted version from an
// update payload.
func expectedVersion(payload map[string]any) (int, *domain.ValidationError) {
	raw, ok := payload["version"]
	if !ok || raw == nil {
		ve := domain.NewValidationError()
		ve.Add("version", "this field is required")
		return 0, ve
	}
	switch v := raw.(type) {
	case float64:
		if math.Mod(v, 1) != 0 {
			ve := domain.NewValidationError()
			ve.Addf("version", "not an integer: %v", v)
			return 0, ve
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			ve := domain.NewValidationError()
			ve.Addf("version", "not an integer: %q", v)
			return 0, ve
		}
		return i, nil
	default:
		ve := domain.NewValidationError()
		ve.Addf("version", "not an integer: %v", raw)
		return 0, ve
	}
}

// resolve fetches the current record behind a path reference.
func (h *resourceHandler) resolve(r *http.Request, ref string) (domain.Record, error) {
	ident, err := h.rt.ParseIdentifier(ref)
	if err != nil {
		return nil, err
	}
	return h.repo.GetByIdentifier(r.Context(), ident)
}

func (h *resourceHandler) create(w http.ResponseWriter, r *http.Request) {
	payload, err := parseBody(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	rec, ve := h.rt.Schema.Clean(payload)
	if ve != nil {
		h.writeError(r.Context(), w, ve)
		return
	}

	created, err := h.repo.Create(r.Context(), rec)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	doc, err := h.renderer.Render(r.Context(), h.rt, created, true)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/"+h.rt.Name+"/"+idString(created["id"]))
	writeJSON(w, http.StatusCreated, doc)
}

func (h *resourceHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.resolve(r, r.PathValue("ref"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	doc, err := h.renderer.Render(r.Context(), h.rt, rec, true)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// replace is the PUT handler: the payload is the complete new state, so
// optional fields left out are reset.
func (h *resourceHandler) replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// patch is the POST-on-item handler: fields left out of the payload keep
// their current values, but required fields must still be supplied.
func (h *resourceHandler) patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *resourceHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	current, err := h.resolve(r, r.PathValue("ref"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	id, ok := current["id"].(uuid.UUID)
	if !ok {
		h.writeError(r.Context(), w, &domain.MalformedRequestError{Message: "unresolvable resource id"})
		return
	}

	payload, err := parseBody(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	expected, ve := expectedVersion(payload)
	if ve != nil {
		h.writeError(r.Context(), w, ve)
		return
	}

	input := payload
	if partial {
		if ve := h.requireAllPresent(payload); ve != nil {
			h.writeError(r.Context(), w, ve)
			return
		}
		input = mergeInput(h.rt, current, payload)
	}

	rec, ve := h.rt.Schema.Clean(input)
	if ve != nil {
		h.writeError(r.Context(), w, ve)
		return
	}

	updated, err := h.repo.Update(r.Context(), id, rec, expected)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	doc, err := h.renderer.Render(r.Context(), h.rt, updated, true)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// requireAllPresent checks that a partial payload still carries every
// required field.
func (h *resourceHandler) requireAllPresent(payload map[string]any) *domain.ValidationError {
	ve := domain.NewValidationError()
	for _, f := range h.rt.Schema.Fields() {
		if !f.Required {
			continue
		}
		if _, ok := payload[f.Name]; !ok {
			ve.Add(f.Name, "this field is required")
		}
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// mergeInput overlays a partial payload on the current canonical state. The
// canonical values round-trip through coercion unchanged.
func mergeInput(rt *domain.ResourceType, current domain.Record, payload map[string]any) map[string]any {
	input := make(map[string]any, len(current)+len(payload))
	for _, f := range rt.Schema.Fields() {
		if value, ok := current[f.Name]; ok && value != nil {
			input[f.Name] = value
		}
	}
	for key, value := range payload {
		input[key] = value
	}
	return input
}

func (h *resourceHandler) delete(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolve(r, r.PathValue("ref"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	id, _ := current["id"].(uuid.UUID)
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseQuery translates the URL parameters into a collection query.
func parseQuery(rt *domain.ResourceType, params map[string][]string) (domain.Query, error) {
	q := domain.Query{Filters: domain.ParseFilters(rt, params)}
	if raw, ok := params["offset"]; ok && len(raw) > 0 && raw[0] != "" {
		offset, err := strconv.Atoi(raw[0])
		if err != nil || offset < 0 {
			return domain.Query{}, &domain.MalformedRequestError{Message: "invalid offset"}
		}
		q.Offset = offset
	}
	return q, nil
}

func (h *resourceHandler) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(h.rt, r.URL.Query())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	page, err := h.repo.List(r.Context(), q)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writePage(w, r, r.URL.Path, q.Filters, page)
}

// writePage renders a page into the collection envelope with its links.
func (h *resourceHandler) writePage(w http.ResponseWriter, r *http.Request, path string, linkFilters []domain.Filter, page domain.Page) {
	items := make([]any, 0, len(page.Items))
	for _, rec := range page.Items {
		doc, err := h.renderer.Render(r.Context(), h.rt, rec, true)
		if err != nil {
			h.writeError(r.Context(), w, err)
			return
		}
		items = append(items, doc)
	}

	next, previous := collectionLinks(path, linkFilters, page)
	writeJSON(w, http.StatusOK, collectionDocument{
		Collection: items,
		Total:      page.Total,
		Next:       next,
		Previous:   previous,
	})
}

func (h *resourceHandler) listVersions(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolve(r, r.PathValue("ref"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	id, _ := current["id"].(uuid.UUID)

	versions, err := h.repo.ListVersions(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	items := make([]any, 0, len(versions))
	for _, rec := range versions {
		items = append(items, map[string]any(rec))
	}
	writeJSON(w, http.StatusOK, collectionDocument{Collection: items, Total: len(items)})
}

func (h *resourceHandler) getVersion(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolve(r, r.PathValue("ref"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	id, _ := current["id"].(uuid.UUID)

	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		h.writeError(r.Context(), w, &domain.MalformedRequestError{Message: "invalid version number"})
		return
	}

	rec, err := h.repo.GetVersion(r.Context(), id, version)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any(rec))
}

// nested serves a child collection scoped under a parent item, e.g. the
// streets of one municipality. The parent link is forced as a filter and
// never appears in the pagination links.
func (h *resourceHandler) nested(nc domain.NestedCollection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parent, err := h.resolve(r, r.PathValue("ref"))
		if err != nil {
			h.writeError(r.Context(), w, err)
			return
		}
		parentID, _ := parent["id"].(uuid.UUID)

		childRT, ok := domain.ResourceByName(nc.Child)
		if !ok {
			h.writeError(r.Context(), w, &domain.MalformedRequestError{Message: "unknown collection"})
			return
		}
		child := newResourceHandler(childRT, h.repos, h.renderer)

		q, err := parseQuery(childRT, r.URL.Query())
		if err != nil {
			child.writeError(r.Context(), w, err)
			return
		}

		// An explicit parent filter in the query string would fight the
		// path scope. The path wins.
		linkFilters := make([]domain.Filter, 0, len(q.Filters))
		for _, f := range q.Filters {
			if f.Param != nc.FKField {
				linkFilters = append(linkFilters, f)
			}
		}
		column, _ := childRT.FilterColumn(nc.FKField)
		q.Filters = append(linkFilters, domain.Filter{
			Param:  nc.FKField,
			Column: column,
			Values: []string{parentID.String()},
		})

		page, err := child.repo.List(r.Context(), q)
		if err != nil {
			child.writeError(r.Context(), w, err)
			return
		}
		child.writePage(w, r, r.URL.Path, linkFilters, page)
	}
}
