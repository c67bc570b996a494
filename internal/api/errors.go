package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/adresse-nationale/ban/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonAPI.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps a domain failure onto its status code and body. A version
// conflict answers with the persisted resource so the client can re-read and
// retry without another round trip.
func (h *resourceHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var malformed *domain.MalformedRequestError
	var notFound *domain.NotFoundError
	var conflict *domain.ConflictError
	var validation *domain.ValidationError

	switch {
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": malformed.Message})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &conflict):
		doc, renderErr := h.renderer.Render(ctx, h.rt, conflict.Current, true)
		if renderErr != nil {
			log.Printf("Failed to render conflict body: %v", renderErr)
			writeJSON(w, http.StatusConflict, map[string]string{"error": conflict.Error()})
			return
		}
		writeJSON(w, http.StatusConflict, doc)
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, validation)
	default:
		log.Printf("Internal error on %s: %v", h.rt.Name, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
