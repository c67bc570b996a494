package export

import (
	"fmt"
	"log"
	"net/http"

	"github.com/adresse-nationale/ban/internal/domain"
)

// Handler streams a resource collection as a CSV download.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt, ok := domain.ResourceByName(r.PathValue("resource"))
	if !ok {
		http.Error(w, "unknown resource", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rt.Name+".csv"))

	if err := h.service.WriteCSV(r.Context(), w, rt); err != nil {
		// Headers are already gone; all we can do is log and cut the stream.
		log.Printf("[export] failed to stream %s: %v", rt.Name, err)
	}
}
