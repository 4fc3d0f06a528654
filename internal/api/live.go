package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetWatchStatus reports how many live watch subscribers a catalog
// currently has, the administrative counterpart to the teacher's
// handleLiveQueries registry snapshot endpoint.
func (s *Server) GetWatchStatus(w http.ResponseWriter, r *http.Request) {
	catalogID := chi.URLParam(r, "cid")
	writeJSON(w, http.StatusOK, map[string]any{
		"catalog_id":  catalogID,
		"subscribers": s.Watch.SubscriberCount(catalogID),
	})
}
