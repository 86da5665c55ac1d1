package handler

import (
	"net/http"

	"github.com/kiranshivaraju/sheltertrack/internal/api/response"
	"github.com/kiranshivaraju/sheltertrack/internal/catalog"
)

// NewSpeciesHandler returns an http.HandlerFunc for GET /api/v1/species.
// With ?name= it returns only that species' subspecies.
func NewSpeciesHandler(c *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			response.JSON(w, c)
			return
		}
		subs := c.Subspecies(name)
		if subs == nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown species", nil)
			return
		}
		response.JSON(w, catalog.Species{Name: name, Subspecies: subs})
	}
}
