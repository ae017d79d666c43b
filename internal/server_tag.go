package internal

import "net/http"

type tagDTO struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// HandleTopTags lists the most-used forum tags.
func (s *Server) HandleTopTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}
	tags, err := s.store.TopTags(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]tagDTO, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tagDTO{Name: tag.Name, Count: tag.Count})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": out})
}
