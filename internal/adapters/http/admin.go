package httpadapter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

const defaultUnansweredLimit = 20

func (rt *Router) listUnanswered(w http.ResponseWriter, r *http.Request) {
	limit := defaultUnansweredLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := rt.unanswered.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), "failed to list unanswered queries")
		return
	}
	if items == nil {
		items = []domain.UnansweredQuery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}
