package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/models"
)

// SearchHandler handles search-related API requests.
type SearchHandler struct {
	store  db.Store
	logger *slog.Logger
}

// NewSearchHandler creates a new SearchHandler instance.
func NewSearchHandler(store db.Store, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{store: store, logger: logger.With("handler", "search")}
}

// Search matches the query against subject, snippet and sender. A blank
// query returns no results.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	_, limit := ParsePaginationParams(r, db.DefaultSearchLimit, maxPageSize)

	response := models.SearchResponse{Query: query, Emails: []*models.Email{}}
	if query != "" {
		emails, err := h.store.SearchEmails(ctx, userID, query, limit)
		if err != nil {
			WriteServiceError(w, err, h.logger)
			return
		}
		if emails != nil {
			response.Emails = emails
		}
	}

	WriteJSONResponse(w, response, h.logger)
}
