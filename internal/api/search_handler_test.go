package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/db/dbtest"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchHandler_Search(t *testing.T) {
	store := dbtest.NewStore()
	handler := NewSearchHandler(store, testLogger())
	uid := userID(t, store, testUser)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	lunch := inboxEmail(uid, "m1", base)
	lunch.Subject = "Lunch on Friday"
	seedEmail(t, store, lunch)
	report := inboxEmail(uid, "m2", base.Add(time.Hour))
	report.Subject = "Quarterly report"
	report.From = "Bob"
	report.FromEmail = "bob@example.com"
	seedEmail(t, store, report)

	search := func(url string) (int, models.SearchResponse) {
		rr := httptest.NewRecorder()
		handler.Search(rr, createRequestWithUser("GET", url, testUser))
		var resp models.SearchResponse
		if rr.Code == http.StatusOK {
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		}
		return rr.Code, resp
	}

	t.Run("returns 401 when no user email in context", func(t *testing.T) {
		VerifyAuthCheck(t, handler.Search, "GET", "/api/v1/search?q=x")
	})

	t.Run("matches subject case-insensitively", func(t *testing.T) {
		code, resp := search("/api/v1/search?q=LUNCH")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "LUNCH", resp.Query)
		require.Len(t, resp.Emails, 1)
		assert.Equal(t, "m1", resp.Emails[0].GmailID)
	})

	t.Run("matches sender address", func(t *testing.T) {
		_, resp := search("/api/v1/search?q=bob@")
		require.Len(t, resp.Emails, 1)
		assert.Equal(t, "m2", resp.Emails[0].GmailID)
	})

	t.Run("blank query returns nothing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.Search(rr, createRequestWithUser("GET", "/api/v1/search?q=%20%20", testUser))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"emails":[]`)
	})

	t.Run("limit caps results", func(t *testing.T) {
		_, resp := search("/api/v1/search?q=example.com&limit=1")
		require.Len(t, resp.Emails, 1)
		assert.Equal(t, "m2", resp.Emails[0].GmailID)
	})
}
