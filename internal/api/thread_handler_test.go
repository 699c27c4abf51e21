package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/testutil/memstore"
	"github.com/vdavid/cqmail/internal/threading"
)

func storedRecord(messageID, userID, threadID string, refs []string, sentAt time.Time) *models.MailRecord {
	return &models.MailRecord{
		MessageID:      messageID,
		UserID:         userID,
		EmailAccountID: "account-1",
		ThreadID:       threadID,
		ReferencesIDs:  models.NewReferenceIDs(refs...),
		Subject:        "Plans",
		SentAt:         &sentAt,
	}
}

func TestThreadHandler_GetThread(t *testing.T) {
	store := memstore.New()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.Put(storedRecord("<a@x>", "user-1", "<a@x>", []string{"<a@x>"}, base))
	store.Put(storedRecord("<b@x>", "user-1", "<a@x>", []string{"<a@x>", "<b@x>"}, base.Add(time.Hour)))
	store.Put(storedRecord("<other@x>", "user-2", "<other@x>", []string{"<other@x>"}, base))

	handler := NewThreadHandler(threading.NewAssembler(store))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/mail/thread/{messageId}", handler.GetThread)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr
	}

	t.Run("returns the conversation oldest first", func(t *testing.T) {
		rr := serve(newAuthedRequest("GET", "/api/v1/mail/thread/b@x", ""))

		require.Equal(t, http.StatusOK, rr.Code)
		var response ThreadResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.Len(t, response.Messages, 2)
		assert.Equal(t, "<a@x>", response.Messages[0].MessageID)
		assert.Equal(t, "<b@x>", response.Messages[1].MessageID)
		assert.Equal(t, "<a@x>", response.ThreadID)
	})

	t.Run("thread id comes from the requested message", func(t *testing.T) {
		store.Put(storedRecord("<old@x>", "user-1", "<old@x>", []string{"<old@x>"}, base.Add(-time.Hour)))
		store.Put(storedRecord("<new@x>", "user-1", "<new@x>", []string{"<old@x>", "<new@x>"}, base.Add(2*time.Hour)))

		rr := serve(newAuthedRequest("GET", "/api/v1/mail/thread/%3Cnew@x%3E", ""))

		require.Equal(t, http.StatusOK, rr.Code)
		var response ThreadResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.NotEmpty(t, response.Messages)
		assert.Equal(t, "<old@x>", response.Messages[0].MessageID)
		assert.Equal(t, "<new@x>", response.ThreadID)
	})

	t.Run("returns 404 for another user's message", func(t *testing.T) {
		rr := serve(newAuthedRequest("GET", "/api/v1/mail/thread/%3Cother@x%3E", ""))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("returns 404 for unknown message", func(t *testing.T) {
		rr := serve(newAuthedRequest("GET", "/api/v1/mail/thread/%3Cmissing@x%3E", ""))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("returns 401 without identity", func(t *testing.T) {
		rr := serve(httptest.NewRequest("GET", "/api/v1/mail/thread/a@x", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("returns 400 for a blank id", func(t *testing.T) {
		req := newAuthedRequest("GET", "/api/v1/mail/thread/x", "")
		req.SetPathValue("messageId", "  ")
		rr := httptest.NewRecorder()
		handler.GetThread(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
