package api

import (
	"context"
	"net/http"

	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/threading"
)

// ConversationAssembler rebuilds the conversation a message belongs to.
// Implemented by threading.Assembler.
type ConversationAssembler interface {
	Thread(ctx context.Context, messageID, userID string) (*threading.Thread, error)
}

// ThreadResponse is the body of GET /api/v1/mail/thread/{messageId}.
type ThreadResponse struct {
	MessageID string               `json:"message_id"`
	ThreadID  string               `json:"thread_id"`
	Messages  []*models.MailRecord `json:"messages"`
}

type ThreadHandler struct {
	assembler ConversationAssembler
}

func NewThreadHandler(assembler ConversationAssembler) *ThreadHandler {
	return &ThreadHandler{assembler: assembler}
}

// GetThread returns the caller's conversation containing the message, oldest first.
// Unknown messages and messages owned by someone else both yield 404.
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "ThreadHandler")
	if !ok {
		return
	}
	messageID, ok := messageIDFromPath(w, r)
	if !ok {
		return
	}

	thread, err := h.assembler.Thread(r.Context(), messageID, identity.UserID)
	if err != nil {
		writeServiceError(w, "ThreadHandler: Failed to assemble thread", err)
		return
	}

	WriteJSONResponse(w, ThreadResponse{
		MessageID: messageID,
		ThreadID:  thread.ID(),
		Messages:  thread.Messages,
	})
}
