package api

import (
	"context"
	"net/http"

	"github.com/vdavid/cqmail/internal/models"
)

// MailService is the set of mailbox operations exposed over HTTP.
// Implemented by mailbox.Service.
type MailService interface {
	Send(ctx context.Context, id models.Identity, req *models.SendRequest) (*models.SendResult, error)
	SyncInbox(ctx context.Context, id models.Identity) ([]models.InboxItem, error)
	Reply(ctx context.Context, id models.Identity, messageID string, req *models.ReplyRequest) (*models.ReplyResult, error)
	Forward(ctx context.Context, id models.Identity, messageID string, req *models.ForwardRequest) (*models.ForwardResult, error)
	Trash(ctx context.Context, id models.Identity, messageID string) (*models.TrashResult, error)
	ListSent(ctx context.Context, id models.Identity) ([]models.FolderMessage, error)
	ListTrash(ctx context.Context, id models.Identity) ([]models.FolderMessage, error)
}

// MailHandler handles the /api/v1/mail endpoints.
type MailHandler struct {
	service MailService
}

// NewMailHandler creates a new MailHandler instance.
func NewMailHandler(service MailService) *MailHandler {
	return &MailHandler{service: service}
}

// Send handles POST /api/v1/mail/send.
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "MailHandler")
	if !ok {
		return
	}

	var req models.SendRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Send(r.Context(), identity, &req)
	if err != nil {
		writeServiceError(w, "MailHandler: Send", err)
		return
	}

	WriteJSONResponse(w, result)
}

// Inbox handles GET /api/v1/mail/inbox.
func (h *MailHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "MailHandler")
	if !ok {
		return
	}

	items, err := h.service.SyncInbox(r.Context(), identity)
	if err != nil {
		writeServiceError(w, "MailHandler: SyncInbox", err)
		return
	}
	if items == nil {
		items = []models.InboxItem{}
	}

	WriteJSONResponse(w, items)
}

// Reply handles POST /api/v1/mail/reply/{messageId}.
func (h *MailHandler) Reply(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "MailHandler")
	if !ok {
		return
	}
	messageID, ok := messageIDFromPath(w, r)
	if !ok {
		return
	}

	var req models.ReplyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Reply(r.Context(), identity, messageID, &req)
	if err != nil {
		writeServiceError(w, "MailHandler: Reply", err)
		return
	}

	WriteJSONResponse(w, result)
}

// Forward handles POST /api/v1/mail/forward/{messageId}.
func (h *MailHandler) Forward(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "MailHandler")
	if !ok {
		return
	}
	messageID, ok := messageIDFromPath(w, r)
	if !ok {
		return
	}

	var req models.ForwardRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Forward(r.Context(), identity, messageID, &req)
	if err != nil {
		writeServiceError(w, "MailHandler: Forward", err)
		return
	}

	WriteJSONResponse(w, result)
}

// Trash handles DELETE /api/v1/mail/trash/{messageId}.
func (h *MailHandler) Trash(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "MailHandler")
	if !ok {
		return
	}
	messageID, ok := messageIDFromPath(w, r)
	if !ok {
		return
	}

	result, err := h.service.Trash(r.Context(), identity, messageID)
	if err != nil {
		writeServiceError(w, "MailHandler: Trash", err)
		return
	}

	WriteJSONResponse(w, result)
}

// Sent handles GET /api/v1/mail/sent.
func (h *MailHandler) Sent(w http.ResponseWriter, r *http.Request) {
	h.listFolder(w, r, "ListSent", h.service.ListSent)
}

// TrashList handles GET /api/v1/mail/trash.
func (h *MailHandler) TrashList(w http.ResponseWriter, r *http.Request) {
	h.listFolder(w, r, "ListTrash", h.service.ListTrash)
}

func (h *MailHandler) listFolder(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	list func(context.Context, models.Identity) ([]models.FolderMessage, error),
) {
	identity, ok := identityFromRequest(w, r, "MailHandler")
	if !ok {
		return
	}

	messages, err := list(r.Context(), identity)
	if err != nil {
		writeServiceError(w, "MailHandler: "+op, err)
		return
	}
	if messages == nil {
		messages = []models.FolderMessage{}
	}

	WriteJSONResponse(w, messages)
}
