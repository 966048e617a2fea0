package handlers

import (
	"net/http"

	"github.com/wolfman30/healsmart/internal/chat"
	"github.com/wolfman30/healsmart/pkg/logging"
)

type ChatHandler struct {
	chat   *chat.Service
	logger *logging.Logger
}

func NewChatHandler(svc *chat.Service, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{chat: svc, logger: logger}
}

type chatMessageRequest struct {
	Text string `json:"text"`
	// Dictated marks speech-to-text input; it is handled like typed text.
	Dictated bool `json:"dictated,omitempty"`
}

// SendMessage handles POST /api/chat/messages. The bot reply arrives later on
// the chats feed.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := h.chat.Send(r.Context(), req.Text)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// Clear handles DELETE /api/chat.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	greeting, err := h.chat.Clear(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"greeting": greeting,
		"message":  "Chat history cleared successfully!",
	})
}
