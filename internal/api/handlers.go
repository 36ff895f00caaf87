package api

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/BTreeMap/ConciergePipe/internal/models"
	"github.com/BTreeMap/ConciergePipe/internal/util"
)

// ConversationView is the payload of GET /conversations/{phone}.
type ConversationView struct {
	Conversation *models.Conversation         `json:"conversation"`
	Messages     []models.ConversationMessage `json:"messages"`
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// conversationHandler returns the conversation record and its most recent log entries.
func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	phone, err := url.PathUnescape(r.PathValue("phone"))
	if err != nil || phone == "" {
		util.WriteJSONResponse(w, http.StatusBadRequest, models.Error("Invalid phone number"))
		return
	}
	slog.Debug("Server.conversationHandler: looking up conversation", "phone", phone)

	conv, err := s.store.GetConversation(r.Context(), phone)
	if err != nil {
		slog.Error("Server.conversationHandler: failed to load conversation", "phone", phone, "error", err)
		util.WriteJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if conv == nil {
		util.WriteJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), conv.ID, DefaultHistoryLimit)
	if err != nil {
		slog.Error("Server.conversationHandler: failed to load messages", "phone", phone, "conversation_id", conv.ID, "error", err)
		util.WriteJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load messages"))
		return
	}
	if msgs == nil {
		msgs = []models.ConversationMessage{}
	}
	util.WriteJSONResponse(w, http.StatusOK, models.Success(ConversationView{Conversation: conv, Messages: msgs}))
}
