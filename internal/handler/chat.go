package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"estospaces/internal/chat"
	"estospaces/internal/model"
)

// GetChatHistory handles GET /api/chat/messages?visitor_id=...
// It is the polling fallback for clients without a live subscription.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	visitorID := r.URL.Query().Get("visitor_id")
	log.Printf("[GET /api/chat/messages] Request received from %s (visitor %s)", r.RemoteAddr, visitorID)

	if visitorID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "visitor_id is required"})
		return
	}

	conv, err := h.Backend.ConversationByVisitor(r.Context(), visitorID)
	if err != nil {
		if chat.Classify(err) == chat.KindNotFound {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "Conversation not found"})
			return
		}
		log.Printf("[GET /api/chat/messages] ❌ Lookup error: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to load conversation"})
		return
	}

	messages, err := h.Backend.MessagesByConversation(r.Context(), conv.ID)
	if err != nil {
		log.Printf("[GET /api/chat/messages] ❌ History error: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to load messages"})
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	log.Printf("[GET /api/chat/messages] ✅ Returned %d messages for conversation %s", len(messages), conv.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"conversation": conv,
		"messages":     messages,
	})
}

type adminReplyRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// CreateAdminReply handles POST /api/admin/messages
// Inserted replies reach live visitor sessions through the realtime
// hub.
func (h *Handler) CreateAdminReply(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/admin/messages] Request received from %s", r.RemoteAddr)

	if h.Config.AdminToken == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "Admin replies are not configured"})
		return
	}
	if r.Header.Get("X-Admin-Token") != h.Config.AdminToken {
		log.Printf("[POST /api/admin/messages] ❌ Unauthorized")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req adminReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[POST /api/admin/messages] ❌ Bad Request: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid request body"})
		return
	}
	if req.ConversationID == "" || req.Message == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "conversation_id and message are required"})
		return
	}

	msg, err := h.Backend.CreateMessage(r.Context(), req.ConversationID, model.SenderAdmin, req.Message)
	if err != nil {
		log.Printf("[POST /api/admin/messages] ❌ Database error: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to create message"})
		return
	}

	log.Printf("[POST /api/admin/messages] ✅ Created admin message %s in conversation %s", msg.ID, msg.ConversationID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}
