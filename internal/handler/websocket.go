package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"estospaces/internal/chat"
	"estospaces/internal/model"
)

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// clientFrame is a message from the chat widget.
type clientFrame struct {
	Type  string `json:"type"` // "start" | "message"
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Text  string `json:"text,omitempty"`
}

// stateFrame is a full snapshot of the session pushed to the widget
// whenever anything changes.
type stateFrame struct {
	Type         string              `json:"type"` // always "state"
	State        string              `json:"state"`
	Conversation *model.Conversation `json:"conversation,omitempty"`
	Messages     []chat.Entry        `json:"messages"`
	Error        string              `json:"error,omitempty"`
}

func snapshot(session *chat.Session) stateFrame {
	frame := stateFrame{
		Type:     "state",
		State:    session.State().String(),
		Messages: session.Messages(),
	}
	if conv, ok := session.Conversation(); ok {
		frame.Conversation = &conv
	}
	if err := session.Err(); err != nil {
		frame.Error = err.Error()
	}
	if frame.Messages == nil {
		frame.Messages = []chat.Entry{}
	}
	return frame
}

// HandleChatSocket handles GET /ws/chat?visitor_id=...
// One chat session lives for exactly as long as the connection: it is
// created after the upgrade and closed (subscription released) when
// the socket goes away.
func (h *Handler) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	visitorID := r.URL.Query().Get("visitor_id")
	if visitorID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "visitor_id is required"})
		return
	}

	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := chat.NewSession(h.Backend, visitorID)
	defer session.Close()

	log.Printf("[WebSocket] New chat connection for visitor %s", visitorID)

	if err := session.LoadConversation(r.Context()); err != nil {
		// Recorded on the session and pushed in the next state frame;
		// the visitor can still start a conversation.
		log.Printf("[WebSocket] Conversation load failed for visitor %s: %v", visitorID, err)
	}

	// Writer: one initial snapshot, then one per coalesced update.
	done := make(chan struct{})
	go func() {
		if err := conn.WriteJSON(snapshot(session)); err != nil {
			return
		}
		for {
			select {
			case <-done:
				return
			case <-session.Updates():
				if err := conn.WriteJSON(snapshot(session)); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	// Reader: widget frames drive the session.
	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			log.Printf("[WebSocket] Chat connection closed for visitor %s", visitorID)
			return
		}

		switch frame.Type {
		case "start":
			if err := session.StartConversation(r.Context(), frame.Name, frame.Email); err != nil {
				log.Printf("[WebSocket] startConversation failed for visitor %s: %v", visitorID, err)
			}
		case "message":
			if frame.Text == "" {
				continue
			}
			if err := session.SendMessage(r.Context(), frame.Text); err != nil {
				log.Printf("[WebSocket] sendMessage failed for visitor %s: %v", visitorID, err)
			}
		default:
			log.Printf("[WebSocket] Unknown frame type %q from visitor %s", frame.Type, visitorID)
		}
	}
}
