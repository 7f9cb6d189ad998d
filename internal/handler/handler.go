package handler

import (
	"github.com/gorilla/mux"

	"estospaces/internal/chat"
	"estospaces/internal/config"
	"estospaces/internal/events"
	"estospaces/internal/notify"
	"estospaces/internal/store"
)

// Handler holds application dependencies
type Handler struct {
	Store   *store.Store
	Backend chat.Backend
	Config  config.Config
	Mailer  *notify.Mailer
	Events  events.Publisher
}

// New creates a new Handler with the given dependencies
func New(st *store.Store, backend chat.Backend, cfg config.Config, mailer *notify.Mailer, publisher events.Publisher) *Handler {
	return &Handler{
		Store:   st,
		Backend: backend,
		Config:  cfg,
		Mailer:  mailer,
		Events:  publisher,
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// Landing page forms
	r.HandleFunc("/api/waitlist", h.CreateWaitlistEntry).Methods("POST")
	r.HandleFunc("/api/newsletter", h.CreateNewsletterSignup).Methods("POST")

	// Chat polling fallback and admin replies
	r.HandleFunc("/api/chat/messages", h.GetChatHistory).Methods("GET")
	r.HandleFunc("/api/admin/messages", h.CreateAdminReply).Methods("POST")

	// WebSocket chat gateway
	r.HandleFunc("/ws/chat", h.HandleChatSocket).Methods("GET")

	return r
}
