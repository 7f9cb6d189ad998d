package model

import "time"

// SenderType identifies which side of a conversation wrote a message.
type SenderType string

const (
	SenderVisitor SenderType = "visitor"
	SenderAdmin   SenderType = "admin"
)

// Conversation is one visitor's chat thread. At most one conversation
// exists per visitor_id (UNIQUE constraint in the database).
type Conversation struct {
	ID           string    `json:"id"`
	VisitorID    string    `json:"visitor_id"`
	VisitorName  string    `json:"visitor_name,omitempty"`
	VisitorEmail string    `json:"visitor_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message represents a chat message
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderType     SenderType `json:"sender_type"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"created_at"`
}
