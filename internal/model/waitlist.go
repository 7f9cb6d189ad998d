package model

import "time"

// WaitlistEntry is one "Reserve Your Spot" form submission.
type WaitlistEntry struct {
	ID         string    `json:"id"`
	UserType   string    `json:"user_type"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Location   string    `json:"location"`
	LookingFor string    `json:"looking_for"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewsletterSignup is a footer newsletter subscription.
type NewsletterSignup struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
