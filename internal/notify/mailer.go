package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"estospaces/internal/model"
)

// DefaultBaseURL is the Resend API endpoint.
const DefaultBaseURL = "https://api.resend.com"

// Mailer sends transactional notifications through the Resend HTTP
// API. An empty APIKey disables sending: Enabled reports false and the
// Send* methods succeed without doing anything, so features degrade
// instead of failing.
type Mailer struct {
	APIKey  string
	From    string
	To      string
	BaseURL string
	Client  *http.Client
}

// New creates a Mailer targeting the Resend API.
func New(apiKey, from, to string) *Mailer {
	return &Mailer{
		APIKey:  apiKey,
		From:    from,
		To:      to,
		BaseURL: DefaultBaseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (m *Mailer) Enabled() bool { return m.APIKey != "" }

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (m *Mailer) send(ctx context.Context, subject, html, text string) error {
	if !m.Enabled() {
		log.Printf("[Notify] ⚠️  RESEND_API_KEY not configured, skipping email %q", subject)
		return nil
	}

	body, err := json.Marshal(sendRequest{
		From:    m.From,
		To:      []string{m.To},
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend returned %d: %s", resp.StatusCode, detail)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.ID != "" {
		log.Printf("[Notify] ✅ Sent %q (email id %s)", subject, parsed.ID)
	}
	return nil
}

// SendReservationLead notifies the team about a new "Reserve Your
// Spot" submission.
func (m *Mailer) SendReservationLead(ctx context.Context, entry model.WaitlistEntry) error {
	return m.send(ctx,
		"New Reserve Your Spot Lead",
		reservationHTML(entry),
		reservationText(entry),
	)
}

// SendNewsletterNotification notifies the team about a newsletter
// subscriber.
func (m *Mailer) SendNewsletterNotification(ctx context.Context, email, source string) error {
	return m.send(ctx,
		fmt.Sprintf("📬 New Newsletter Subscriber: %s", email),
		newsletterHTML(email, source),
		newsletterText(email, source),
	)
}

// SendChatNotification alerts the team that a visitor started a chat
// conversation.
func (m *Mailer) SendChatNotification(ctx context.Context, name, email, conversationID, visitorID string) error {
	return m.send(ctx,
		"💬 New Live Chat Conversation",
		chatHTML(name, email, conversationID, visitorID),
		chatText(name, email, conversationID, visitorID),
	)
}
