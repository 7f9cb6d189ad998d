package notify

import (
	"fmt"
	"html"
	"time"

	"estospaces/internal/model"
)

// The HTML bodies mirror the landing page's transactional emails:
// a single centered card with a gradient header, detail rows on a
// light panel and a timestamp footer.

const cardOpen = `<!DOCTYPE html>
<html lang="en">
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f5f5f5;">
<table role="presentation" style="width: 100%%; border-collapse: collapse; background-color: #f5f5f5; padding: 20px;"><tr><td align="center">
<table role="presentation" style="max-width: 500px; width: 100%%; background-color: #ffffff; border-radius: 8px; overflow: hidden;">
<tr><td style="background: linear-gradient(135deg, #10b981 0%%, #059669 100%%); padding: 24px 32px; text-align: center;">
<h1 style="margin: 0; color: #ffffff; font-size: 20px; font-weight: 700;">%s</h1></td></tr>
<tr><td style="padding: 24px 32px;">`

const cardClose = `</td></tr>
<tr><td style="padding: 16px 32px; background-color: #f9fafb; border-top: 1px solid #e5e7eb; text-align: center;">
<p style="margin: 0; color: #9ca3af; font-size: 11px;">Received at %s UTC</p></td></tr>
</table></td></tr></table></body></html>`

func detailRow(label, value string) string {
	if value == "" {
		value = "—"
	}
	return fmt.Sprintf(`<p style="margin: 0 0 4px; color: #6b7280; font-size: 12px; text-transform: uppercase; letter-spacing: 0.5px;">%s</p>
<p style="margin: 0 0 12px; color: #111827; font-size: 15px;">%s</p>`,
		html.EscapeString(label), html.EscapeString(value))
}

func card(title, body string) string {
	return fmt.Sprintf(cardOpen, html.EscapeString(title)) +
		body +
		fmt.Sprintf(cardClose, time.Now().UTC().Format("January 2, 2006 at 3:04 PM"))
}

func reservationHTML(entry model.WaitlistEntry) string {
	body := detailRow("User Type", entry.UserType) +
		detailRow("Name", entry.Name) +
		detailRow("Email", entry.Email) +
		detailRow("Phone", entry.Phone) +
		detailRow("Location", entry.Location) +
		detailRow("Looking For", entry.LookingFor)
	return card("🏠 New Reserve Your Spot Lead", body)
}

func reservationText(entry model.WaitlistEntry) string {
	return fmt.Sprintf(`New Reserve Your Spot Lead

User Type: %s
Name: %s
Email: %s
Phone: %s
Location: %s
Looking For: %s`,
		entry.UserType, entry.Name, entry.Email, entry.Phone, entry.Location, entry.LookingFor)
}

func newsletterHTML(email, source string) string {
	body := `<p style="margin: 0 0 16px; color: #374151; font-size: 15px;">Someone just subscribed to your newsletter!</p>` +
		detailRow("Email Address", email) +
		detailRow("Source", sourceLabel(source))
	return card("📬 New Newsletter Subscriber", body)
}

func newsletterText(email, source string) string {
	return fmt.Sprintf(`New Newsletter Subscriber

Email Address: %s
Source: %s`, email, sourceLabel(source))
}

func sourceLabel(source string) string {
	if source == "footer" {
		return "Footer Newsletter Signup"
	}
	if source == "" {
		return "unknown"
	}
	return source
}

func chatHTML(name, email, conversationID, visitorID string) string {
	body := `<p style="margin: 0 0 16px; color: #374151; font-size: 15px;">A visitor started a live chat conversation and is waiting for a reply.</p>` +
		detailRow("Name", name) +
		detailRow("Email", email) +
		detailRow("Conversation ID", conversationID) +
		detailRow("Visitor ID", visitorID)
	return card("💬 New Live Chat Conversation", body)
}

func chatText(name, email, conversationID, visitorID string) string {
	return fmt.Sprintf(`New Live Chat Conversation

Name: %s
Email: %s
Conversation ID: %s
Visitor ID: %s`, name, email, conversationID, visitorID)
}
