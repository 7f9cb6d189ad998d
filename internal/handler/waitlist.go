package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"estospaces/internal/events"
	"estospaces/internal/model"
)

type waitlistRequest struct {
	UserType   string `json:"userType"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Location   string `json:"location"`
	LookingFor string `json:"lookingFor"`
}

// CreateWaitlistEntry handles POST /api/waitlist
func (h *Handler) CreateWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/waitlist] Request received from %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req waitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[POST /api/waitlist] ❌ Bad Request: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid request body"})
		return
	}

	missing := missingFields(map[string]string{
		"userType":   req.UserType,
		"name":       req.Name,
		"email":      req.Email,
		"location":   req.Location,
		"lookingFor": req.LookingFor,
	})
	if len(missing) > 0 {
		log.Printf("[POST /api/waitlist] ❌ Bad Request: missing %s", strings.Join(missing, ", "))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Missing required fields: " + strings.Join(missing, ", ")})
		return
	}

	entry, err := h.Store.CreateWaitlistEntry(r.Context(), model.WaitlistEntry{
		UserType:   req.UserType,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Location:   req.Location,
		LookingFor: req.LookingFor,
	})
	if err != nil {
		log.Printf("[POST /api/waitlist] ❌ Database error: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to save reservation"})
		return
	}

	if h.Events != nil {
		if err := h.Events.Publish(r.Context(), events.KeyWaitlistReserved, entry); err != nil {
			log.Printf("[POST /api/waitlist] ⚠️  Failed to publish event: %v", err)
		}
	}

	if h.Mailer.Enabled() {
		if err := h.Mailer.SendReservationLead(r.Context(), entry); err != nil {
			log.Printf("[POST /api/waitlist] ❌ Email error: %v", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "Failed to send notification"})
			return
		}
	} else {
		log.Printf("[POST /api/waitlist] ⚠️  RESEND_API_KEY not configured, reservation saved without notification")
	}

	log.Printf("[POST /api/waitlist] ✅ Reserved spot for %s (%s)", entry.Name, entry.Email)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"id":              entry.ID,
		"emailConfigured": h.Mailer.Enabled(),
	})
}

type newsletterRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

// CreateNewsletterSignup handles POST /api/newsletter
func (h *Handler) CreateNewsletterSignup(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/newsletter] Request received from %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req newsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[POST /api/newsletter] ❌ Bad Request: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Email == "" {
		log.Printf("[POST /api/newsletter] ❌ Bad Request: missing email")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Email is required"})
		return
	}
	if req.Source == "" {
		req.Source = "unknown"
	}

	signup, err := h.Store.CreateNewsletterSignup(r.Context(), req.Email, req.Source)
	if err != nil {
		log.Printf("[POST /api/newsletter] ❌ Database error: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to save subscription"})
		return
	}

	if h.Events != nil {
		if err := h.Events.Publish(r.Context(), events.KeyNewsletterSubscribed, signup); err != nil {
			log.Printf("[POST /api/newsletter] ⚠️  Failed to publish event: %v", err)
		}
	}

	if h.Mailer.Enabled() {
		if err := h.Mailer.SendNewsletterNotification(r.Context(), signup.Email, signup.Source); err != nil {
			log.Printf("[POST /api/newsletter] ❌ Email error: %v", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "Failed to send notification"})
			return
		}
	}

	log.Printf("[POST /api/newsletter] ✅ Subscribed %s (source: %s)", signup.Email, signup.Source)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"emailConfigured": h.Mailer.Enabled(),
	})
}

func missingFields(fields map[string]string) []string {
	var missing []string
	for _, name := range []string{"userType", "name", "email", "location", "lookingFor"} {
		if value, ok := fields[name]; ok && strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
