package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/teddyfriends/loyalty/internal/bot"
)

// Inbox handles one inbound WhatsApp message. *bot.Dispatcher implements it.
type Inbox interface {
	Handle(ctx context.Context, in bot.Inbound)
}

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// WhatsAppWebhook receives Twilio's form-encoded callbacks at
// /whatsapp/webhook?secret=... Replies go out through the REST API, so the
// TwiML response is always empty.
func WhatsAppWebhook(inbox Inbox, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("secret")), []byte(secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		in := bot.InboundFromForm(r.PostForm)
		if in.WaID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// Replies are sent before we answer; don't let a client disconnect abort them.
		inbox.Handle(context.WithoutCancel(r.Context()), in)

		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(emptyTwiML))
	}
}
