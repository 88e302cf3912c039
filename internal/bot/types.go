package bot

import (
	"net/url"
	"strings"
)

// Inbound is a Twilio WhatsApp webhook message (form-encoded).
type Inbound struct {
	MessageSID  string
	From        string // whatsapp:+351...
	WaID        string // 351...
	ProfileName string
	Body        string
}

func InboundFromForm(f url.Values) Inbound {
	in := Inbound{
		MessageSID:  f.Get("MessageSid"),
		From:        f.Get("From"),
		WaID:        f.Get("WaId"),
		ProfileName: f.Get("ProfileName"),
		Body:        strings.TrimSpace(f.Get("Body")),
	}
	if in.WaID == "" {
		in.WaID = strings.TrimPrefix(strings.TrimPrefix(in.From, "whatsapp:"), "+")
	}
	return in
}

// Phone is the sender in E.164.
func (in Inbound) Phone() string {
	if in.WaID == "" {
		return ""
	}
	return "+" + in.WaID
}
