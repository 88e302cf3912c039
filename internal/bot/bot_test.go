package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_SendMedia(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AccountSID: "AC1", AuthToken: "tok", From: "+351200000000", BaseURL: srv.URL + "/"})
	sid, err := c.SendMedia(context.Background(), "+351912345678", "hello", "https://x/qr.png")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sid != "SM123" {
		t.Errorf("sid = %q", sid)
	}
	if got.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
		t.Errorf("path = %s", got.URL.Path)
	}
	if u, p, ok := got.BasicAuth(); !ok || u != "AC1" || p != "tok" {
		t.Errorf("basic auth = %q/%q", u, p)
	}
	if got.PostForm.Get("To") != "whatsapp:+351912345678" || got.PostForm.Get("From") != "whatsapp:+351200000000" {
		t.Errorf("form = %v", got.PostForm)
	}
	if got.PostForm.Get("Body") != "hello" || got.PostForm.Get("MediaUrl") != "https://x/qr.png" {
		t.Errorf("form = %v", got.PostForm)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21604,"message":"A 'To' phone number is required.","status":400}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AccountSID: "AC1", AuthToken: "tok", From: "+351200000000", BaseURL: srv.URL})
	_, err := c.SendText(context.Background(), "", "hi")
	if err == nil || !strings.Contains(err.Error(), "21604") {
		t.Errorf("expected twilio error 21604, got %v", err)
	}
}

func TestNewSender_Unconfigured(t *testing.T) {
	if _, ok := NewSender(ClientConfig{}).(LogSender); !ok {
		t.Error("expected LogSender without credentials")
	}
}

func TestInboundFromForm(t *testing.T) {
	in := InboundFromForm(map[string][]string{
		"From": {"whatsapp:+351912345678"},
		"Body": {"  card \n"},
	})
	if in.WaID != "351912345678" || in.Phone() != "+351912345678" || in.Body != "card" {
		t.Errorf("inbound = %+v", in)
	}
}
