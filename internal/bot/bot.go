package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sender delivers WhatsApp messages. to is an E.164 number.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendMedia(ctx context.Context, to, body, mediaURL string) (string, error)
}

type ClientConfig struct {
	AccountSID string
	AuthToken  string
	From       string // E.164 WhatsApp sender
	BaseURL    string // https://api.twilio.com
}

// Client talks to the Twilio Messages API.
type Client struct {
	cfg   ClientConfig
	httpc *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

// NewSender returns a Twilio client when credentials are present and a
// logging sender otherwise.
func NewSender(cfg ClientConfig) Sender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		log.Printf("whatsapp: twilio not configured, messages will only be logged")
		return LogSender{}
	}
	return NewClient(cfg)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (c *Client) send(ctx context.Context, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return "", fmt.Errorf("twilio %d: %s", e.Code, e.Message)
		}
		return "", fmt.Errorf("twilio: %s", resp.Status)
	}
	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("twilio: decode response: %w", err)
	}
	return out.SID, nil
}

func (c *Client) form(to, body string) url.Values {
	return url.Values{
		"To":   {"whatsapp:" + to},
		"From": {"whatsapp:" + c.cfg.From},
		"Body": {body},
	}
}

func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.send(ctx, c.form(to, body))
}

func (c *Client) SendMedia(ctx context.Context, to, body, mediaURL string) (string, error) {
	f := c.form(to, body)
	f.Set("MediaUrl", mediaURL)
	return c.send(ctx, f)
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

func (LogSender) SendText(_ context.Context, to, body string) (string, error) {
	log.Printf("whatsapp (log only) to=%s: %s", to, body)
	return "", nil
}

func (LogSender) SendMedia(_ context.Context, to, body, mediaURL string) (string, error) {
	log.Printf("whatsapp (log only) to=%s media=%s: %s", to, mediaURL, body)
	return "", nil
}
