// Package gateway talks to the chat-completion proxy: it turns a transcript,
// a new prompt and the panel settings into one POST and maps the reply back
// into a transcript message.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"webchat/internal/history"
	"webchat/internal/settings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a role-tagged entry in the backend payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /chat.
type Request struct {
	Temperature float64       `json:"temperature"`
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	APIKey      string        `json:"api_key"`
}

// Error reports any failure of a completion round trip.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client for endpoint. A zero timeout means requests wait for
// the backend indefinitely.
func New(endpoint string, timeout time.Duration) *Client {
	return NewWithHTTPClient(endpoint, &http.Client{Timeout: timeout})
}

func NewWithHTTPClient(endpoint string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{endpoint: endpoint, httpClient: hc}
}

func (c *Client) Endpoint() string { return c.endpoint }

// BuildRequest maps prior messages to roles (bot is assistant, anything else
// is user) and appends prompt as the final user entry.
func BuildRequest(prior []history.Message, prompt string, v settings.Values) Request {
	msgs := make([]ChatMessage, 0, len(prior)+1)
	for _, m := range prior {
		role := RoleUser
		if m.Sender == history.SenderBot {
			role = RoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: m.Text})
	}
	msgs = append(msgs, ChatMessage{Role: RoleUser, Content: prompt})
	return Request{
		Temperature: v.Temperature,
		Model:       v.Model.BackendName(),
		Messages:    msgs,
		APIKey:      v.Credential,
	}
}

// Complete performs one round trip. Every failure is returned as *Error.
func (c *Client) Complete(ctx context.Context, prior []history.Message, prompt string, v settings.Values) (history.Message, error) {
	body, err := json.Marshal(BuildRequest(prior, prompt, v))
	if err != nil {
		return history.Message{}, &Error{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return history.Message{}, &Error{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return history.Message{}, &Error{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return history.Message{}, &Error{Op: "read", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return history.Message{}, &Error{Op: "send", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", truncate(data, 256))}
	}

	var msg history.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return history.Message{}, &Error{Op: "decode", StatusCode: resp.StatusCode, Err: err}
	}
	return msg, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
