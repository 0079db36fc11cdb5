// Package api is the HTTP client for the workspace backend: sessions,
// chat turns, auth, files, and sandbox previews. The live feed is not
// here; see internal/stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"atelier/internal/chat"
)

// DefaultBase matches the backend's local development address.
const DefaultBase = "http://127.0.0.1:8000/api"

type Client struct {
	base string
	http *http.Client
}

func New(base string, timeout time.Duration) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		trimmed = DefaultBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: trimmed,
		http: &http.Client{Timeout: timeout},
	}
}

// Base returns the configured API base; the feed derives its ws address
// from it.
func (c *Client) Base() string {
	return c.base
}

func (c *Client) Login(ctx context.Context, email, password string) (chat.TokenResponse, error) {
	var out chat.TokenResponse
	err := c.call(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Profile(ctx context.Context, token string) (chat.UserProfile, error) {
	var out chat.UserProfile
	err := c.call(ctx, http.MethodGet, "/auth/me?token="+url.QueryEscape(token), "", nil, &out)
	return out, err
}

func (c *Client) CreateSession(ctx context.Context, token, title string) (chat.Session, error) {
	body := map[string]string{}
	if strings.TrimSpace(title) != "" {
		body["title"] = title
	}
	var out chat.Session
	err := c.call(ctx, http.MethodPost, "/sessions", token, body, &out)
	return out, err
}

func (c *Client) ListSessions(ctx context.Context, token string) ([]chat.Session, error) {
	var out []chat.Session
	err := c.call(ctx, http.MethodGet, "/sessions", token, nil, &out)
	return out, err
}

func (c *Client) Messages(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
	var out []chat.Message
	err := c.call(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/messages", token, nil, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, token, sessionID, content string) (chat.Turn, error) {
	var out chat.Turn
	err := c.call(ctx, http.MethodPost, "/chat/messages", token, map[string]string{
		"session_id": sessionID,
		"content":    content,
	}, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, token, sessionID string) error {
	return c.call(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), token, nil, nil)
}

func (c *Client) FileTree(ctx context.Context, token, sessionID string) (chat.FileTree, error) {
	var out chat.FileTree
	err := c.call(ctx, http.MethodGet, "/files/"+url.PathEscape(sessionID)+"/tree", token, nil, &out)
	return out, err
}

func (c *Client) FileContent(ctx context.Context, token, sessionID, path string) (chat.FileContent, error) {
	query := url.Values{"path": {path}}
	var out chat.FileContent
	err := c.call(ctx, http.MethodGet, "/files/"+url.PathEscape(sessionID)+"?"+query.Encode(), token, nil, &out)
	return out, err
}

func (c *Client) SandboxPreview(ctx context.Context, token, sessionID string) (chat.SandboxPreview, error) {
	var out chat.SandboxPreview
	err := c.call(ctx, http.MethodGet, "/sandbox/preview/"+url.PathEscape(sessionID), token, nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s", errorDetail(payload, resp.Status))
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

// errorDetail unwraps the backend's {"detail": ...} error payloads into a
// plain message, falling back to the HTTP status line.
func errorDetail(payload []byte, status string) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && len(body.Detail) > 0 {
		var text string
		if err := json.Unmarshal(body.Detail, &text); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		return string(body.Detail)
	}
	return status
}
