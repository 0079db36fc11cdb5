// Package chat holds the wire-level data model shared by the backend
// client, the live feed, and the workspace controller: sessions, messages,
// turns, stream events, and the two stores the reconciliation engine runs
// on (Log and PendingTable).
package chat

import (
	"strings"
	"time"
)

// SenderRole labels who authored a message. Besides the fixed roles below
// the backend may attribute messages to a named agent role (lower-case
// agent name); those pass through verbatim.
type SenderRole string

const (
	RoleUser   SenderRole = "user"
	RoleAgent  SenderRole = "agent"
	RoleStatus SenderRole = "status"
)

// PrimaryAgent is the team-lead agent the backend falls back to when a
// status or error event carries no attribution.
const PrimaryAgent = "Mike"

type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	OwnerID   string `json:"owner_id"`
}

// Message is one displayable record: a user prompt, an agent reply, a tool
// call notice, or a synthetic status line. Timestamps travel as ISO-8601
// strings; same-format strings order lexically, which is all the display
// sort needs.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Sender    SenderRole `json:"sender"`
	Agent     string     `json:"agent,omitempty"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp"`
}

// Turn is the authoritative result of a send: the canonical user message
// plus the responses the backend produced for it.
type Turn struct {
	User      Message   `json:"user"`
	Responses []Message `json:"responses"`
}

// EventKind discriminates the live feed's tagged union.
type EventKind string

const (
	EventToken      EventKind = "token"
	EventStatus     EventKind = "status"
	EventError      EventKind = "error"
	EventToolCall   EventKind = "tool_call"
	EventFileChange EventKind = "file_change"
	EventMessage    EventKind = "message"
)

// StreamEvent is one decoded feed frame. Every kind except file_change is
// scoped to one session and names one message id.
type StreamEvent struct {
	Type      EventKind  `json:"type"`
	Sender    SenderRole `json:"sender,omitempty"`
	Agent     string     `json:"agent,omitempty"`
	Content   string     `json:"content,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	Final     bool       `json:"final,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
	Paths     []string   `json:"paths,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type UserProfile struct {
	ID      string  `json:"id"`
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	Credits float64 `json:"credits"`
	Plan    string  `json:"plan"`
}

type FileNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Type     string     `json:"type"`
	Size     int64      `json:"size"`
	Children []FileNode `json:"children,omitempty"`
}

type FileTree struct {
	Root    string     `json:"root"`
	Entries []FileNode `json:"entries"`
}

type FileContent struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	Size       int64   `json:"size"`
	ModifiedAt float64 `json:"modified_at"`
	Content    string  `json:"content"`
}

type SandboxPreview struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// ISOTime formats t the way the backend formats timestamps.
func ISOTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseISO accepts the timestamp shapes the backend is known to emit.
func ParseISO(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
