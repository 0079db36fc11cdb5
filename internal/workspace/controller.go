// Package workspace owns the conversation state: which session is active,
// the session directory, the message log and pending table for the active
// session, and the optimistic send pipeline that reconciles speculative
// local writes with the backend's authoritative turns.
package workspace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"atelier/internal/chat"
	"atelier/internal/stream"
)

// ErrUnauthenticated is returned when an operation needs a credential and
// none is configured; the caller should route the user to login.
var ErrUnauthenticated = errors.New("not authenticated")

// PlaceholderPrefix marks locally generated message ids, keeping them
// disjoint from server-issued ids so reconciliation can filter them out.
const PlaceholderPrefix = "pending-"

// Backend is the slice of the HTTP API the controller consumes.
// *api.Client satisfies it.
type Backend interface {
	CreateSession(ctx context.Context, token, title string) (chat.Session, error)
	ListSessions(ctx context.Context, token string) ([]chat.Session, error)
	Messages(ctx context.Context, token, sessionID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, token, sessionID, content string) (chat.Turn, error)
	DeleteSession(ctx context.Context, token, sessionID string) error
}

// Subscription is a live feed for one session. *stream.Feed satisfies it.
type Subscription interface {
	Events() <-chan chat.StreamEvent
	SessionID() string
	Close()
}

// FeedOpener opens a Subscription for a session id.
type FeedOpener func(sessionID string) (Subscription, error)

// Controller is the top-level orchestrator. State is guarded by one mutex,
// but every backend call happens outside the lock, so feed events can be
// applied between the steps of a send exactly where the UI yields.
type Controller struct {
	mu sync.Mutex

	backend  Backend
	openFeed FeedOpener
	logger   *slog.Logger
	token    string

	sessionID   string
	log         *chat.Log
	pending     *chat.PendingTable
	sessions    []chat.Session
	errText     string
	sending     bool
	fileVersion int
	feed        Subscription
}

// New allocates a controller with fresh, empty stores.
func New(backend Backend, openFeed FeedOpener, token string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		backend:  backend,
		openFeed: openFeed,
		logger:   logger,
		token:    token,
		log:      chat.NewLog(),
		pending:  chat.NewPendingTable(),
	}
}

// SetToken installs the credential after a successful login.
func (c *Controller) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Send runs the optimistic pipeline: ensure a session exists (the only
// place one is created implicitly), upsert a speculative user message so
// the UI reflects the send instantly, call the backend, then replace the
// placeholder with the authoritative turn — or roll it back on failure.
func (c *Controller) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	c.sending = true
	c.errText = ""
	active := c.sessionID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	if active == "" {
		session, err := c.backend.CreateSession(ctx, c.token, "")
		if err != nil {
			c.setError(err.Error())
			return err
		}
		c.mu.Lock()
		c.sessionID = session.ID
		c.mu.Unlock()
		c.switchFeed(session.ID)
		active = session.ID
	}

	placeholderID := PlaceholderPrefix + uuid.NewString()
	c.mu.Lock()
	c.log.Upsert(chat.Message{
		ID:        placeholderID,
		SessionID: active,
		Sender:    chat.RoleUser,
		Content:   content,
		Timestamp: chat.ISOTime(time.Now()),
	})
	c.mu.Unlock()

	turn, err := c.backend.SendMessage(ctx, c.token, active, content)
	if err != nil {
		c.mu.Lock()
		c.log.Remove(placeholderID)
		c.errText = err.Error()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.log.Remove(placeholderID)
	c.log.Upsert(turn.User)
	c.log.Upsert(turn.Responses...)
	c.mu.Unlock()

	// Directory freshness only; a listing failure does not fail the send.
	if err := c.RefreshSessions(ctx); err != nil {
		c.logger.Warn("session list refresh after send failed", "error", err)
	}
	return nil
}

// OpenSession loads a session's history and makes it active, replacing the
// log wholesale and clearing pending state and the error slot.
func (c *Controller) OpenSession(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	c.errText = ""
	c.sending = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	history, err := c.backend.Messages(ctx, c.token, id)
	if err != nil {
		c.setError(err.Error())
		return err
	}
	c.mu.Lock()
	c.sessionID = id
	c.log.Reset(history)
	c.pending.Clear()
	c.mu.Unlock()
	c.switchFeed(id)
	return nil
}

// DeleteSession removes a session; deleting the active one behaves like
// BackHome. The directory is refreshed either way.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	c.errText = ""
	active := c.sessionID
	c.mu.Unlock()

	if err := c.backend.DeleteSession(ctx, c.token, id); err != nil {
		c.setError(err.Error())
		return err
	}
	if active == id {
		c.reset()
	}
	return c.RefreshSessions(ctx)
}

// BackHome leaves the active session, clearing the per-session stores but
// keeping the directory (refreshed for freshness).
func (c *Controller) BackHome(ctx context.Context) error {
	c.reset()
	return c.RefreshSessions(ctx)
}

// RefreshSessions re-fetches the session directory, sorted newest first.
func (c *Controller) RefreshSessions(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		c.mu.Lock()
		c.sessions = nil
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	sessions, err := c.backend.ListSessions(ctx, token)
	if err != nil {
		c.setError(err.Error())
		return err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})
	c.mu.Lock()
	c.sessions = sessions
	c.mu.Unlock()
	return nil
}

// ApplyEvent merges one feed event into the workspace. Events tagged with
// a session other than the active one are stale subscription leftovers and
// are discarded without mutation.
func (c *Controller) ApplyEvent(ev chat.StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Type != chat.EventFileChange {
		sid := ev.SessionID
		if sid == "" {
			sid = c.sessionID
		}
		if sid == "" || sid != c.sessionID {
			return
		}
	}
	effects := stream.Apply(ev, c.sessionID, time.Now(), c.pending)
	if effects.FileChanged {
		c.fileVersion++
	}
	if effects.ErrorSet {
		c.errText = effects.ErrorText
	}
	if effects.StopSending {
		c.sending = false
	}
	c.log.Upsert(effects.Upserts...)
}

// Display returns finalized plus in-flight messages merged and sorted by
// timestamp — arrival order never decides display order.
func (c *Controller) Display() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := append(c.log.Messages(), c.pending.Messages()...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// Sessions returns the cached directory, newest first.
func (c *Controller) Sessions() []chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Session{}, c.sessions...)
}

func (c *Controller) ActiveSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// ClearErr empties the conversation-level error slot.
func (c *Controller) ClearErr() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errText = ""
}

func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// FileVersion increments on every file-change notice; viewers re-fetch
// file and preview state when it moves.
func (c *Controller) FileVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileVersion
}

// HomeView reports whether the workspace is in its empty home state.
func (c *Controller) HomeView() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID == "" && c.log.Len() == 0
}

// FeedEvents exposes the current subscription's channel (nil when no feed
// is open) so a UI loop can pump it one event at a time.
func (c *Controller) FeedEvents() <-chan chat.StreamEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed == nil {
		return nil
	}
	return c.feed.Events()
}

// Close tears down the live feed; the rest of the state stays readable.
func (c *Controller) Close() {
	c.switchFeed("")
}

// IsPlaceholder reports whether id was generated locally by Send.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

func (c *Controller) setError(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errText = text
}

// reset is the "start fresh" transition: no active session, empty stores,
// no feed. The directory is left alone.
func (c *Controller) reset() {
	c.mu.Lock()
	c.sessionID = ""
	c.log.Reset(nil)
	c.pending.Clear()
	c.errText = ""
	c.mu.Unlock()
	c.switchFeed("")
}

// switchFeed closes any current subscription and, when id is non-empty,
// opens a fresh one. An open failure is logged and leaves the subscription
// absent; the session simply gets no live updates until reopened.
func (c *Controller) switchFeed(id string) {
	c.mu.Lock()
	current := c.feed
	c.feed = nil
	c.mu.Unlock()
	if current != nil {
		current.Close()
	}
	if id == "" || c.openFeed == nil {
		return
	}
	feed, err := c.openFeed(id)
	if err != nil {
		c.logger.Warn("live feed open failed", "session", id, "error", err)
		return
	}
	c.mu.Lock()
	// The active session may have changed while dialing.
	if c.sessionID != id {
		c.mu.Unlock()
		feed.Close()
		return
	}
	c.feed = feed
	c.mu.Unlock()
}
