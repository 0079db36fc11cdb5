package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"atelier/internal/chat"
)

type fakeBackend struct {
	createSession func(ctx context.Context, token, title string) (chat.Session, error)
	listSessions  func(ctx context.Context, token string) ([]chat.Session, error)
	messages      func(ctx context.Context, token, sessionID string) ([]chat.Message, error)
	sendMessage   func(ctx context.Context, token, sessionID, content string) (chat.Turn, error)
	deleteSession func(ctx context.Context, token, sessionID string) error
}

func (f *fakeBackend) CreateSession(ctx context.Context, token, title string) (chat.Session, error) {
	if f.createSession == nil {
		return chat.Session{ID: "s-new", CreatedAt: "2025-03-01T10:00:00Z"}, nil
	}
	return f.createSession(ctx, token, title)
}

func (f *fakeBackend) ListSessions(ctx context.Context, token string) ([]chat.Session, error) {
	if f.listSessions == nil {
		return nil, nil
	}
	return f.listSessions(ctx, token)
}

func (f *fakeBackend) Messages(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
	if f.messages == nil {
		return nil, nil
	}
	return f.messages(ctx, token, sessionID)
}

func (f *fakeBackend) SendMessage(ctx context.Context, token, sessionID, content string) (chat.Turn, error) {
	if f.sendMessage == nil {
		return chat.Turn{}, errors.New("sendMessage not stubbed")
	}
	return f.sendMessage(ctx, token, sessionID, content)
}

func (f *fakeBackend) DeleteSession(ctx context.Context, token, sessionID string) error {
	if f.deleteSession == nil {
		return nil
	}
	return f.deleteSession(ctx, token, sessionID)
}

type fakeFeed struct {
	id     string
	events chan chat.StreamEvent

	mu     sync.Mutex
	closed bool
}

func newFakeFeed(id string) *fakeFeed {
	return &fakeFeed{id: id, events: make(chan chat.StreamEvent, 16)}
}

func (f *fakeFeed) Events() <-chan chat.StreamEvent { return f.events }
func (f *fakeFeed) SessionID() string               { return f.id }

func (f *fakeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *fakeFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type feedRecorder struct {
	mu    sync.Mutex
	feeds []*fakeFeed
}

func (r *feedRecorder) opener() FeedOpener {
	return func(sessionID string) (Subscription, error) {
		feed := newFakeFeed(sessionID)
		r.mu.Lock()
		r.feeds = append(r.feeds, feed)
		r.mu.Unlock()
		return feed, nil
	}
}

func (r *feedRecorder) opened() []*fakeFeed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeFeed{}, r.feeds...)
}

func newController(backend Backend, opener FeedOpener) *Controller {
	return New(backend, opener, "tok", nil)
}

func TestSendRequiresToken(t *testing.T) {
	ctrl := New(&fakeBackend{}, nil, "", nil)
	if err := ctrl.Send(context.Background(), "hi"); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSendCreatesSessionAndReconcilesPlaceholder(t *testing.T) {
	var createdTitle string
	var placeholderSeen bool
	var wasSending bool
	var ctrl *Controller

	backend := &fakeBackend{
		createSession: func(ctx context.Context, token, title string) (chat.Session, error) {
			createdTitle = title
			return chat.Session{ID: "s-new", CreatedAt: "2025-03-01T10:00:00Z"}, nil
		},
		sendMessage: func(ctx context.Context, token, sessionID, content string) (chat.Turn, error) {
			// The speculative user message must already be visible while
			// the call is in flight.
			for _, msg := range ctrl.Display() {
				if IsPlaceholder(msg.ID) && msg.Content == "build it" {
					placeholderSeen = true
				}
			}
			wasSending = ctrl.Sending()
			return chat.Turn{
				User: chat.Message{ID: "u1", SessionID: sessionID, Sender: chat.RoleUser, Content: "build it", Timestamp: "2025-03-01T10:00:01Z"},
				Responses: []chat.Message{
					{ID: "r1", SessionID: sessionID, Sender: chat.RoleAgent, Agent: "Mike", Content: "on it", Timestamp: "2025-03-01T10:00:03Z"},
				},
			}, nil
		},
		listSessions: func(ctx context.Context, token string) ([]chat.Session, error) {
			return []chat.Session{{ID: "s-new", CreatedAt: "2025-03-01T10:00:00Z"}}, nil
		},
	}
	recorder := &feedRecorder{}
	ctrl = newController(backend, recorder.opener())

	if err := ctrl.Send(context.Background(), "build it"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if createdTitle != "" {
		t.Fatalf("implicit session creation must not invent a title, got %q", createdTitle)
	}
	if !placeholderSeen {
		t.Fatalf("placeholder was not visible during the backend call")
	}
	if !wasSending {
		t.Fatalf("sending flag was not raised during the backend call")
	}
	if ctrl.Sending() {
		t.Fatalf("sending flag must clear after the send")
	}
	if ctrl.ActiveSession() != "s-new" {
		t.Fatalf("expected active session s-new, got %q", ctrl.ActiveSession())
	}

	display := ctrl.Display()
	if len(display) != 2 {
		t.Fatalf("expected placeholder replaced by the turn, got %+v", display)
	}
	if display[0].ID != "u1" || display[1].ID != "r1" {
		t.Fatalf("unexpected display %+v", display)
	}
	for _, msg := range display {
		if IsPlaceholder(msg.ID) {
			t.Fatalf("placeholder survived reconciliation: %+v", msg)
		}
	}

	feeds := recorder.opened()
	if len(feeds) != 1 || feeds[0].SessionID() != "s-new" {
		t.Fatalf("expected one feed for s-new, got %+v", feeds)
	}
	if len(ctrl.Sessions()) != 1 {
		t.Fatalf("session directory was not refreshed")
	}
}

func TestSendFailureRollsBackPlaceholder(t *testing.T) {
	backend := &fakeBackend{
		sendMessage: func(ctx context.Context, token, sessionID, content string) (chat.Turn, error) {
			return chat.Turn{}, errors.New("Insufficient credits")
		},
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return nil, nil
		},
	}
	ctrl := newController(backend, nil)
	if err := ctrl.OpenSession(context.Background(), "s1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	err := ctrl.Send(context.Background(), "build it")
	if err == nil {
		t.Fatalf("expected send error")
	}
	if ctrl.Err() != "Insufficient credits" {
		t.Fatalf("expected error surfaced, got %q", ctrl.Err())
	}
	if ctrl.Sending() {
		t.Fatalf("sending flag must clear on failure")
	}
	if got := ctrl.Display(); len(got) != 0 {
		t.Fatalf("placeholder must be rolled back, got %+v", got)
	}
}

func TestSendClearsPreviousError(t *testing.T) {
	calls := 0
	backend := &fakeBackend{
		sendMessage: func(ctx context.Context, token, sessionID, content string) (chat.Turn, error) {
			calls++
			if calls == 1 {
				return chat.Turn{}, errors.New("boom")
			}
			return chat.Turn{
				User: chat.Message{ID: "u1", Sender: chat.RoleUser, Content: content, Timestamp: "2025-03-01T10:00:01Z"},
			}, nil
		},
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return nil, nil
		},
	}
	ctrl := newController(backend, nil)
	_ = ctrl.OpenSession(context.Background(), "s1")

	_ = ctrl.Send(context.Background(), "first")
	if ctrl.Err() == "" {
		t.Fatalf("first send should have failed")
	}
	if err := ctrl.Send(context.Background(), "second"); err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if ctrl.Err() != "" {
		t.Fatalf("retry must clear the stale error, got %q", ctrl.Err())
	}
}

func TestOpenSessionReplacesState(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return []chat.Message{
				{ID: "h1", SessionID: sessionID, Sender: chat.RoleUser, Content: "old prompt", Timestamp: "2025-03-01T09:00:00Z"},
				{ID: "h2", SessionID: sessionID, Sender: chat.RoleAgent, Agent: "Mike", Content: "old answer", Timestamp: "2025-03-01T09:00:05Z"},
			}, nil
		},
	}
	recorder := &feedRecorder{}
	ctrl := newController(backend, recorder.opener())

	if err := ctrl.OpenSession(context.Background(), "sA"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// Leave something pending in A, then switch to B.
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "p1", SessionID: "sA", Content: "half a rep"})

	if err := ctrl.OpenSession(context.Background(), "sB"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if ctrl.ActiveSession() != "sB" {
		t.Fatalf("expected sB active, got %q", ctrl.ActiveSession())
	}
	for _, msg := range ctrl.Display() {
		if msg.ID == "p1" {
			t.Fatalf("pending state leaked across the session switch")
		}
		if msg.SessionID != "sB" {
			t.Fatalf("foreign message in display: %+v", msg)
		}
	}

	feeds := recorder.opened()
	if len(feeds) != 2 {
		t.Fatalf("expected a feed per open, got %d", len(feeds))
	}
	if !feeds[0].isClosed() {
		t.Fatalf("the first session's feed must be closed on switch")
	}
	if feeds[1].isClosed() || feeds[1].SessionID() != "sB" {
		t.Fatalf("the new feed should be open for sB")
	}
}

func TestStaleSessionEventsAreDiscarded(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return nil, nil
		},
	}
	ctrl := newController(backend, nil)
	_ = ctrl.OpenSession(context.Background(), "sB")

	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "ghost", SessionID: "sA", Content: "leftover", Final: true})
	if len(ctrl.Display()) != 0 {
		t.Fatalf("event for another session must be discarded")
	}

	// An untagged event belongs to the active session.
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "m1", Content: "live", Final: true})
	got := ctrl.Display()
	if len(got) != 1 || got[0].Content != "live" {
		t.Fatalf("untagged event should apply to the active session, got %+v", got)
	}
	if got[0].SessionID != "sB" {
		t.Fatalf("synthesized message must carry the active session, got %q", got[0].SessionID)
	}
}

func TestEventsIgnoredWithNoActiveSession(t *testing.T) {
	ctrl := newController(&fakeBackend{}, nil)
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "m1", Content: "orphan", Final: true})
	if len(ctrl.Display()) != 0 {
		t.Fatalf("events must not apply without an active session")
	}
}

func TestErrorEventSetsErrAndStopsSending(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return nil, nil
		},
	}
	ctrl := newController(backend, nil)
	_ = ctrl.OpenSession(context.Background(), "s1")

	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "m1", Content: "half"})
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventError, MessageID: "e1"})

	if ctrl.Err() == "" {
		t.Fatalf("error event must surface an error")
	}
	if ctrl.Sending() {
		t.Fatalf("error event must stop sending")
	}
	display := ctrl.Display()
	if len(display) != 1 || display[0].Sender != chat.RoleStatus {
		t.Fatalf("expected only the synthesized status record, got %+v", display)
	}
}

func TestFileChangeBumpsVersion(t *testing.T) {
	ctrl := newController(&fakeBackend{}, nil)
	if ctrl.FileVersion() != 0 {
		t.Fatalf("version should start at 0")
	}
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventFileChange, Paths: []string{"a.py"}})
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventFileChange})
	if ctrl.FileVersion() != 2 {
		t.Fatalf("expected version 2, got %d", ctrl.FileVersion())
	}
}

func TestDisplaySortsByTimestampNotArrival(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return nil, nil
		},
	}
	ctrl := newController(backend, nil)
	_ = ctrl.OpenSession(context.Background(), "s1")

	// Later-stamped message arrives first.
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "late", Content: "second", Final: true, Timestamp: "2025-03-01T10:00:09Z"})
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "early", Content: "first", Final: true, Timestamp: "2025-03-01T10:00:01Z"})
	// And one still pending, stamped in between.
	ctrl.ApplyEvent(chat.StreamEvent{Type: chat.EventToken, MessageID: "mid", Content: "in flight", Timestamp: "2025-03-01T10:00:05Z"})

	got := ctrl.Display()
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"early", "mid", "late"} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, got[i].ID)
		}
	}
}

func TestDeleteActiveSessionGoesHome(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return []chat.Message{{ID: "h1", SessionID: sessionID, Sender: chat.RoleUser, Content: "x", Timestamp: "2025-03-01T09:00:00Z"}}, nil
		},
		listSessions: func(ctx context.Context, token string) ([]chat.Session, error) {
			return nil, nil
		},
	}
	recorder := &feedRecorder{}
	ctrl := newController(backend, recorder.opener())
	_ = ctrl.OpenSession(context.Background(), "s1")

	if err := ctrl.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if ctrl.ActiveSession() != "" || !ctrl.HomeView() {
		t.Fatalf("deleting the active session must land home")
	}
	if len(ctrl.Display()) != 0 {
		t.Fatalf("stores must be cleared")
	}
	feeds := recorder.opened()
	if len(feeds) != 1 || !feeds[0].isClosed() {
		t.Fatalf("the active session's feed must be closed")
	}
}

func TestDeleteOtherSessionKeepsActive(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return []chat.Message{{ID: "h1", SessionID: sessionID, Sender: chat.RoleUser, Content: "x", Timestamp: "2025-03-01T09:00:00Z"}}, nil
		},
		listSessions: func(ctx context.Context, token string) ([]chat.Session, error) {
			return nil, nil
		},
	}
	ctrl := newController(backend, nil)
	_ = ctrl.OpenSession(context.Background(), "s1")

	if err := ctrl.DeleteSession(context.Background(), "s2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if ctrl.ActiveSession() != "s1" {
		t.Fatalf("deleting another session must not disturb the active one")
	}
	if len(ctrl.Display()) != 1 {
		t.Fatalf("active session history must survive")
	}
}

func TestBackHomeClearsEverything(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return []chat.Message{{ID: "h1", SessionID: sessionID, Sender: chat.RoleUser, Content: "x", Timestamp: "2025-03-01T09:00:00Z"}}, nil
		},
		listSessions: func(ctx context.Context, token string) ([]chat.Session, error) {
			return []chat.Session{{ID: "s1", CreatedAt: "2025-03-01T09:00:00Z"}}, nil
		},
	}
	ctrl := newController(backend, nil)
	_ = ctrl.OpenSession(context.Background(), "s1")

	if err := ctrl.BackHome(context.Background()); err != nil {
		t.Fatalf("back home failed: %v", err)
	}
	if !ctrl.HomeView() || ctrl.ActiveSession() != "" {
		t.Fatalf("expected home state")
	}
	if len(ctrl.Sessions()) != 1 {
		t.Fatalf("the session directory must survive going home")
	}
}

func TestRefreshSessionsSortsNewestFirst(t *testing.T) {
	backend := &fakeBackend{
		listSessions: func(ctx context.Context, token string) ([]chat.Session, error) {
			return []chat.Session{
				{ID: "old", CreatedAt: "2025-03-01T08:00:00Z"},
				{ID: "new", CreatedAt: "2025-03-01T11:00:00Z"},
				{ID: "mid", CreatedAt: "2025-03-01T09:30:00Z"},
			}, nil
		},
	}
	ctrl := newController(backend, nil)
	if err := ctrl.RefreshSessions(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	got := ctrl.Sessions()
	for i, want := range []string{"new", "mid", "old"} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, got[i].ID)
		}
	}
}

func TestCloseShutsFeed(t *testing.T) {
	backend := &fakeBackend{
		messages: func(ctx context.Context, token, sessionID string) ([]chat.Message, error) {
			return nil, nil
		},
	}
	recorder := &feedRecorder{}
	ctrl := newController(backend, recorder.opener())
	_ = ctrl.OpenSession(context.Background(), "s1")

	if ctrl.FeedEvents() == nil {
		t.Fatalf("expected a live feed after open")
	}
	ctrl.Close()
	if ctrl.FeedEvents() != nil {
		t.Fatalf("feed channel must be gone after close")
	}
	feeds := recorder.opened()
	if len(feeds) != 1 || !feeds[0].isClosed() {
		t.Fatalf("feed must be closed")
	}
}

func TestIsPlaceholder(t *testing.T) {
	if !IsPlaceholder(PlaceholderPrefix + "abc") {
		t.Fatalf("prefix ids are placeholders")
	}
	if IsPlaceholder("u1") {
		t.Fatalf("server ids are not placeholders")
	}
}
