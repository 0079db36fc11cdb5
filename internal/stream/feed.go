package stream

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"atelier/internal/chat"
)

const feedBuffer = 256

// DefaultWSBase is the last rung of the resolution ladder.
const DefaultWSBase = "ws://127.0.0.1:8000"

// ResolveWSBase picks the websocket base address: the configured value if
// set, else the API base's scheme/host mapped onto ws/wss, else a local
// default.
func ResolveWSBase(configured, apiBase string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return strings.TrimRight(trimmed, "/")
	}
	parsed, err := url.Parse(strings.TrimSpace(apiBase))
	if err == nil && parsed.Host != "" {
		scheme := "ws"
		if parsed.Scheme == "https" {
			scheme = "wss"
		}
		return scheme + "://" + parsed.Host
	}
	return DefaultWSBase
}

// Feed owns one websocket subscription for one session. It decodes one
// event per text frame, applies the scoping guard, and forwards events in
// arrival order on Events(). Close flips the cancellation token first, so
// frames racing the socket teardown are dropped instead of being applied
// to stale state; there is no timeout-based expiry and no reconnect.
type Feed struct {
	sessionID string
	conn      *websocket.Conn
	events    chan chat.StreamEvent
	cancelled atomic.Bool
	closeOnce sync.Once
	logger    *slog.Logger
}

// OpenFeed dials <base>/api/ws/sessions/<id> and starts the read loop.
// On failure the caller is expected to log and carry on without live
// updates; no retry happens here.
func OpenFeed(base, sessionID string, logger *slog.Logger) (*Feed, error) {
	endpoint := strings.TrimRight(base, "/") + "/api/ws/sessions/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, err
	}
	f := &Feed{
		sessionID: sessionID,
		conn:      conn,
		events:    make(chan chat.StreamEvent, feedBuffer),
		logger:    logger,
	}
	go f.readLoop()
	return f, nil
}

// Events yields decoded, scoped events in arrival order. The channel is
// closed when the feed ends, whether by Close or by the connection
// dropping.
func (f *Feed) Events() <-chan chat.StreamEvent {
	return f.events
}

func (f *Feed) SessionID() string {
	return f.sessionID
}

// Close cancels the feed. Safe to call more than once.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.cancelled.Store(true)
		_ = f.conn.Close()
	})
}

func (f *Feed) readLoop() {
	defer close(f.events)
	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			if !f.cancelled.Load() {
				f.logger.Debug("feed connection ended", "session", f.sessionID, "error", err)
			}
			return
		}
		if f.cancelled.Load() {
			return
		}
		var ev chat.StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// A malformed frame must not corrupt state or end the feed.
			f.logger.Warn("dropping malformed feed frame", "session", f.sessionID, "error", err)
			continue
		}
		if ev.Type != chat.EventFileChange {
			// Scoping guard: an absent session id means the subscribed
			// session; a mismatched one is another session's leftovers.
			if ev.SessionID == "" {
				ev.SessionID = f.sessionID
			} else if ev.SessionID != f.sessionID {
				continue
			}
		}
		if f.cancelled.Load() {
			return
		}
		f.events <- ev
	}
}
