// Package stream implements the live-feed side of the workspace: the
// websocket subscription that delivers decoded events one at a time, and
// the classifier that merges each event into the pending table or the
// message log.
package stream

import (
	"time"

	"atelier/internal/chat"
)

// DefaultErrorText is surfaced when an error event carries no message.
const DefaultErrorText = "LLM call failed, please try again later"

// Effects is what applying one event asks the owner to do. The classifier
// itself only touches the pending table; everything else (store upserts,
// the error slot, the sending flag, the content-version counter) is
// reported here so the caller stays the single mutation point.
type Effects struct {
	// Upserts are finalized messages for the Log.
	Upserts []chat.Message
	// FileChanged asks for a content-version bump so file/preview viewers
	// re-fetch.
	FileChanged bool
	// ErrorSet/ErrorText surface a conversation-level error.
	ErrorSet  bool
	ErrorText string
	// StopSending halts any in-progress sending indicator.
	StopSending bool
}

// Apply classifies one decoded event against the pending table and returns
// the effects to apply. sessionID is the subscribed session, used when an
// event needs a message synthesized; now supplies defaulted timestamps.
// The event is assumed to be already scoped (see Feed); Apply is pure with
// respect to everything except the pending table it was handed.
func Apply(ev chat.StreamEvent, sessionID string, now time.Time, pending *chat.PendingTable) Effects {
	if ev.Type == chat.EventFileChange {
		return Effects{FileChanged: true}
	}
	if ev.MessageID == "" {
		return Effects{}
	}

	switch ev.Type {
	case chat.EventToolCall:
		// Tool calls are always complete; they land directly without
		// passing through the pending table.
		content := ev.Content
		if content == "" {
			content = "[tool call] " + ev.Tool
		}
		sender := ev.Sender
		if sender == "" {
			sender = chat.RoleAgent
		}
		ts := ev.Timestamp
		if ts == "" {
			ts = chat.ISOTime(now)
		}
		return Effects{Upserts: []chat.Message{{
			ID:        ev.MessageID,
			SessionID: sessionID,
			Sender:    sender,
			Agent:     ev.Agent,
			Content:   content,
			Timestamp: ts,
		}}}

	case chat.EventError:
		// One failed LLM call invalidates the whole in-progress turn, so
		// every pending entry goes, not just the one the event names. The
		// error also stays visible in history as a status record.
		text := ev.Content
		if text == "" {
			text = DefaultErrorText
		}
		agent := ev.Agent
		if agent == "" {
			agent = chat.PrimaryAgent
		}
		pending.Clear()
		return Effects{
			ErrorSet:    true,
			ErrorText:   text,
			StopSending: true,
			Upserts: []chat.Message{{
				ID:        ev.MessageID,
				SessionID: sessionID,
				Sender:    chat.RoleStatus,
				Agent:     agent,
				Content:   text,
				Timestamp: chat.ISOTime(now),
			}},
		}

	case chat.EventMessage:
		if ev.Sender == chat.RoleUser {
			// The client already holds its authoritative copy of the
			// user's own message (optimistic pipeline or history fetch);
			// re-ingesting the echo could clobber it.
			return Effects{}
		}
		return mergePending(ev, sessionID, now, pending)

	case chat.EventToken, chat.EventStatus:
		return mergePending(ev, sessionID, now, pending)

	default:
		return Effects{}
	}
}

func mergePending(ev chat.StreamEvent, sessionID string, now time.Time, pending *chat.PendingTable) Effects {
	entry, ok := pending.Get(ev.MessageID)
	if !ok {
		sender := ev.Sender
		if sender == "" {
			sender = chat.RoleAgent
		}
		ts := ev.Timestamp
		if ts == "" {
			ts = chat.ISOTime(now)
		}
		entry = chat.Message{
			ID:        ev.MessageID,
			SessionID: sessionID,
			Sender:    sender,
			Agent:     ev.Agent,
			Timestamp: ts,
		}
	}

	if ev.Type == chat.EventStatus {
		// A status line is "current phase", not a transcript: it replaces
		// whatever was accumulated and re-attributes the entry.
		agent := ev.Agent
		if agent == "" {
			agent = chat.PrimaryAgent
		}
		entry.Sender = chat.RoleStatus
		entry.Agent = agent
		entry.Content = ev.Content
	} else {
		entry.Content += ev.Content
	}

	if ev.Final {
		// The entry keeps its first-seen timestamp so display order
		// reflects when the stream started, not when it finished.
		pending.Delete(ev.MessageID)
		return Effects{Upserts: []chat.Message{entry}}
	}
	pending.Put(entry)
	return Effects{}
}
