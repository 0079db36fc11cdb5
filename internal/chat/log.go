package chat

// Log is the authoritative ordered store of finalized messages for the
// active session. Upserts replace in place by id, so re-applying a message
// never duplicates it; appended messages keep insertion order. The log
// never reorders on write — display order is computed at read time by the
// workspace controller.
//
// Log is not safe for concurrent use; the controller serializes access.
type Log struct {
	messages []Message
}

func NewLog() *Log {
	return &Log{messages: []Message{}}
}

// Upsert merges items into the log: replace the entry with the same id if
// one exists, append otherwise.
func (l *Log) Upsert(items ...Message) {
	for _, item := range items {
		replaced := false
		for i := range l.messages {
			if l.messages[i].ID == item.ID {
				l.messages[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			l.messages = append(l.messages, item)
		}
	}
}

// Remove drops every entry with the given id (there is at most one).
func (l *Log) Remove(id string) {
	kept := l.messages[:0]
	for _, msg := range l.messages {
		if msg.ID != id {
			kept = append(kept, msg)
		}
	}
	l.messages = kept
}

// Reset replaces the whole log, e.g. when a session's history is loaded.
func (l *Log) Reset(history []Message) {
	l.messages = append([]Message{}, history...)
}

// Messages returns a copy of the log in insertion order.
func (l *Log) Messages() []Message {
	return append([]Message{}, l.messages...)
}

func (l *Log) Len() int {
	return len(l.messages)
}
