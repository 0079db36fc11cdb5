package chat

// PendingTable holds messages still being assembled from streamed
// fragments, keyed by message id. An entry exists only between the first
// fragment and the final one; finalization deletes it here and upserts the
// completed message into the Log. The entry's timestamp is frozen when the
// entry is created so interleaved streams keep their start order.
//
// PendingTable is not safe for concurrent use; the controller serializes
// access.
type PendingTable struct {
	entries map[string]Message
}

func NewPendingTable() *PendingTable {
	return &PendingTable{entries: map[string]Message{}}
}

func (p *PendingTable) Get(id string) (Message, bool) {
	entry, ok := p.entries[id]
	return entry, ok
}

func (p *PendingTable) Put(msg Message) {
	p.entries[msg.ID] = msg
}

func (p *PendingTable) Delete(id string) {
	delete(p.entries, id)
}

// Clear drops every in-flight entry. Used when an error event invalidates
// the whole in-progress turn and on session switches.
func (p *PendingTable) Clear() {
	p.entries = map[string]Message{}
}

// Messages returns the in-flight entries in unspecified order; callers
// sort by timestamp before display.
func (p *PendingTable) Messages() []Message {
	out := make([]Message, 0, len(p.entries))
	for _, entry := range p.entries {
		out = append(out, entry)
	}
	return out
}

func (p *PendingTable) Len() int {
	return len(p.entries)
}
