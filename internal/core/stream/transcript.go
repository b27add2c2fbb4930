package stream

import (
	"sync"

	"spark-backend/internal/core/types"
)

// Transcript is the ordered message history of one conversation. Messages are
// only ever appended; the single exception is that an in-progress model entry
// which never received text is removed again when its stream fails.
type Transcript struct {
	mu      sync.RWMutex
	entries []*Entry
}

// Entry is an owned handle to one message in a transcript. The accumulator
// mutates the in-progress model message only through the handle it created,
// never by looking at the tail of the transcript.
type Entry struct {
	transcript *Transcript
	msg        types.Message
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// FromMessages seeds a transcript, e.g. with history restored by a caller.
func FromMessages(messages []types.Message) *Transcript {
	t := NewTranscript()
	for _, msg := range messages {
		msg = msg.Clone()
		msg.Complete = true
		t.entries = append(t.entries, &Entry{transcript: t, msg: msg})
	}
	return t
}

func (t *Transcript) AppendUser(text string) types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &Entry{
		transcript: t,
		msg:        types.Message{Role: types.RoleUser, Text: text, Citations: []types.Citation{}, Complete: true},
	}
	t.entries = append(t.entries, entry)
	return entry.msg.Clone()
}

func (t *Transcript) begin() *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &Entry{
		transcript: t,
		msg:        types.Message{Role: types.RoleModel, Text: "", Citations: []types.Citation{}},
	}
	t.entries = append(t.entries, entry)
	return entry
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Transcript) Snapshot() []types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Message, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry.msg.Clone())
	}
	return out
}

func (e *Entry) Message() types.Message {
	e.transcript.mu.RLock()
	defer e.transcript.mu.RUnlock()
	return e.msg.Clone()
}

func (e *Entry) apply(fragment types.Fragment) {
	e.transcript.mu.Lock()
	defer e.transcript.mu.Unlock()

	if e.msg.Complete {
		return
	}

	e.msg.Text += fragment.TextDelta
	if fragment.Grounding != nil {
		e.msg.Citations = types.CitationsFromRefs(fragment.Grounding.Refs)
	}
}

func (e *Entry) complete() {
	e.transcript.mu.Lock()
	defer e.transcript.mu.Unlock()
	e.msg.Complete = true
}

// discardIfEmpty removes the entry from its transcript when no text was ever
// accumulated into it. It reports whether the entry was removed.
func (e *Entry) discardIfEmpty() bool {
	t := e.transcript
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.msg.Text != "" {
		return false
	}

	for i, entry := range t.entries {
		if entry == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}
