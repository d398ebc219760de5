package pipeline

import "sync"

// Entry is one recognized span of speech. Offsets are seconds relative to
// the start of the utterance that produced it. Entries are immutable once
// published.
type Entry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ResultBox publishes the most recent transcription to a polling reader and
// keeps the append-only transcript log. One mutex guards both so a reader
// never observes a log update without the matching last-result update.
//
// TakeLast gives at-most-once delivery of each published value to a single
// logical consumer; concurrent consumers would race for the one slot.
type ResultBox struct {
	mu      sync.Mutex
	last    string
	entries []Entry
}

func NewResultBox() *ResultBox {
	return &ResultBox{}
}

// Publish records entry in the transcript log and makes its text the latest
// unread result.
func (b *ResultBox) Publish(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	b.last = entry.Text
}

// TakeLast returns the most recent unread text and clears it. Repeated calls
// without an intervening Publish return the empty string.
func (b *ResultBox) TakeLast() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	text := b.last
	b.last = ""
	return text
}

// Snapshot returns a copy of the full transcript so far.
func (b *ResultBox) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len reports the number of transcript entries.
func (b *ResultBox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
