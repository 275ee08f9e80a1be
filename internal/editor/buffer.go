// Package editor provides an in-memory document buffer standing in for the
// host application's text widget: a single mutable string with caret and
// selection state and a change notification.
package editor

import "sync"

// Buffer is a minimal editor document. Local mutations and remote applies
// both fire the change callback; the session's anti-echo guard tells the
// two apart. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	text     string
	caret    int
	anchor   int
	onChange func()
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// SetOnChange installs the change notification, typically the session's
// OnLocalDocumentChanged. The callback runs outside the buffer's lock.
func (b *Buffer) SetOnChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Snapshot returns the current document text.
func (b *Buffer) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Selection returns the caret position and selection anchor. With no
// selection the two are equal.
func (b *Buffer) Selection() (caret, anchor int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caret, b.anchor
}

// Select places the selection. Both offsets are clamped to the text.
func (b *Buffer) Select(anchor, caret int) {
	b.mu.Lock()
	b.anchor = clamp(anchor, len(b.text))
	b.caret = clamp(caret, len(b.text))
	b.mu.Unlock()
}

// SetText replaces the whole document as a local edit: caret moves to the
// end and the change callback fires.
func (b *Buffer) SetText(text string) {
	b.mu.Lock()
	b.text = text
	b.caret = len(text)
	b.anchor = b.caret
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// AppendLine appends one line of text (plus newline) as a local edit.
func (b *Buffer) AppendLine(line string) {
	b.mu.Lock()
	b.text += line + "\n"
	b.caret = len(b.text)
	b.anchor = b.caret
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// ApplyRemoteDocument replaces the document with a peer's text, preserving
// the caret and selection by clamping the previous offsets to the new
// length. Fires the change callback, exactly as a real editor widget would
// on a programmatic replace.
func (b *Buffer) ApplyRemoteDocument(text string) {
	b.mu.Lock()
	b.text = text
	b.caret = clamp(b.caret, len(text))
	b.anchor = clamp(b.anchor, len(text))
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
