package editor

import "testing"

// TestLocalEdits covers SetText/AppendLine semantics: caret tracks the end
// and the change callback fires once per mutation.
func TestLocalEdits(t *testing.T) {
	b := NewBuffer()

	fired := 0
	b.SetOnChange(func() { fired++ })

	b.SetText("abc")
	if got := b.Snapshot(); got != "abc" {
		t.Fatalf("SetText: got %q", got)
	}
	if caret, anchor := b.Selection(); caret != 3 || anchor != 3 {
		t.Errorf("caret should follow a local edit: caret=%d anchor=%d", caret, anchor)
	}

	b.AppendLine("def")
	if got := b.Snapshot(); got != "abcdef\n" {
		t.Fatalf("AppendLine: got %q", got)
	}

	if fired != 2 {
		t.Errorf("change callback fired %d times, want 2", fired)
	}
}

// TestApplyRemotePreservesCaret verifies caret and selection survive a
// whole-document replacement, clamped to the new length.
func TestApplyRemotePreservesCaret(t *testing.T) {
	testCases := []struct {
		name          string
		initial       string
		anchor, caret int
		remote        string
		wantAnchor    int
		wantCaret     int
	}{
		{
			name:    "caret inside shorter replacement",
			initial: "hello world",
			anchor:  5, caret: 5,
			remote:     "hello",
			wantAnchor: 5, wantCaret: 5,
		},
		{
			name:    "caret clamped to shorter text",
			initial: "a long document body",
			anchor:  18, caret: 18,
			remote:     "tiny",
			wantAnchor: 4, wantCaret: 4,
		},
		{
			name:    "selection shape survives",
			initial: "select me please",
			anchor:  2, caret: 9,
			remote:     "select me too",
			wantAnchor: 2, wantCaret: 9,
		},
		{
			name:    "selection clamped asymmetrically",
			initial: "0123456789",
			anchor:  3, caret: 9,
			remote:     "01234",
			wantAnchor: 3, wantCaret: 5,
		},
		{
			name:    "empty replacement collapses everything",
			initial: "gone",
			anchor:  1, caret: 3,
			remote:     "",
			wantAnchor: 0, wantCaret: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuffer()
			b.SetText(tc.initial)
			b.Select(tc.anchor, tc.caret)

			b.ApplyRemoteDocument(tc.remote)

			if got := b.Snapshot(); got != tc.remote {
				t.Fatalf("text: got %q, want %q", got, tc.remote)
			}
			caret, anchor := b.Selection()
			if caret != tc.wantCaret || anchor != tc.wantAnchor {
				t.Errorf("selection: caret=%d anchor=%d, want caret=%d anchor=%d",
					caret, anchor, tc.wantCaret, tc.wantAnchor)
			}
		})
	}
}

// TestApplyRemoteFiresChange verifies a programmatic replace still notifies,
// exactly like a real editor widget — the session's anti-echo guard depends
// on telling the two apart, not on silence.
func TestApplyRemoteFiresChange(t *testing.T) {
	b := NewBuffer()

	fired := 0
	b.SetOnChange(func() { fired++ })

	b.ApplyRemoteDocument("incoming")
	if fired != 1 {
		t.Errorf("change callback fired %d times, want 1", fired)
	}
}

// TestSelectClamps verifies out-of-range selection offsets are clamped at
// set time.
func TestSelectClamps(t *testing.T) {
	b := NewBuffer()
	b.SetText("ab")

	b.Select(-3, 99)
	caret, anchor := b.Selection()
	if anchor != 0 || caret != 2 {
		t.Errorf("clamping failed: caret=%d anchor=%d", caret, anchor)
	}
}
