// Package logstream maintains the launcher's view of the backend log stream.
//
// The backend delivers log fragments over two independent channels (a push
// stream and a polling loop). Each fragment carries the backend's claimed
// total stream length after the fragment, which makes merging idempotent:
// whichever channel delivers first wins, and the other channel's copy is
// trimmed or discarded against the cursor.
package logstream

import "strings"

// Applied describes the outcome of merging one fragment.
type Applied struct {
	// Suffix is the previously unseen text appended to the transcript.
	// Empty when the fragment was stale, empty, or malformed.
	Suffix string
	// Gap is the number of bytes between the old cursor and the fragment
	// start when the fragment began past the cursor. Those bytes were never
	// delivered; the merge accepts the hole and keeps tailing.
	Gap int
}

// Transcript accumulates log text and owns the read cursor into the
// backend's stream. The cursor only advances, except for Reset, which is
// called exactly when a new run is initiated locally.
type Transcript struct {
	offset int
	buf    strings.Builder
}

// Offset reports how many bytes of the backend stream are already rendered.
func (t *Transcript) Offset() int { return t.offset }

// Text returns the accumulated transcript.
func (t *Transcript) Text() string { return t.buf.String() }

// Len reports the rendered transcript length in bytes.
func (t *Transcript) Len() int { return t.buf.Len() }

// Apply merges one fragment into the transcript. declaredTotal is the
// backend's claimed stream length after this fragment, so the fragment
// starts at declaredTotal-len(content). Fragments wholly behind the cursor
// are dropped, overlapping fragments are trimmed to their unseen suffix,
// and fragments starting past the cursor are appended whole (forward gaps
// are accepted, not back-filled). Malformed input degrades to a no-op.
func (t *Transcript) Apply(content string, declaredTotal int) Applied {
	if content == "" {
		return Applied{}
	}
	if declaredTotal <= t.offset {
		// Everything in this fragment is already represented.
		return Applied{}
	}

	start := declaredTotal - len(content)
	if start >= t.offset {
		gap := start - t.offset
		t.buf.WriteString(content)
		t.offset = declaredTotal
		return Applied{Suffix: content, Gap: gap}
	}

	// Partial overlap: start < offset < declaredTotal.
	overlap := t.offset - start
	suffix := content[overlap:]
	t.buf.WriteString(suffix)
	t.offset = declaredTotal
	return Applied{Suffix: suffix}
}

// ApplyFull merges a full-transcript snapshot, as carried by the terminal
// run-finished signal where content is the entire log rather than a delta.
func (t *Transcript) ApplyFull(full string) Applied {
	if len(full) <= t.offset {
		return Applied{}
	}
	return t.Apply(full[t.offset:], len(full))
}

// Reset clears the transcript and rewinds the cursor to zero. Only local
// run initiation calls this; inbound data never does.
func (t *Transcript) Reset() {
	t.offset = 0
	t.buf.Reset()
}
