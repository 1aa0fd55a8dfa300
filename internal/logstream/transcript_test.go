package logstream

import "testing"

func TestApplyAppendsFromZero(t *testing.T) {
	t.Parallel()

	var tr Transcript
	applied := tr.Apply("Starting\n", 9)
	if applied.Suffix != "Starting\n" {
		t.Fatalf("unexpected suffix: %q", applied.Suffix)
	}
	if tr.Offset() != 9 {
		t.Fatalf("expected offset 9, got %d", tr.Offset())
	}
	if tr.Text() != "Starting\n" {
		t.Fatalf("unexpected transcript: %q", tr.Text())
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	var tr Transcript
	tr.Apply("Starting\n", 9)
	applied := tr.Apply("Starting\n", 9)
	if applied.Suffix != "" {
		t.Fatalf("duplicate fragment should be dropped, appended %q", applied.Suffix)
	}
	if tr.Offset() != 9 || tr.Text() != "Starting\n" {
		t.Fatalf("duplicate fragment mutated state: offset=%d text=%q", tr.Offset(), tr.Text())
	}
}

func TestApplyOrderIndependence(t *testing.T) {
	t.Parallel()

	f1 := func(tr *Transcript) { tr.Apply("0123456789", 10) }
	f2 := func(tr *Transcript) { tr.Apply("abcdefghij", 20) }

	var pollFirst, pushFirst Transcript
	f1(&pollFirst)
	f2(&pollFirst)
	f2(&pushFirst)
	f1(&pushFirst)

	if pollFirst.Offset() != 20 {
		t.Fatalf("expected cursor 20, got %d", pollFirst.Offset())
	}
	if pollFirst.Text() != "0123456789abcdefghij" {
		t.Fatalf("unexpected transcript: %q", pollFirst.Text())
	}
	// Push-first sees F2 as a forward gap jump; F1 is then wholly stale.
	if pushFirst.Offset() != 20 {
		t.Fatalf("expected cursor 20 regardless of order, got %d", pushFirst.Offset())
	}
	if pushFirst.Text() != "abcdefghij" {
		t.Fatalf("late F1 should be discarded after the cursor passed it: %q", pushFirst.Text())
	}
}

func TestApplyTrimsOverlap(t *testing.T) {
	t.Parallel()

	var tr Transcript
	tr.Apply("0123456789", 10)

	applied := tr.Apply("XYZ123", 13)
	if applied.Suffix != "123" {
		t.Fatalf("expected trimmed suffix %q, got %q", "123", applied.Suffix)
	}
	if tr.Offset() != 13 {
		t.Fatalf("expected cursor 13, got %d", tr.Offset())
	}
	if tr.Text() != "0123456789123" {
		t.Fatalf("unexpected transcript: %q", tr.Text())
	}
}

func TestApplyDiscardsWhollyStaleFragment(t *testing.T) {
	t.Parallel()

	var tr Transcript
	tr.Apply(string(make([]byte, 50)), 50)

	applied := tr.Apply("old news", 40)
	if applied.Suffix != "" {
		t.Fatalf("stale fragment must be a no-op, appended %q", applied.Suffix)
	}
	if tr.Offset() != 50 {
		t.Fatalf("cursor must not rewind: %d", tr.Offset())
	}
}

func TestApplyReportsForwardGap(t *testing.T) {
	t.Parallel()

	var tr Transcript
	tr.Apply("head", 4)

	applied := tr.Apply("tail", 12)
	if applied.Suffix != "tail" {
		t.Fatalf("gapped fragment should append whole content, got %q", applied.Suffix)
	}
	if applied.Gap != 4 {
		t.Fatalf("expected gap of 4 bytes, got %d", applied.Gap)
	}
	if tr.Offset() != 12 {
		t.Fatalf("expected cursor 12, got %d", tr.Offset())
	}
}

func TestApplyEmptyContentIsNoop(t *testing.T) {
	t.Parallel()

	var tr Transcript
	if applied := tr.Apply("", 100); applied.Suffix != "" || applied.Gap != 0 {
		t.Fatalf("empty fragment should be a no-op: %+v", applied)
	}
	if tr.Offset() != 0 {
		t.Fatalf("empty fragment advanced the cursor: %d", tr.Offset())
	}
}

func TestApplyFullAppendsUnseenSuffix(t *testing.T) {
	t.Parallel()

	var tr Transcript
	tr.Apply("Starting\n", 9)

	applied := tr.ApplyFull("Starting\nDone")
	if applied.Suffix != "Done" {
		t.Fatalf("expected unseen suffix %q, got %q", "Done", applied.Suffix)
	}
	if tr.Offset() != 13 || tr.Text() != "Starting\nDone" {
		t.Fatalf("unexpected state: offset=%d text=%q", tr.Offset(), tr.Text())
	}

	if again := tr.ApplyFull("Starting\nDone"); again.Suffix != "" {
		t.Fatalf("replayed full transcript must be a no-op, got %q", again.Suffix)
	}
}

func TestResetRewindsCursor(t *testing.T) {
	t.Parallel()

	var tr Transcript
	tr.Apply(string(make([]byte, 500)), 500)

	tr.Reset()
	if tr.Offset() != 0 || tr.Text() != "" {
		t.Fatalf("reset left state behind: offset=%d len=%d", tr.Offset(), tr.Len())
	}

	applied := tr.Apply("fresh", 5)
	if applied.Suffix != "fresh" || tr.Offset() != 5 {
		t.Fatalf("fresh run did not start from zero: %+v offset=%d", applied, tr.Offset())
	}
}
