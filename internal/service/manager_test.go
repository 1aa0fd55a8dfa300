package service

import (
	"context"
	"strings"
	"testing"

	"github.com/leightonpayne/colab-phage-assembly/internal/dispatch"
)

func collectEvents(t *testing.T, raw string) []Event {
	t.Helper()
	sink := make(chan Event, 16)
	done := make(chan error, 1)
	go func() {
		err := scanEventStream(context.Background(), strings.NewReader(raw), sink)
		close(sink)
		done <- err
	}()

	var events []Event
	for event := range sink {
		events = append(events, event)
	}
	if err := <-done; err != nil {
		t.Fatalf("scanEventStream: %v", err)
	}
	return events
}

func TestScanEventStreamParsesChangeAndMessageFrames(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		": heartbeat",
		"event: change",
		`data: {"field":"status_state","value":"running"}`,
		"",
		"event: message",
		`data: {"kind":"log_batch","content":"Starting\n","new_offset":9}`,
		"",
		"event: message",
		`data: {"kind":"run_finished",`,
		`data: "status":"finished"}`,
		"",
	}, "\n")

	events := collectEvents(t, raw)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	change := events[0].Change
	if change == nil || change.Field != "status_state" || change.Value != "running" {
		t.Fatalf("unexpected change frame: %+v", events[0])
	}

	batch := events[1].Message
	if batch == nil || batch.Kind != dispatch.KindLogBatch || batch.NewOffset != 9 {
		t.Fatalf("unexpected message frame: %+v", events[1])
	}

	// Multi-line data frames are joined before decoding.
	finished := events[2].Message
	if finished == nil || finished.Kind != dispatch.KindRunFinished || finished.Status != "finished" {
		t.Fatalf("unexpected run_finished frame: %+v", events[2])
	}
}

func TestScanEventStreamFlushesTrailingFrame(t *testing.T) {
	t.Parallel()

	raw := "event: message\ndata: {\"kind\":\"result_ready\",\"data\":\"ZGF0YQ==\",\"name\":\"out.zip\"}"
	events := collectEvents(t, raw)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	msg := events[0].Message
	if msg == nil || msg.Kind != dispatch.KindResultReady || msg.Name != "out.zip" {
		t.Fatalf("unexpected trailing frame: %+v", events[0])
	}
}

func TestScanEventStreamRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	sink := make(chan Event, 1)
	err := scanEventStream(context.Background(), strings.NewReader("data: {nope\n\n"), sink)
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSidecarCommandPrefersConfigured(t *testing.T) {
	t.Parallel()

	m := NewManager("/tmp", []string{"python3", "-u", "svc.py"})
	bin, args := m.sidecarCommand()
	if bin != "python3" || len(args) != 2 || args[1] != "svc.py" {
		t.Fatalf("unexpected command: %q %v", bin, args)
	}

	fallback := NewManager("/tmp", nil)
	bin, args = fallback.sidecarCommand()
	if bin == "" || len(args) != 2 || !strings.HasSuffix(args[1], "pipeline_service.py") {
		t.Fatalf("unexpected fallback command: %q %v", bin, args)
	}
}
