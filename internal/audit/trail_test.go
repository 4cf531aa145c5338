package audit

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestTrail_WritesJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	trail := NewTrail(&buf, nil)
	trail.Record(StitchEvent{SessionID: "s1", MessageIDs: []string{"m1", "m2"}})
	trail.Record(StitchEvent{SessionID: "s2", SummaryIncluded: true})
	trail.Close()

	out := buf.String()
	if !strings.Contains(out, `"session_id":"s1"`) || !strings.Contains(out, `"session_id":"s2"`) {
		t.Fatalf("events missing from trail output: %q", out)
	}
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected 2 JSON lines, got %q", out)
	}
}

func TestTrail_RecordAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	trail := NewTrail(&buf, nil)
	trail.Close()

	// Must not panic; the event is counted as a drop.
	trail.Record(StitchEvent{SessionID: "late"})
	if got := trail.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
	if strings.Contains(buf.String(), "late") {
		t.Fatalf("event written after close: %q", buf.String())
	}
}

func TestTrail_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	trail := NewTrail(nil, nil)
	trail.Close()
	trail.Close()
}

func TestTrail_ConcurrentRecordAndClose(t *testing.T) {
	t.Parallel()

	trail := NewTrail(&bytes.Buffer{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				trail.Record(StitchEvent{SessionID: "s"})
			}
		}()
	}
	trail.Close()
	wg.Wait()
}
