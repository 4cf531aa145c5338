package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// StitchEvent records which session memory was injected into a prompt:
// the ids of the messages used, whether the session summary was included,
// and the vector sources consulted in the same assembly. Written
// best-effort for later debugging; never part of the request path.
type StitchEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	SessionID       string    `json:"session_id"`
	Query           string    `json:"query,omitempty"`
	MessageIDs      []string  `json:"message_ids"`
	SummaryIncluded bool      `json:"summary_included"`
	SourceIDs       []string  `json:"source_ids,omitempty"`
}

// Trail is an asynchronous audit sink. Record never blocks the caller:
// events go into a buffered channel and a background goroutine writes them
// as JSON lines. When the buffer is full the event is dropped and counted.
type Trail struct {
	events  chan StitchEvent
	log     *slog.Logger
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	dropped int64
}

// NewTrail starts a trail writing JSON lines to w. A nil w discards event
// payloads but still logs a debug line per event.
func NewTrail(w io.Writer, log *slog.Logger) *Trail {
	t := &Trail{
		events: make(chan StitchEvent, 256),
		log:    log,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run(w)
	return t
}

// Record enqueues an event. It never blocks and is safe after Close: a
// saturated or closed trail drops the event and counts the drop.
func (t *Trail) Record(ev StitchEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case <-t.quit:
		t.countDrop()
		return
	default:
	}
	select {
	case t.events <- ev:
	default:
		t.countDrop()
	}
}

func (t *Trail) countDrop() {
	t.mu.Lock()
	t.dropped++
	t.mu.Unlock()
}

// Dropped returns the number of events discarded because the trail buffer
// was full.
func (t *Trail) Dropped() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close stops the writer goroutine after draining queued events. The
// events channel stays open so late Record calls cannot panic; they are
// counted as drops instead.
func (t *Trail) Close() {
	t.once.Do(func() {
		close(t.quit)
		<-t.done
	})
}

func (t *Trail) run(w io.Writer) {
	defer close(t.done)
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	write := func(ev StitchEvent) {
		if enc != nil {
			if err := enc.Encode(ev); err != nil && t.log != nil {
				// Best-effort by contract: log and keep going.
				t.log.Debug("audit trail write failed", "error", err)
				return
			}
		}
		if t.log != nil {
			t.log.Debug("stitch audit",
				"session_id", ev.SessionID,
				"messages", len(ev.MessageIDs),
				"summary_included", ev.SummaryIncluded)
		}
	}
	for {
		select {
		case ev := <-t.events:
			write(ev)
		case <-t.quit:
			for {
				select {
				case ev := <-t.events:
					write(ev)
				default:
					return
				}
			}
		}
	}
}
