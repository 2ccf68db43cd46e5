package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types for frontend consumption.
const (
	// Turn events
	TypeTurnAppended = "turn.appended"

	// Pruning events
	TypePruneTriggered = "prune.triggered"
	TypePruneCompleted = "prune.completed"
	TypePruneDeferred  = "prune.deferred"

	// Summarizer events
	TypeSummaryMerged = "summary.merged"
	TypeSummaryError  = "summary.error"

	// Chat events
	TypeResponseGenerated = "response.generated"

	// General
	TypeInfo  = "info"
	TypeError = "error"
)

// Event is the unified event structure sent to consumers (CLI printer, SSE endpoint, etc.).
// Data is a json.RawMessage so consumers can decode it based on Type.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an Event, marshaling data to JSON. If marshaling fails, data is set to null.
func NewEvent(eventType string, sessionID string, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("null")
	}
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      raw,
	}
}

// --- Typed event data structs (frontend-friendly JSON) ---

type TurnAppendedData struct {
	TurnTokens   int `json:"turn_tokens"`
	BufferTokens int `json:"buffer_tokens"`
	Interactions int `json:"interactions"`
}

type PruneTriggeredData struct {
	BufferTokens int `json:"buffer_tokens"`
	Ceiling      int `json:"ceiling"`
	DynamicK     int `json:"dynamic_k"`
}

type PruneCompletedData struct {
	Evicted      int   `json:"evicted"`
	Retained     int   `json:"retained"`
	DynamicK     int   `json:"dynamic_k"`
	BufferTokens int   `json:"buffer_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

type PruneDeferredData struct {
	BufferTokens int    `json:"buffer_tokens"`
	Ceiling      int    `json:"ceiling"`
	Reason       string `json:"reason"` // "nothing_evictable" or the merge error
}

type SummaryMergedData struct {
	Entries          int `json:"entries"`
	ImportantDetails int `json:"important_details"`
}

type ResponseData struct {
	ContentLen int   `json:"content_length"`
	DurationMs int64 `json:"duration_ms"`
}

type ErrorData struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

type InfoData struct {
	Message string `json:"message"`
}

// --- Emitter interface and channel-based implementation ---

// Emitter is the interface for publishing events. Implementations may push to a channel,
// write to ES, or stream via SSE.
type Emitter interface {
	Emit(event Event)
	Subscribe() <-chan Event
	Close()
}

// ChannelEmitter is a buffered channel-based Emitter.
type ChannelEmitter struct {
	bufSize int
	subs    []chan Event
	mu      sync.RWMutex
	closed  bool
}

// NewChannelEmitter creates a new emitter. Subscriber channels are buffered
// at bufSize (default 256).
func NewChannelEmitter(bufSize int) *ChannelEmitter {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &ChannelEmitter{bufSize: bufSize}
}

// Emit publishes an event to all subscribers. Non-blocking: drops if subscriber is full.
func (e *ChannelEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, sub := range e.subs {
		select {
		case sub <- event:
		default:
			// drop if subscriber can't keep up
		}
	}
}

// Subscribe returns a channel that receives all emitted events.
func (e *ChannelEmitter) Subscribe() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, e.bufSize)
	e.subs = append(e.subs, ch)
	return ch
}

// Close closes all subscriber channels.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, sub := range e.subs {
		close(sub)
	}
}

// NopEmitter is a no-op emitter for when event reporting is not needed.
type NopEmitter struct{}

func (NopEmitter) Emit(Event)              {}
func (NopEmitter) Subscribe() <-chan Event { return make(chan Event) }
func (NopEmitter) Close()                  {}
