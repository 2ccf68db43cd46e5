package logger

import (
	"time"

	"github.com/elastic/go-elasticsearch/v7"
)

const (
	MetricsIndex = "memory_logs"

	// Phases of a conversation turn
	PhaseTurn       = "turn"
	PhasePrune      = "prune"
	PhaseSummarizer = "summarizer"
	PhaseTokenizer  = "tokenizer"

	// LogType constants, used as ES filters to identify the reporting site
	LTTurnAppended     = "turn.appended"       // interaction appended to the ledger
	LTPruneTriggered   = "prune.triggered"     // buffer crossed the token ceiling
	LTPruneCompleted   = "prune.completed"     // eviction + merge succeeded, ledger truncated
	LTPruneDeferred    = "prune.deferred"      // overflow accepted, nothing evictable this turn
	LTSummaryMerged    = "summarizer.merged"   // long-term memory updated
	LTSummaryError     = "summarizer.error"    // summarizer call or parse failed
	LTTokenizerFallbck = "tokenizer.fallback"  // unknown model, default encoding used
	LTChatCompleted    = "chat.completed"      // assistant response generated
	LTChatError        = "chat.error"          // chat model failure

	EventPhaseStart = "phase_start"
	EventPhaseEnd   = "phase_end"
	EventPhaseError = "phase_error"
)

// MetricsEvent is the measurement document written to ES.
type MetricsEvent struct {
	Timestamp    time.Time   `json:"@timestamp"`
	LogType      string      `json:"log_type"`               // reporting site, e.g. "prune.completed"
	Phase        string      `json:"phase"`                  // turn / prune / summarizer / tokenizer
	Event        string      `json:"event"`                  // event subtype
	UserID       int64       `json:"user_id,omitempty"`      // owning user
	SessionNum   int         `json:"session_num,omitempty"`  // session number within the user
	TurnTokens   int         `json:"turn_tokens,omitempty"`  // tokens of the current interaction
	BufferTokens int         `json:"buffer_tokens,omitempty"`// cumulative ledger tokens
	DynamicK     int         `json:"dynamic_k,omitempty"`    // retained-interaction count chosen this turn
	Evicted      int         `json:"evicted,omitempty"`      // interactions handed to the summarizer
	DurationMs   int64       `json:"duration_ms,omitempty"`
	Error        string      `json:"error,omitempty"`
	Detail       interface{} `json:"detail,omitempty"`
}

// Metrics reports measurement events to ES.
type Metrics struct {
	es    *elasticsearch.Client
	index string
}

// NewMetrics creates a reporter; a nil client silently skips all emits.
func NewMetrics(es *elasticsearch.Client) *Metrics {
	return &Metrics{es: es, index: MetricsIndex}
}

// Emit reports one event; failure only warns, never blocks the turn.
func (m *Metrics) Emit(evt MetricsEvent) {
	if m == nil || m.es == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	logType := evt.LogType
	if logType == "" {
		logType = evt.Phase + "." + evt.Event
	}
	if err := SendWrappedLog(m.es, m.index, logType, evt); err != nil {
		Warnf("[Metrics] ES write failed (log_type=%s): %v", logType, err)
	}
}

// Timer measures elapsed wall time.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ElapsedMs() int64 {
	return time.Since(t.start).Milliseconds()
}
