package memory

import (
	"time"

	"deepthinks/internal/common"
)

// Interaction is one user prompt paired with one assistant response.
// Immutable once created; on eviction a value copy is handed to the merger.
type Interaction struct {
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	TokenCount int       `json:"token_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// Ledger is the ordered short-term buffer of verbatim interactions for one
// session. Insertion order is significant.
type Ledger []Interaction

// TotalTokens is always recomputed from the members so the sum can never
// drift from the interactions it covers.
func (l Ledger) TotalTokens() int {
	total := 0
	for _, it := range l {
		total += it.TokenCount
	}
	return total
}

// SmoothingState carries the exponential moving average of tokens per
// interaction for one session. The zero value is the uninitialized state.
type SmoothingState struct {
	SmoothedAvgTokens float64 `json:"smoothed_avg_tokens"`
	Initialized       bool    `json:"initialized"`
}

// MemoryEntry is one condensed interaction inside the long-term summary.
// Field names follow the summarizer's JSON output schema. Summary and
// priority use tolerant decoding since the LLM occasionally returns arrays
// or quoted numbers.
type MemoryEntry struct {
	Timestamp       string            `json:"timestamp"`
	Summary         common.FlexString `json:"summary"`
	VerbatimContext common.FlexString `json:"verbatim_context,omitempty"`
	PriorityScore   common.FlexFloat  `json:"priority_score,omitempty"`
}

// LongTermMemory is the condensed persistent summary for one session:
// per-interaction digests plus extracted key facts. Mutated only by the
// merge operation. PriorityScore is advisory; nothing here prunes the
// long-term memory itself.
type LongTermMemory struct {
	Interactions     []MemoryEntry `json:"interactions"`
	ImportantDetails []string      `json:"important_details"`
}

// Clone returns a deep copy, so a failed merge attempt can never leave the
// caller holding aliased state.
func (m *LongTermMemory) Clone() *LongTermMemory {
	if m == nil {
		return nil
	}
	out := &LongTermMemory{
		Interactions:     make([]MemoryEntry, len(m.Interactions)),
		ImportantDetails: make([]string, len(m.ImportantDetails)),
	}
	copy(out.Interactions, m.Interactions)
	copy(out.ImportantDetails, m.ImportantDetails)
	return out
}

// SessionState is the full mutable memory state of one session. It is plain
// data: the manager operates on it but the caller owns loading, saving, and
// serializing access (single active writer per session).
type SessionState struct {
	UserID     int64
	SessionNum int

	Ledger    Ledger
	Smoothing SmoothingState
	Memory    *LongTermMemory // nil until the first successful prune
}
