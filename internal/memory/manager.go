package memory

import (
	"context"
	"fmt"
	"time"

	"deepthinks/internal/events"
	"deepthinks/pkg/logger"
)

// TokenCounter is the tokenizer collaborator contract: non-negative,
// deterministic for a model, 0 for empty text. Implemented by Counter.
type TokenCounter interface {
	Count(text, model string) int
}

// Merger condenses evicted interactions into the long-term memory. The
// returned value must be a new object; on error the existing memory is kept
// untouched. Implemented by the summarizer package.
type Merger interface {
	Merge(ctx context.Context, existing *LongTermMemory, evicted []Interaction) (*LongTermMemory, error)
}

// AuditLog records every interaction append-only, independent of pruning.
// Implemented by the session store's chat_history table.
type AuditLog interface {
	LogInteraction(ctx context.Context, userID int64, sessionNum int, it Interaction) error
}

// Manager runs the per-turn memory pipeline: count tokens, append to the
// ledger, advance the smoothed average, and prune into long-term memory
// when the buffer crosses the token ceiling.
//
// The manager holds no per-session state. The caller owns the SessionState
// and must serialize turns for the same session; distinct sessions are
// fully independent.
type Manager struct {
	counter TokenCounter
	merger  Merger
	audit   AuditLog // optional
	tuning  Tuning
	model   string // model id used for tokenization

	metrics *logger.Metrics
	emitter events.Emitter
}

func NewManager(counter TokenCounter, merger Merger, audit AuditLog, tuning Tuning, model string,
	metrics *logger.Metrics, emitter events.Emitter) *Manager {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Manager{
		counter: counter,
		merger:  merger,
		audit:   audit,
		tuning:  tuning,
		model:   model,
		metrics: metrics,
		emitter: emitter,
	}
}

// SessionKey identifies a session in events and metrics.
func SessionKey(userID int64, sessionNum int) string {
	return fmt.Sprintf("%d/%d", userID, sessionNum)
}

// AddInteraction records one completed turn and reshapes the session's
// memory under the token budget. It never fails the turn: every
// pruning-path error is absorbed, reported through events/metrics, and
// retried naturally on the next turn with updated statistics.
func (m *Manager) AddInteraction(ctx context.Context, st *SessionState, prompt, response string) TurnReport {
	key := SessionKey(st.UserID, st.SessionNum)

	tokens := m.counter.Count(prompt, m.model) + m.counter.Count(response, m.model)
	it := Interaction{
		Prompt:     prompt,
		Response:   response,
		TokenCount: tokens,
		Timestamp:  time.Now().UTC(),
	}

	if m.audit != nil {
		if err := m.audit.LogInteraction(ctx, st.UserID, st.SessionNum, it); err != nil {
			logger.Warnf("[Memory] audit log failed for %s: %v", key, err)
		}
	}

	st.Ledger = append(st.Ledger, it)

	var dynamicK int
	st.Smoothing, dynamicK = Advance(st.Smoothing, tokens, m.tuning)

	total := st.Ledger.TotalTokens()
	report := TurnReport{
		TurnTokens:   tokens,
		BufferTokens: total,
		DynamicK:     dynamicK,
	}

	m.emitter.Emit(events.NewEvent(events.TypeTurnAppended, key, events.TurnAppendedData{
		TurnTokens:   tokens,
		BufferTokens: total,
		Interactions: len(st.Ledger),
	}))
	m.metrics.Emit(logger.MetricsEvent{
		LogType:      logger.LTTurnAppended,
		Phase:        logger.PhaseTurn,
		Event:        logger.EventPhaseEnd,
		UserID:       st.UserID,
		SessionNum:   st.SessionNum,
		TurnTokens:   tokens,
		BufferTokens: total,
		DynamicK:     dynamicK,
	})

	if total <= m.tuning.MaxContextTokens {
		return report
	}

	report.Overflow = true
	m.emitter.Emit(events.NewEvent(events.TypePruneTriggered, key, events.PruneTriggeredData{
		BufferTokens: total,
		Ceiling:      m.tuning.MaxContextTokens,
		DynamicK:     dynamicK,
	}))
	logger.Infof("[Memory] %s over budget: %d tokens > %d ceiling, dynamic_k=%d",
		key, total, m.tuning.MaxContextTokens, dynamicK)

	retain, evict := Partition(st.Ledger, dynamicK)
	if len(evict) == 0 {
		// The whole buffer already fits in dynamicK interactions but still
		// exceeds the ceiling (e.g. one huge turn). Never evict the newest
		// interaction; accept the overflow for this turn.
		report.OverflowAccepted = true
		m.emitter.Emit(events.NewEvent(events.TypePruneDeferred, key, events.PruneDeferredData{
			BufferTokens: total,
			Ceiling:      m.tuning.MaxContextTokens,
			Reason:       "nothing_evictable",
		}))
		m.metrics.Emit(logger.MetricsEvent{
			LogType:      logger.LTPruneDeferred,
			Phase:        logger.PhasePrune,
			Event:        logger.EventPhaseEnd,
			UserID:       st.UserID,
			SessionNum:   st.SessionNum,
			BufferTokens: total,
			DynamicK:     dynamicK,
		})
		return report
	}

	timer := logger.NewTimer()
	merged, err := m.merger.Merge(ctx, st.Memory, evict)
	elapsed := timer.ElapsedMs()
	if err != nil {
		// Keep the ledger and the prior long-term memory byte-for-byte
		// unchanged; the next turn retries with updated statistics.
		report.MergeErr = err
		logger.Warnf("[Memory] %s summarization failed, buffer retained: %v", key, err)
		m.emitter.Emit(events.NewEvent(events.TypeSummaryError, key, events.ErrorData{
			Phase:   logger.PhaseSummarizer,
			Message: err.Error(),
		}))
		m.metrics.Emit(logger.MetricsEvent{
			LogType:      logger.LTSummaryError,
			Phase:        logger.PhaseSummarizer,
			Event:        logger.EventPhaseError,
			UserID:       st.UserID,
			SessionNum:   st.SessionNum,
			BufferTokens: total,
			DynamicK:     dynamicK,
			Evicted:      len(evict),
			DurationMs:   elapsed,
			Error:        err.Error(),
		})
		return report
	}

	st.Memory = merged
	st.Ledger = retain
	report.Pruned = true
	report.Evicted = len(evict)
	report.BufferTokens = retain.TotalTokens()

	logger.Infof("[Memory] %s pruned: summarized %d interactions, retained %d (%d tokens), dynamic_k=%d",
		key, len(evict), len(retain), report.BufferTokens, dynamicK)
	m.emitter.Emit(events.NewEvent(events.TypeSummaryMerged, key, events.SummaryMergedData{
		Entries:          len(merged.Interactions),
		ImportantDetails: len(merged.ImportantDetails),
	}))
	m.emitter.Emit(events.NewEvent(events.TypePruneCompleted, key, events.PruneCompletedData{
		Evicted:      len(evict),
		Retained:     len(retain),
		DynamicK:     dynamicK,
		BufferTokens: report.BufferTokens,
		DurationMs:   elapsed,
	}))
	m.metrics.Emit(logger.MetricsEvent{
		LogType:      logger.LTPruneCompleted,
		Phase:        logger.PhasePrune,
		Event:        logger.EventPhaseEnd,
		UserID:       st.UserID,
		SessionNum:   st.SessionNum,
		BufferTokens: report.BufferTokens,
		DynamicK:     dynamicK,
		Evicted:      len(evict),
		DurationMs:   elapsed,
	})
	return report
}
