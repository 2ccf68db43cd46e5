package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v7"

	"deepthinks/internal/events"
	"deepthinks/internal/memory"
	"deepthinks/internal/prompts"
	"deepthinks/internal/session"
	"deepthinks/pkg/logger"
)

// Engine processes one conversation turn end to end: assemble context from
// the session's memory, generate the assistant response, then feed the
// completed turn back through the memory manager and persist the result.
type Engine struct {
	chain        compose.Runnable[[]*schema.Message, *schema.Message]
	manager      *memory.Manager
	store        *session.Store
	locker       *session.Locker
	systemPrompt string

	es      *elasticsearch.Client
	metrics *logger.Metrics
	emitter events.Emitter
}

type Config struct {
	Model   model.BaseChatModel // required
	Manager *memory.Manager     // required
	Store   *session.Store      // required

	SystemPrompt string // optional; defaults to the embedded assistant prompt
	Es           *elasticsearch.Client
	Emitter      events.Emitter
}

func NewEngine(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil || cfg.Model == nil || cfg.Manager == nil || cfg.Store == nil {
		return nil, fmt.Errorf("chat engine: model, manager and store are required")
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		var err error
		systemPrompt, err = prompts.GetSinglePrompt("assistant")
		if err != nil {
			return nil, fmt.Errorf("load assistant prompt: %w", err)
		}
	}

	chain, err := compose.NewChain[[]*schema.Message, *schema.Message]().
		AppendChatModel(cfg.Model).
		Compile(ctx, compose.WithGraphName("ChatCompletion"))
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}

	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Engine{
		chain:        chain,
		manager:      cfg.Manager,
		store:        cfg.Store,
		locker:       session.NewLocker(),
		systemPrompt: systemPrompt,
		es:           cfg.Es,
		metrics:      logger.NewMetrics(cfg.Es),
		emitter:      emitter,
	}, nil
}

// BuildContext assembles the model input: assistant system prompt, the
// long-term summary (when present), the verbatim ledger as alternating
// user/assistant messages, and finally the new prompt.
func BuildContext(systemPrompt string, st *memory.SessionState, prompt string) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2*len(st.Ledger)+3)
	if systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(systemPrompt))
	}
	if summary := renderSummary(st.Memory); summary != "" {
		msgs = append(msgs, schema.SystemMessage(summary))
	}
	for _, it := range st.Ledger {
		if it.Prompt != "" {
			msgs = append(msgs, schema.UserMessage(it.Prompt))
		}
		if it.Response != "" {
			msgs = append(msgs, schema.AssistantMessage(it.Response, nil))
		}
	}
	return append(msgs, schema.UserMessage(prompt))
}

func renderSummary(m *memory.LongTermMemory) string {
	if m == nil || (len(m.Interactions) == 0 && len(m.ImportantDetails) == 0) {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Here is a summary of the conversation so far:\n")
	if len(m.Interactions) > 0 {
		topics, _ := json.Marshal(m.Interactions)
		sb.WriteString("- Key topics discussed: ")
		sb.Write(topics)
		sb.WriteString("\n")
	}
	if len(m.ImportantDetails) > 0 {
		sb.WriteString("- Important details to remember: ")
		sb.WriteString(strings.Join(m.ImportantDetails, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ProcessTurn runs one full turn for the session and returns the assistant
// response together with what the turn did to the session's memory.
//
// The session lock is held for the whole read-modify-write sequence;
// concurrent turns for the same session queue behind it. Memory-path
// failures (summarizer down, malformed summary) never fail the turn: the
// response is still produced from the possibly over-budget buffer.
func (e *Engine) ProcessTurn(ctx context.Context, sess *session.Session, prompt string) (string, memory.TurnReport, error) {
	release := e.locker.Acquire(sess.Key())
	defer release()

	st, err := e.store.Load(ctx, sess.UserID, sess.Num)
	if err != nil {
		return "", memory.TurnReport{}, fmt.Errorf("load session state: %w", err)
	}

	msgs := BuildContext(e.systemPrompt, st, prompt)
	timer := logger.NewTimer()
	cb := &logger.ModelCallback{Es: e.es, Scope: "chat"}
	out, err := e.chain.Invoke(ctx, msgs, compose.WithCallbacks(cb))
	elapsed := timer.ElapsedMs()
	if err != nil {
		e.metrics.Emit(logger.MetricsEvent{
			LogType:    logger.LTChatError,
			Phase:      logger.PhaseTurn,
			Event:      logger.EventPhaseError,
			UserID:     sess.UserID,
			SessionNum: sess.Num,
			DurationMs: elapsed,
			Error:      err.Error(),
		})
		return "", memory.TurnReport{}, fmt.Errorf("chat completion: %w", err)
	}
	response := out.Content

	report := e.manager.AddInteraction(ctx, st, prompt, response)

	if err := e.store.Save(ctx, st); err != nil {
		// The response was already generated; losing one snapshot is
		// recoverable from chat_history, failing the turn is not.
		logger.Errorf("[Chat] save session %s failed: %v", sess.Key(), err)
	}
	if err := sess.Touch(ctx); err != nil {
		logger.Warnf("[Chat] touch session %s failed: %v", sess.Key(), err)
	}

	e.emitter.Emit(events.NewEvent(events.TypeResponseGenerated, sess.Key(), events.ResponseData{
		ContentLen: len(response),
		DurationMs: elapsed,
	}))
	e.metrics.Emit(logger.MetricsEvent{
		LogType:      logger.LTChatCompleted,
		Phase:        logger.PhaseTurn,
		Event:        logger.EventPhaseEnd,
		UserID:       sess.UserID,
		SessionNum:   sess.Num,
		TurnTokens:   report.TurnTokens,
		BufferTokens: report.BufferTokens,
		DynamicK:     report.DynamicK,
		DurationMs:   elapsed,
	})
	return response, report, nil
}
