package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v7"

	"deepthinks/internal/common"
	"deepthinks/internal/memory"
	"deepthinks/internal/prompts"
	"deepthinks/pkg/logger"
)

var (
	// ErrConfigNil is returned when the config is nil.
	ErrConfigNil = errors.New("config is nil")

	// ErrModelRequired is returned when the model is not provided in config.
	ErrModelRequired = errors.New("model is required in config")

	// ErrSummarization wraps model/transport failures, including timeouts.
	ErrSummarization = errors.New("summarization failed")

	// ErrMalformedSummary is returned when the model's output does not parse
	// into the long-term memory structure.
	ErrMalformedSummary = errors.New("malformed summary")
)

// Config defines parameters for the long-term memory summarizer.
type Config struct {
	// Model generates the merged summaries. Required. A smaller model than
	// the main chat one is usually enough.
	Model model.BaseChatModel

	// Timeout bounds each summarizer call. Required; a timeout is treated
	// identically to any other merge failure.
	Timeout time.Duration

	// SystemPrompt overrides the embedded summarizer prompt. Optional.
	SystemPrompt string

	// Es optionally ships model-call logs to Elasticsearch.
	Es *elasticsearch.Client
}

func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.Model == nil {
		return ErrModelRequired
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

// Summarizer merges evicted interactions into a session's long-term memory
// via an LLM call. The chain is: ChatTemplate(system prompt) -> ChatModel.
type Summarizer struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
	es      *elasticsearch.Client
}

func New(ctx context.Context, cfg *Config) (*Summarizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		var err error
		systemPrompt, err = prompts.GetSinglePrompt("summarizer")
		if err != nil {
			return nil, fmt.Errorf("load summarizer prompt: %w", err)
		}
	}

	tpl := prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("Here is the conversation log to summarize:\n\n{{.conversation_log}}"))

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(tpl).
		AppendChatModel(cfg.Model).
		Compile(ctx, compose.WithGraphName("MemorySummarizer"))
	if err != nil {
		return nil, fmt.Errorf("compile summarizer chain: %w", err)
	}

	return &Summarizer{
		chain:   chain,
		timeout: cfg.Timeout,
		es:      cfg.Es,
	}, nil
}

// Merge condenses the evicted interactions together with the existing
// long-term memory into a new one. The existing memory is never mutated:
// on any failure the caller keeps it unchanged and retries next turn.
func (s *Summarizer) Merge(ctx context.Context, existing *memory.LongTermMemory, evicted []memory.Interaction) (*memory.LongTermMemory, error) {
	if len(evicted) == 0 {
		return existing.Clone(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cb := &logger.ModelCallback{Es: s.es, Scope: "summarizer"}
	msg, err := s.chain.Invoke(ctx,
		map[string]any{"conversation_log": renderLog(existing, evicted)},
		compose.WithCallbacks(cb))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSummarization, err)
	}

	merged, err := parseSummary(msg.Content)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// renderLog formats the previous summary plus the evicted interactions the
// way the summarizer prompt expects them.
func renderLog(existing *memory.LongTermMemory, evicted []memory.Interaction) string {
	var sb strings.Builder

	if existing != nil {
		interactions, _ := json.Marshal(existing.Interactions)
		sb.WriteString("Previous Summary:\n")
		sb.WriteString("- Interactions: ")
		sb.Write(interactions)
		sb.WriteString("\n- Important Details: ")
		sb.WriteString(strings.Join(existing.ImportantDetails, ", "))
		sb.WriteString("\n\n")
	}

	for _, it := range evicted {
		ts := it.Timestamp.Format(time.RFC3339)
		sb.WriteString("[" + ts + "] USER: " + it.Prompt + "\n")
		sb.WriteString("[" + ts + "] ASSISTANT: " + it.Response + "\n\n")
	}

	return sb.String()
}

// parseSummary locates and decodes the JSON object in the model output.
func parseSummary(content string) (*memory.LongTermMemory, error) {
	raw, err := common.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}

	var merged memory.LongTermMemory
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		return nil, fmt.Errorf("%w: %v | content: %s", ErrMalformedSummary, err, common.TruncateStr(content, 500))
	}
	if len(merged.Interactions) == 0 && len(merged.ImportantDetails) == 0 {
		return nil, fmt.Errorf("%w: empty summary object", ErrMalformedSummary)
	}
	return &merged, nil
}
