package memory

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"deepthinks/pkg/logger"
)

// fallbackEncoding is used when the model has no registered tokenizer.
// cl100k_base is compatible with OpenAI chat models and close enough for
// budget accounting on everything else.
const fallbackEncoding = "cl100k_base"

// Counter counts tokens for a given model's tokenizer. Deterministic and
// side-effect free per call; encodings are resolved once per model and
// cached. An unknown model falls back to the default encoding instead of
// failing the turn.
type Counter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
	metrics   *logger.Metrics
}

func NewCounter(metrics *logger.Metrics) *Counter {
	return &Counter{
		encodings: make(map[string]*tiktoken.Tiktoken),
		metrics:   metrics,
	}
}

// Count returns the token count of text under the given model's tokenizer.
// Empty text counts as 0. Never returns a negative value and never fails.
func (c *Counter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	enc := c.encodingFor(model)
	if enc == nil {
		// No usable encoding at all: rough bytes-per-token estimate so the
		// budget accounting still moves.
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *Counter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.Warnf("[Counter] no tokenizer for model %q, falling back to %s: %v", model, fallbackEncoding, err)
		c.metrics.Emit(logger.MetricsEvent{
			LogType: logger.LTTokenizerFallbck,
			Phase:   logger.PhaseTokenizer,
			Event:   logger.EventPhaseError,
			Error:   err.Error(),
			Detail:  map[string]string{"model": model},
		})
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			logger.Errorf("[Counter] default encoding unavailable: %v", err)
			enc = nil
		}
	}
	// Cache even the nil result so the failure is logged once per model,
	// not once per turn.
	c.encodings[model] = enc
	return enc
}
