package logger

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v7"
)

// ModelCallback logs chat/summarizer model invocations and ships them to ES.
// Attach it per call via compose.WithCallbacks.
type ModelCallback struct {
	Es    *elasticsearch.Client
	Scope string // "chat" or "summarizer", used as the ES log type prefix
	Step  int
}

func (cb *ModelCallback) scope() string {
	if cb.Scope == "" {
		return "model"
	}
	return cb.Scope
}

func (cb *ModelCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if err := SendWrappedLog(cb.Es, MetricsIndex, cb.scope()+".start", input); err != nil {
		Warnf("[%s] ES write failed on start: %v", info.Name, err)
	}
	cb.Step++
	if msgs, ok := input.([]*schema.Message); ok {
		Infof("[%s] step %d: %d messages in", info.Name, cb.Step, len(msgs))
		for _, m := range msgs {
			Infof("  [%s] %s", m.Role, TruncateForLog(m.Content, 100))
		}
	}
	return ctx
}

func (cb *ModelCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if err := SendWrappedLog(cb.Es, MetricsIndex, cb.scope()+".end", output); err != nil {
		Warnf("[%s] ES write failed on end: %v", info.Name, err)
	}
	if msg, ok := output.(*schema.Message); ok {
		Infof("[%s] done: %s", info.Name, TruncateForLog(msg.Content, 200))
	}
	return ctx
}

func (cb *ModelCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	_ = SendWrappedLog(cb.Es, MetricsIndex, cb.scope()+".error", map[string]string{"error": err.Error()})
	Errorf("[%s] error: %v", info.Name, err)
	return ctx
}

func (cb *ModelCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {

	go func() {
		defer func() {
			if err := recover(); err != nil {
				Errorf("[%s] stream panic: %v", info.Name, err)
			}
		}()
		defer output.Close() // remember to close the stream in defer

		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				Errorf("[%s] stream recv: %v", info.Name, err)
				return
			}
			if msg, ok := frame.(*schema.Message); ok && msg.Content != "" {
				Tokenf("%s", msg.Content)
			}
		}
	}()
	return ctx
}

func (cb *ModelCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}

// TruncateForLog flattens and truncates content for one-line log output.
func TruncateForLog(s string, maxLen int) string {
	flat := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		flat = append(flat, r)
	}
	if len(flat) > maxLen {
		return string(flat[:maxLen]) + "..."
	}
	return string(flat)
}
