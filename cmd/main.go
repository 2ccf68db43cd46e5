package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/elastic/go-elasticsearch/v7"

	"deepthinks/internal/chat"
	"deepthinks/internal/config"
	"deepthinks/internal/events"
	"deepthinks/internal/memory"
	"deepthinks/internal/session"
	"deepthinks/internal/summarizer"
	"deepthinks/pkg/logger"
)

func main() {
	userID := flag.Int64("user", 1, "user id owning the session")
	sessionNum := flag.Int("session", 0, "session number to resume (0 starts a new one)")
	verbose := flag.Bool("verbose", false, "print memory events as they happen")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	var esClient *elasticsearch.Client
	if cfg.ESAddress != "" {
		esClient, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{cfg.ESAddress},
			Username:  cfg.ESUsername,
			Password:  cfg.ESPassword,
		})
		if err != nil {
			logger.Fatalf("failed to create ES client: %v", err)
		}
	}
	metrics := logger.NewMetrics(esClient)

	store, err := session.OpenStore(cfg.DBPath)
	if err != nil {
		logger.Fatalf("failed to open session store %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.ChatModel,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		logger.Fatalf("failed to create chat model: %v", err)
	}
	summarizerModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.SummarizerModel,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		logger.Fatalf("failed to create summarizer model: %v", err)
	}

	merger, err := summarizer.New(ctx, &summarizer.Config{
		Model:   summarizerModel,
		Timeout: cfg.SummarizerTimeout,
		Es:      esClient,
	})
	if err != nil {
		logger.Fatalf("failed to create summarizer: %v", err)
	}

	emitter := events.NewChannelEmitter(0)
	defer emitter.Close()
	if *verbose {
		go printEvents(emitter.Subscribe())
	}

	counter := memory.NewCounter(metrics)
	manager := memory.NewManager(counter, merger, store, memory.Tuning{
		MaxContextTokens: cfg.MaxContextTokens,
		Alpha:            cfg.SmoothingFactor,
		KMin:             cfg.MinInteractions,
		KMax:             cfg.MaxInteractions,
	}, cfg.ChatModel, metrics, emitter)

	engine, err := chat.NewEngine(ctx, &chat.Config{
		Model:   chatModel,
		Manager: manager,
		Store:   store,
		Es:      esClient,
		Emitter: emitter,
	})
	if err != nil {
		logger.Fatalf("failed to create chat engine: %v", err)
	}

	sess, err := openSession(ctx, store, *userID, *sessionNum)
	if err != nil {
		logger.Fatalf("failed to open session: %v", err)
	}
	logger.Infof("session %s ready (model=%s, ceiling=%d tokens)", sess.Key(), cfg.ChatModel, cfg.MaxContextTokens)

	runREPL(ctx, engine, sess)
}

func openSession(ctx context.Context, store *session.Store, userID int64, num int) (*session.Session, error) {
	if num <= 0 {
		return session.NewSession(ctx, store, userID)
	}
	sess, err := session.ResumeSession(ctx, store, userID, num)
	if err != nil {
		return nil, err
	}
	history, err := sess.RecentHistory(ctx, 10)
	if err != nil {
		logger.Warnf("could not load recent history: %v", err)
		return sess, nil
	}
	for _, it := range history {
		fmt.Printf("you> %s\n", it.Prompt)
		fmt.Printf("assistant> %s\n", it.Response)
	}
	return sess, nil
}

func runREPL(ctx context.Context, engine *chat.Engine, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if prompt == "/quit" || prompt == "/exit" {
			break
		}

		resp, report, err := engine.ProcessTurn(ctx, sess, prompt)
		if err != nil {
			logger.Errorf("turn failed: %v", err)
			continue
		}
		fmt.Printf("assistant> %s\n", resp)
		logger.Tokenf("turn=%d buffer=%d dynamic_k=%d pruned=%v",
			report.TurnTokens, report.BufferTokens, report.DynamicK, report.Pruned)
	}
	logger.Infof("bye")
}

func printEvents(ch <-chan events.Event) {
	for evt := range ch {
		logger.Infof("[event] %s %s %s", evt.Type, evt.SessionID, string(evt.Data))
	}
}
