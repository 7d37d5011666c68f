package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"memebot/internal/audit"
	"memebot/internal/config"
	"memebot/internal/dispatch"
	"memebot/internal/generate"
	"memebot/internal/logging"
	"memebot/internal/metrics"
	"memebot/internal/poller"
	"memebot/internal/providers/cohere"
	"memebot/internal/providers/gemini"
	"memebot/internal/providers/openai"
	"memebot/internal/providers/stability"
	"memebot/internal/quota"
	"memebot/internal/store/botstate"
	"memebot/internal/xclient"
)

const maxAttempts = 6

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("MEMEBOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "./memebot.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error loading config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	db, err := botstate.Open(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error opening state store:", err)
		os.Exit(1)
	}
	defer db.Close()

	metrics.StartServer(cfg.Bot.MetricsAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var shuttingDown atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("shutdown_requested", nil)
		shuttingDown.Store(true)
		cancel()
	}()

	bot := buildPoller(ctx, cfg, db)

	// Outer retry wrapper: exponential backoff for anything that
	// escapes the poller's own error handling.
	attempts := 0
	for !shuttingDown.Load() {
		err := bot.Run(ctx)
		if shuttingDown.Load() || errors.Is(err, context.Canceled) {
			break
		}
		attempts++
		logging.Error("bot_error", map[string]any{"attempt": attempts, "error": err.Error()})
		if attempts >= maxAttempts {
			logging.Error("too_many_failures", nil)
			os.Exit(1)
		}
		wait := min(60*time.Second, time.Duration(1<<(attempts-1))*time.Second)
		logging.Info("retrying", map[string]any{"wait": wait.String()})
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
	logging.Info("graceful_shutdown", nil)
}

func buildPoller(ctx context.Context, cfg config.Config, db *botstate.DB) *poller.Poller {
	client := xclient.New(
		cfg.Credentials.ConsumerKey,
		cfg.Credentials.ConsumerSecret,
		cfg.Credentials.AccessToken,
		cfg.Credentials.AccessSecret,
	)

	oa := openai.NewClient(cfg.Providers.OpenAIAPIKey)
	textProviders := []generate.TextProvider{
		openai.NewTextProvider(oa, "gpt-4o"),
		openai.NewTextProvider(oa, "gpt-3.5-turbo"),
	}
	imageProviders := []generate.ImageProvider{
		openai.NewImageProvider(oa),
	}

	if cfg.Providers.GeminiAPIKey != "" {
		gm, err := gemini.NewClient(ctx, cfg.Providers.GeminiAPIKey)
		if err != nil {
			logging.Warn("gemini_disabled", map[string]any{"error": err.Error()})
		} else {
			textProviders = append(textProviders, gemini.NewTextProvider(gm))
			imageProviders = append(imageProviders, gemini.NewImageProvider(gm))
		}
	}
	if cfg.Providers.CohereAPIKey != "" {
		textProviders = append(textProviders, cohere.NewTextProvider(cohere.NewClient(cfg.Providers.CohereAPIKey)))
	}
	if cfg.Providers.StabilityAPIKey != "" {
		imageProviders = append(imageProviders, stability.New(cfg.Providers.StabilityAPIKey))
	}

	return poller.New(
		client,
		db,
		quota.NewGate(db),
		generate.NewTextCascade(textProviders...),
		generate.NewImageCascade(imageProviders...),
		dispatch.New(client, os.TempDir()),
		audit.NewLogger(db),
		poller.Options{
			BatchSize:     cfg.Bot.BatchSize,
			PollInterval:  cfg.Bot.PollInterval,
			RateLimitWait: cfg.Bot.RateLimitWait,
		},
	)
}
