package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	cfgPkg "github.com/xhad/shopmate/pkg/config"
	"github.com/xhad/shopmate/pkg/pipeline"
	"go.uber.org/zap"
)

type flags struct {
	configPath string
	serve      bool
	addr       string
	source     string
	ollamaURL  string
	dbURL      string
	model      string
	backend    string
	userID     string
	logLevel   string
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	f := parseFlags()

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, cfg, logger); err != nil {
		logger.Fatal("shopmate exited", zap.Error(err))
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.BoolVar(&f.serve, "serve", false, "Serve the HTTP and websocket API instead of the interactive chat")
	flag.StringVar(&f.addr, "addr", "", "Listen address for -serve")
	flag.StringVar(&f.source, "source", "", "Corpus source: text file, HTML file or URL (comma separated)")
	flag.StringVar(&f.ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&f.model, "model", "", "LLM model to use")
	flag.StringVar(&f.backend, "backend", "", "Vector backend: memory or pgvector")
	flag.StringVar(&f.userID, "user", "local", "User id for the interactive chat")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level")
	flag.Parse()

	return f
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(f flags) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.source != "" {
		cfg.Corpus.Source = f.source
	}
	if f.ollamaURL != "" {
		if cfg.Embedding.BaseURL == cfg.LLM.BaseURL {
			cfg.Embedding.BaseURL = f.ollamaURL
		}
		cfg.LLM.BaseURL = f.ollamaURL
	}
	if f.dbURL != "" {
		cfg.Database.URL = f.dbURL
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.backend != "" {
		cfg.Retrieval.Backend = f.backend
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return cfg, nil
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// withSpinner runs fn while a spinner ticks on stdout.
func withSpinner(description string, fn func()) {
	spinner := getSpinner(description)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	for {
		select {
		case <-done:
			spinner.Finish()
			fmt.Print("\r")
			return
		default:
			spinner.Add(1)
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func run(ctx context.Context, f flags, cfg *cfgPkg.Config, logger *zap.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if f.serve {
		// Build eagerly so the first request doesn't pay for it; a failure
		// here is retried on the first chat.
		if err := a.index.EnsureBuilt(ctx); err != nil {
			logger.Error("initial index build failed", zap.Error(err))
		}
		return a.server(logger).ListenAndServe(ctx, cfg.Server.Addr)
	}

	return chat(ctx, a, f.userID, cfg.Corpus.Source)
}

func chat(ctx context.Context, a *app, userID, source string) error {
	color.Blue("\nIndexing %s\n", source)
	var buildErr error
	withSpinner("📚 Building knowledge index...", func() {
		buildErr = a.index.EnsureBuilt(ctx)
	})
	if buildErr != nil {
		return buildErr
	}
	color.Green("✓ Knowledge index ready\n")

	color.Cyan("\nAsk about our products (type 'exit' to quit, '/new' for a new chat, '/reload' to reindex)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	productPrompt := color.New(color.FgYellow).PrintfFunc()

	conversationID := ""
	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit":
			return nil
		case "/new":
			conversationID = ""
			color.Blue("Started a new chat\n")
			continue
		case "/reload":
			var err error
			withSpinner("🔄 Reloading catalog and index...", func() {
				err = a.pipeline.Reload(ctx)
			})
			if err != nil {
				color.Red("Reload failed: %v\n", err)
			} else {
				color.Green("✓ Reloaded\n")
			}
			continue
		}

		var reply models.ChatReply
		var err error
		withSpinner("🤖 Generating response...", func() {
			reply, err = a.pipeline.HandleMessage(ctx, models.ChatMessage{
				Message:        query,
				ConversationID: conversationID,
				UserID:         userID,
			})
		})
		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}
		conversationID = reply.ConversationID

		assistantPrompt("Assistant: %s\n", reply.Answer)
		for _, id := range reply.ProductIDs {
			if p, err := a.catalog.Find(id); err == nil {
				productPrompt("  • %s (%s) $%.2f\n", p.Name, p.ID, p.Price)
			}
		}
		if reply.Answer != pipeline.ApologyAnswer {
			color.New(color.Faint).Printf("  (%.2fs)\n", reply.LatencySeconds)
		}
	}

	return scanner.Err()
}
