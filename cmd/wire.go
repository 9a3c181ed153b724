package main

import (
	"context"
	"fmt"

	"github.com/xhad/shopmate/internal/types"
	cfgPkg "github.com/xhad/shopmate/pkg/config"
	"github.com/xhad/shopmate/pkg/catalog"
	"github.com/xhad/shopmate/pkg/corpus"
	"github.com/xhad/shopmate/pkg/history"
	"github.com/xhad/shopmate/pkg/index"
	"github.com/xhad/shopmate/pkg/llm"
	"github.com/xhad/shopmate/pkg/parser"
	"github.com/xhad/shopmate/pkg/pipeline"
	"github.com/xhad/shopmate/pkg/processor"
	"github.com/xhad/shopmate/pkg/prompt"
	"github.com/xhad/shopmate/pkg/store"
	"github.com/xhad/shopmate/pkg/users"
	"github.com/xhad/shopmate/server"
	"go.uber.org/zap"
)

// app holds every long-lived component built from the configuration.
type app struct {
	pipeline *pipeline.Pipeline
	index    *index.Index
	catalog  *catalog.Catalog
	history  types.HistoryStore
	sessions *users.ConversationIndex
	prefs    *users.PreferencesStore
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) server(logger *zap.Logger) *server.Server {
	return server.New(server.Deps{
		Pipeline:      a.pipeline,
		History:       a.history,
		Conversations: a.sessions,
		Preferences:   a.prefs,
		Catalog:       a.catalog,
	}, logger)
}

func buildApp(ctx context.Context, cfg *cfgPkg.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
		RateLimit:   cfg.LLM.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var vectors types.VectorStore
	switch cfg.Retrieval.Backend {
	case cfgPkg.BackendPGVector:
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Database.VectorDim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		vectors = vs
	default:
		vectors = store.NewMemoryStore()
	}
	a.closers = append(a.closers, vectors.Close)

	if cfg.Database.URL != "" {
		hs, err := history.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.HistoryTable)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize history store: %w", err)
		}
		a.history = hs
		a.closers = append(a.closers, hs.Close)
	} else {
		hs, err := history.NewFileStore(cfg.Storage.HistoryDir, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize history store: %w", err)
		}
		a.history = hs
	}

	loader := corpus.NewWithConfig(corpus.LoaderConfig{
		RateLimit: cfg.Corpus.FetchRateLimit,
		Logger:    logger,
	})
	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Corpus.ChunkSize,
		ChunkOverlap: cfg.Corpus.ChunkOverlap,
	})
	a.index = index.New(index.Config{
		Source: cfg.Corpus.Source,
		TopK:   cfg.Retrieval.TopK,
	}, loader, proc, embedder, vectors, logger)

	a.catalog = catalog.New(cfg.Storage.ProductsFile, logger)
	if err := a.catalog.Load(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	a.prefs = users.NewPreferencesStore(cfg.Storage.UsersFile, logger)
	a.sessions = users.NewConversationIndex(cfg.Storage.SessionsFile)

	a.pipeline, err = pipeline.New(pipeline.Config{TopK: cfg.Retrieval.TopK}, pipeline.Deps{
		Index:         a.index,
		Preferences:   a.prefs,
		History:       a.history,
		Conversations: a.sessions,
		Composer:      prompt.NewComposer(cfg.Storage.PromptTemplateFile, cfg.Chat.HistoryTurns, logger),
		LLM:           chatEngine,
		Parser:        parser.New(a.catalog, logger),
		Catalog:       a.catalog,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}
