// Package index owns the similarity index lifecycle: a lazy build on first
// use, an explicit Reload, and nearest-chunk retrieval for a query.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"github.com/xhad/shopmate/internal/types"
	"github.com/xhad/shopmate/pkg/corpus"
	"github.com/xhad/shopmate/pkg/processor"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrBuild marks a failed index build. The index stays unusable until a later
// call retries the build successfully.
var ErrBuild = errors.New("similarity index build failed")

const buildKey = "build"

// DocumentLoader produces the corpus documents for a source string.
type DocumentLoader interface {
	Load(ctx context.Context, sources string) ([]models.Document, error)
}

type Config struct {
	Source string
	TopK   int
}

type Index struct {
	config    Config
	loader    DocumentLoader
	processor processor.Processor
	embedder  types.Embedder
	store     types.VectorStore
	logger    *zap.Logger

	group singleflight.Group
	ready atomic.Bool
}

func New(config Config, loader DocumentLoader, proc processor.Processor,
	embedder types.Embedder, store types.VectorStore, logger *zap.Logger) *Index {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	return &Index{
		config:    config,
		loader:    loader,
		processor: proc,
		embedder:  embedder,
		store:     store,
		logger:    logging.OrNop(logger),
	}
}

func (ix *Index) Ready() bool {
	return ix.ready.Load()
}

// EnsureBuilt builds the index unless it is already built. Concurrent callers
// share one in-flight build; a caller whose ctx ends stops waiting without
// cancelling the build for the others.
func (ix *Index) EnsureBuilt(ctx context.Context) error {
	if ix.ready.Load() {
		return nil
	}
	return ix.shared(ctx, func(buildCtx context.Context) error {
		if ix.ready.Load() {
			return nil
		}
		return ix.build(buildCtx)
	})
}

// Reload rebuilds the index from the source. Searches keep answering from the
// previous contents until the new ones are stored.
func (ix *Index) Reload(ctx context.Context) error {
	return ix.shared(ctx, ix.build)
}

func (ix *Index) shared(ctx context.Context, fn func(context.Context) error) error {
	buildCtx := context.WithoutCancel(ctx)
	ch := ix.group.DoChan(buildKey, func() (interface{}, error) {
		return nil, fn(buildCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ix *Index) build(ctx context.Context) error {
	start := time.Now()
	ix.logger.Info("building similarity index", zap.String("source", ix.config.Source))

	docs, err := ix.loader.Load(ctx, ix.config.Source)
	if err != nil {
		return fmt.Errorf("%w: loading corpus: %w", ErrBuild, err)
	}

	chunks := ix.processor.Split(corpus.Text(docs))
	if len(chunks) == 0 {
		ix.logger.Warn("corpus is empty, index will answer with no context",
			zap.String("source", ix.config.Source))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embedding corpus: %w", ErrBuild, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", ErrBuild, len(vectors), len(chunks))
	}

	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = models.EmbeddedChunk{Chunk: c, Vector: vectors[i]}
	}

	if err := ix.store.Replace(ctx, embedded); err != nil {
		return fmt.Errorf("%w: storing chunks: %w", ErrBuild, err)
	}

	ix.ready.Store(true)
	ix.logger.Info("similarity index ready",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(embedded)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Retrieve returns the k chunks most similar to query, best first. A k of zero
// or less uses the configured default.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	if err := ix.EnsureBuilt(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = ix.config.TopK
	}

	vector, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := ix.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return chunks, nil
}
