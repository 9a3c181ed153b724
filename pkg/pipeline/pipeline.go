// Package pipeline answers one chat message: it retrieves context, composes a
// prompt, asks the model and parses the reply. Failures anywhere along the
// way turn into a fixed apology instead of reaching the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"github.com/xhad/shopmate/internal/types"
	"github.com/xhad/shopmate/pkg/parser"
	"github.com/xhad/shopmate/pkg/prompt"
	"go.uber.org/zap"
)

// ApologyAnswer is the only failure text users ever see.
const ApologyAnswer = "I encountered an error processing your request. Please try again."

var ErrEmptyMessage = errors.New("message is empty")

// Degraded is the result returned whenever the pipeline fails.
func Degraded() models.PipelineResult {
	return models.PipelineResult{
		Answer:     ApologyAnswer,
		Context:    []models.Chunk{},
		ProductIDs: []string{},
	}
}

// NewConversationID returns an id of the form chat_1a2b3c4d.
func NewConversationID() string {
	return "chat_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

type Retriever interface {
	EnsureBuilt(ctx context.Context) error
	Reload(ctx context.Context) error
	Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error)
}

type Composer interface {
	Compose(in prompt.Input) (string, error)
}

type ResponseParser interface {
	Parse(raw string) parser.Result
}

type CatalogLoader interface {
	Load() error
}

type Config struct {
	TopK int
}

// Deps are the collaborators a Pipeline sequences. Catalog may be nil when
// the catalog is not reloadable.
type Deps struct {
	Index         Retriever
	Preferences   types.PreferencesStore
	History       types.HistoryStore
	Conversations types.ConversationIndex
	Composer      Composer
	LLM           types.Completer
	Parser        ResponseParser
	Catalog       CatalogLoader
}

type Pipeline struct {
	config Config
	deps   Deps
	logger *zap.Logger
}

func New(config Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Index == nil:
		return nil, fmt.Errorf("pipeline: index is required")
	case deps.Preferences == nil:
		return nil, fmt.Errorf("pipeline: preferences store is required")
	case deps.History == nil:
		return nil, fmt.Errorf("pipeline: history store is required")
	case deps.Conversations == nil:
		return nil, fmt.Errorf("pipeline: conversation index is required")
	case deps.Composer == nil:
		return nil, fmt.Errorf("pipeline: composer is required")
	case deps.LLM == nil:
		return nil, fmt.Errorf("pipeline: completer is required")
	case deps.Parser == nil:
		return nil, fmt.Errorf("pipeline: parser is required")
	}

	return &Pipeline{
		config: config,
		deps:   deps,
		logger: logging.OrNop(logger),
	}, nil
}

// Respond always returns a result. Any error or panic along the way is logged
// and replaced with Degraded().
func (p *Pipeline) Respond(ctx context.Context, question, conversationID, userID string) (result models.PipelineResult) {
	fields := []zap.Field{
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("response pipeline panicked", append(fields, zap.Any("panic", r))...)
			result = Degraded()
		}
	}()

	result, err := p.respond(ctx, question, conversationID, userID)
	if err != nil {
		p.logger.Error("response pipeline failed", append(fields, zap.Error(err))...)
		return Degraded()
	}

	p.logger.Info("response ready", append(fields,
		zap.Int("context_chunks", len(result.Context)),
		zap.Strings("product_ids", result.ProductIDs),
		zap.Float64("latency", result.LatencySeconds))...)
	return result
}

func (p *Pipeline) respond(ctx context.Context, question, conversationID, userID string) (models.PipelineResult, error) {
	if err := p.deps.Index.EnsureBuilt(ctx); err != nil {
		return models.PipelineResult{}, err
	}

	prefs, err := p.deps.Preferences.GetPreferences(ctx, userID)
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("loading preferences: %w", err)
	}

	var turns []models.Turn
	if conversationID != "" {
		turns, err = p.deps.History.Load(ctx, conversationID)
		if err != nil {
			return models.PipelineResult{}, fmt.Errorf("loading history: %w", err)
		}
	}

	chunks, err := p.deps.Index.Retrieve(ctx, question, p.config.TopK)
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("retrieving context: %w", err)
	}
	if chunks == nil {
		chunks = []models.Chunk{}
	}

	text, err := p.deps.Composer.Compose(prompt.Input{
		Question:    question,
		Preferences: prefs,
		History:     turns,
		Context:     chunks,
	})
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("composing prompt: %w", err)
	}

	start := time.Now()
	raw, err := p.deps.LLM.Complete(ctx, text)
	latency := time.Since(start)
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("completing prompt: %w", err)
	}

	parsed := p.deps.Parser.Parse(raw)
	return models.PipelineResult{
		Answer:         parsed.Answer,
		Context:        chunks,
		ProductIDs:     parsed.ProductIDs,
		LatencySeconds: latency.Seconds(),
	}, nil
}

// HandleMessage answers msg and records the turn. A message without a
// conversation id starts a new conversation owned by msg.UserID.
func (p *Pipeline) HandleMessage(ctx context.Context, msg models.ChatMessage) (models.ChatReply, error) {
	if strings.TrimSpace(msg.Message) == "" {
		return models.ChatReply{}, ErrEmptyMessage
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = NewConversationID()
		if err := p.deps.Conversations.AddConversationID(ctx, msg.UserID, conversationID); err != nil {
			p.logger.Error("failed to register conversation",
				zap.String("conversation_id", conversationID),
				zap.String("user_id", msg.UserID),
				zap.Error(err))
		}
	}

	result := p.Respond(ctx, msg.Message, conversationID, msg.UserID)

	if err := p.deps.History.Append(ctx, conversationID, msg.Message, result.Answer); err != nil {
		p.logger.Error("failed to record turn",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}

	return models.ChatReply{
		PipelineResult: result,
		ConversationID: conversationID,
	}, nil
}

// Reload rebuilds the similarity index and rereads the catalog.
func (p *Pipeline) Reload(ctx context.Context) error {
	if p.deps.Catalog != nil {
		if err := p.deps.Catalog.Load(); err != nil {
			return fmt.Errorf("reloading catalog: %w", err)
		}
	}
	if err := p.deps.Index.Reload(ctx); err != nil {
		return fmt.Errorf("reloading index: %w", err)
	}
	return nil
}
