package types

import (
	"context"

	"github.com/xhad/shopmate/internal/models"
)

// Collaborator contracts consumed by the response pipeline.

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// VectorStore holds embedded chunks. Replace swaps the full contents so that
// readers never observe a partially written index.
type VectorStore interface {
	Replace(ctx context.Context, chunks []models.EmbeddedChunk) error
	Search(ctx context.Context, vector []float32, k int) ([]models.Chunk, error)
	Count(ctx context.Context) (int, error)
	Close()
}

type HistoryStore interface {
	Append(ctx context.Context, conversationID, prompt, response string) error
	Load(ctx context.Context, conversationID string) ([]models.Turn, error)
	Clear(ctx context.Context, conversationID string) error
}

type PreferencesStore interface {
	GetPreferences(ctx context.Context, userID string) (*models.Preferences, error)
}

type ConversationIndex interface {
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
	AddConversationID(ctx context.Context, userID, conversationID string) error
}
