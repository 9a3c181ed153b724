package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"go.uber.org/zap"
)

// FileStore keeps one JSON file per conversation. Writers to the same
// conversation are serialized; different conversations proceed independently.
type FileStore struct {
	dir    string
	logger *zap.Logger
	locks  sync.Map // conversation id -> *sync.Mutex
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logging.OrNop(logger),
	}, nil
}

func (s *FileStore) lock(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Append(ctx context.Context, conversationID, prompt, response string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}

	mu := s.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	turns, err := s.read(conversationID)
	if err != nil {
		return err
	}
	turns = append(turns, models.Turn{Prompt: prompt, Response: response})
	return s.write(conversationID, turns)
}

// Load returns the conversation's turns in order. Unknown conversations are empty.
func (s *FileStore) Load(ctx context.Context, conversationID string) ([]models.Turn, error) {
	if err := ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	mu := s.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	return s.read(conversationID)
}

func (s *FileStore) Clear(ctx context.Context, conversationID string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}

	mu := s.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	return s.write(conversationID, []models.Turn{})
}

func (s *FileStore) read(id string) ([]models.Turn, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history %s: %w", id, err)
	}

	turns := []models.Turn{}
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", id, err)
	}
	return turns, nil
}

// write replaces the file through a rename so a crash never leaves a torn log.
func (s *FileStore) write(id string, turns []models.Turn) error {
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing history %s: %w", id, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing history %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing history %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("writing history %s: %w", id, err)
	}

	s.logger.Debug("history saved", zap.String("conversation_id", id), zap.Int("turns", len(turns)))
	return nil
}
