package history_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/shopmate/internal/models"
	"github.com/xhad/shopmate/pkg/history"
)

func newFileStore(t *testing.T) (*history.FileStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chat_history")
	s, err := history.NewFileStore(dir, nil)
	require.NoError(t, err)
	return s, dir
}

func TestFileStoreAppendLoadClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	turns, err := s.Load(ctx, "chat_unknown")
	require.NoError(t, err)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)

	require.NoError(t, s.Append(ctx, "chat_1", "hi", "hello"))
	require.NoError(t, s.Append(ctx, "chat_1", "boots?", "try PID107"))

	turns, err = s.Load(ctx, "chat_1")
	require.NoError(t, err)
	assert.Equal(t, []models.Turn{
		{Prompt: "hi", Response: "hello"},
		{Prompt: "boots?", Response: "try PID107"},
	}, turns)

	require.NoError(t, s.Clear(ctx, "chat_1"))
	turns, err = s.Load(ctx, "chat_1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, s.Append(ctx, "chat_1", "again", "yes"))
	turns, err = s.Load(ctx, "chat_1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)
	require.NoError(t, s.Append(ctx, "chat_abc", "q", "a"))

	reopened, err := history.NewFileStore(dir, nil)
	require.NoError(t, err)
	turns, err := reopened.Load(ctx, "chat_abc")
	require.NoError(t, err)
	assert.Equal(t, []models.Turn{{Prompt: "q", Response: "a"}}, turns)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chat_abc.json", entries[0].Name())
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, "chat_shared", fmt.Sprintf("q%d", i), "a"))
		}(i)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, fmt.Sprintf("chat_%d", i), "q", "a"))
		}(i)
	}
	wg.Wait()

	turns, err := s.Load(ctx, "chat_shared")
	require.NoError(t, err)
	assert.Len(t, turns, writers)

	for i := 0; i < writers; i++ {
		turns, err := s.Load(ctx, fmt.Sprintf("chat_%d", i))
		require.NoError(t, err)
		assert.Len(t, turns, 1)
	}
}

func TestFileStoreRejectsBadIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	for _, id := range []string{"", "../etc/passwd", "a/b", "chat 1"} {
		assert.ErrorIs(t, s.Append(ctx, id, "q", "a"), history.ErrInvalidConversationID, id)
		_, err := s.Load(ctx, id)
		assert.ErrorIs(t, err, history.ErrInvalidConversationID, id)
		assert.ErrorIs(t, s.Clear(ctx, id), history.ErrInvalidConversationID, id)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_bad.json"), []byte("{not json"), 0o644))

	_, err := s.Load(ctx, "chat_bad")
	assert.Error(t, err)
	assert.Error(t, s.Append(ctx, "chat_bad", "q", "a"))
}
