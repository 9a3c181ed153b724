package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var ErrAccessDenied = errors.New("conversation does not belong to user")

// ConversationIndex maps each user to the conversation ids they own.
type ConversationIndex struct {
	file jsonFile
}

func NewConversationIndex(path string) *ConversationIndex {
	return &ConversationIndex{file: jsonFile{path: path}}
}

func (ci *ConversationIndex) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	ci.file.mu.Lock()
	defer ci.file.mu.Unlock()

	sessions := map[string][]string{}
	if err := ci.file.load(&sessions); err != nil {
		return nil, err
	}
	ids := sessions[userID]
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// AddConversationID registers id for the user. Adding an id twice is a no-op.
func (ci *ConversationIndex) AddConversationID(ctx context.Context, userID, conversationID string) error {
	ci.file.mu.Lock()
	defer ci.file.mu.Unlock()

	sessions := map[string][]string{}
	if err := ci.file.load(&sessions); err != nil {
		return err
	}
	if slices.Contains(sessions[userID], conversationID) {
		return nil
	}
	sessions[userID] = append(sessions[userID], conversationID)
	return ci.file.save(sessions)
}

func (ci *ConversationIndex) RemoveConversationID(ctx context.Context, userID, conversationID string) error {
	ci.file.mu.Lock()
	defer ci.file.mu.Unlock()

	sessions := map[string][]string{}
	if err := ci.file.load(&sessions); err != nil {
		return err
	}
	i := slices.Index(sessions[userID], conversationID)
	if i < 0 {
		return nil
	}
	sessions[userID] = slices.Delete(sessions[userID], i, i+1)
	return ci.file.save(sessions)
}

// Owns returns ErrAccessDenied unless the user owns the conversation.
func (ci *ConversationIndex) Owns(ctx context.Context, userID, conversationID string) error {
	ids, err := ci.ListConversationIDs(ctx, userID)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, conversationID) {
		return fmt.Errorf("%w: %s", ErrAccessDenied, conversationID)
	}
	return nil
}
