// Package users stores the per-user data the chat pipeline reads: shopping
// preferences and the list of conversations each user owns.
package users

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"go.uber.org/zap"
)

// DefaultSize is assumed when a stored preference record has no size.
const DefaultSize = "M"

const preferencesKey = "preferences"

type storedPreferences struct {
	Size       *string  `json:"size"`
	Colors     []string `json:"colors"`
	Categories []string `json:"categories"`
}

// PreferencesStore reads and writes the preferences field of each record in
// the users file. Other fields of a record are left as they are.
type PreferencesStore struct {
	file   jsonFile
	logger *zap.Logger
}

func NewPreferencesStore(path string, logger *zap.Logger) *PreferencesStore {
	return &PreferencesStore{
		file:   jsonFile{path: path},
		logger: logging.OrNop(logger),
	}
}

// GetPreferences returns nil, and no error, for unknown users and users who
// never saved preferences.
func (s *PreferencesStore) GetPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	records := map[string]map[string]json.RawMessage{}
	if err := s.file.load(&records); err != nil {
		return nil, err
	}

	raw, ok := records[userID][preferencesKey]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	var stored storedPreferences
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn("ignoring unreadable preferences", zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}
	if stored.Size == nil && stored.Colors == nil && stored.Categories == nil {
		return nil, nil
	}

	prefs := &models.Preferences{
		Size:       DefaultSize,
		Colors:     stored.Colors,
		Categories: stored.Categories,
	}
	if stored.Size != nil {
		prefs.Size = *stored.Size
	}
	if prefs.Colors == nil {
		prefs.Colors = []string{}
	}
	if prefs.Categories == nil {
		prefs.Categories = []string{}
	}
	return prefs, nil
}

func (s *PreferencesStore) SetPreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	records := map[string]map[string]json.RawMessage{}
	if err := s.file.load(&records); err != nil {
		return err
	}

	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	if records[userID] == nil {
		records[userID] = map[string]json.RawMessage{}
	}
	records[userID][preferencesKey] = raw

	return s.file.save(records)
}
