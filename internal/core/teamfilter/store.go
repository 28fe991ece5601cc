package teamfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"Sideline/internal/core/storage"
)

// SelectedFilterKey is the storage key of the persisted filter.
// The key is stable across app versions and independent of the session.
const SelectedFilterKey = "selected_team_filter"

// Store persists the selected filter as a JSON array of team ids
type Store struct {
	kv     storage.Store
	logger *slog.Logger
}

// NewStore creates a filter store on top of kv
func NewStore(kv storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the persisted filter and whether one was set.
// A persisted [] is the all-teams filter and counts as set. A missing key,
// unreadable storage or malformed JSON all count as "not set"; none is an error
// for the caller.
func (s *Store) Load(ctx context.Context) (Filter, bool) {
	raw, err := s.kv.Get(ctx, SelectedFilterKey)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.logger.Warn("failed to read team filter, treating as unset", "error", err)
		}
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil || ids == nil {
		s.logger.Warn("malformed team filter in storage, treating as unset",
			"value", raw,
			"error", err)
		return nil, false
	}

	return New(ids...), true
}

// Save persists f; the all-teams filter is written as []
func (s *Store) Save(ctx context.Context, f Filter) error {
	ids := f.TeamIDs()
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode team filter: %w", err)
	}
	if err := s.kv.Set(ctx, SelectedFilterKey, string(data)); err != nil {
		return fmt.Errorf("failed to save team filter: %w", err)
	}
	return nil
}

// Clear removes the persisted filter so the next load falls back to the resolver
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, SelectedFilterKey); err != nil {
		return fmt.Errorf("failed to clear team filter: %w", err)
	}
	return nil
}
