package teamfilter

import (
	"context"
	"fmt"
	"log/slog"
)

// TeamsSource returns the teams the authenticated viewer follows
type TeamsSource interface {
	GetMyTeams(ctx context.Context) ([]Follow, error)
}

// Resolver picks the initial filter for an authenticated viewer
type Resolver struct {
	teams  TeamsSource
	store  *Store
	logger *slog.Logger
}

// NewResolver creates a resolver that falls back to followed teams
func NewResolver(teams TeamsSource, store *Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{teams: teams, store: store, logger: logger}
}

// Initial returns the persisted filter, or derives one from followed teams when
// none is persisted. Only call this for authenticated viewers; guests always use
// the all-teams filter.
func (r *Resolver) Initial(ctx context.Context) (Filter, error) {
	if f, ok := r.store.Load(ctx); ok {
		return f, nil
	}
	return r.Resolve(ctx)
}

// Resolve derives the filter from followed teams and persists it immediately so it
// is not recomputed on the next load. Filter changes never touch the follows.
func (r *Resolver) Resolve(ctx context.Context) (Filter, error) {
	follows, err := r.teams.GetMyTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load followed teams: %w", err)
	}

	f := FromFollows(follows)
	if err := r.store.Save(ctx, f); err != nil {
		// The filter is still usable for this session
		r.logger.Warn("failed to persist default team filter", "error", err)
	}

	r.logger.Debug("default team filter resolved",
		"followed_teams", len(follows),
		"filter", f.Key())

	return f, nil
}
