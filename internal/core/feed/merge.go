package feed

import (
	"sort"

	"Sideline/internal/metrics"
)

// MergeMode selects how a fetched page combines with the current list
type MergeMode int

const (
	// Replace discards the current list (page-1 fetches)
	Replace MergeMode = iota
	// Append adds a page to the current list (load more)
	Append
)

func (m MergeMode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// MergePage combines existing and incoming posts into a list with unique ids,
// ordered by createdAt descending then id descending. A later occurrence of an
// id replaces the earlier one. The inputs are not modified.
func MergePage(existing, incoming []Post, mode MergeMode) []Post {
	metrics.MergedPostsTotal.WithLabelValues(mode.String()).Add(float64(len(incoming)))

	size := len(incoming)
	if mode == Append {
		size += len(existing)
	}
	merged := make([]Post, 0, size)
	index := make(map[string]int, size)

	add := func(p Post) {
		if i, ok := index[p.ID]; ok {
			merged[i] = p
			return
		}
		index[p.ID] = len(merged)
		merged = append(merged, p)
	}

	if mode == Append {
		for _, p := range existing {
			add(p)
		}
	}
	for _, p := range incoming {
		add(p)
	}

	sortPosts(merged)
	return merged
}

// sortPosts orders newest first; ties on createdAt fall back to id descending
func sortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// BlockedSet is the set of user ids whose posts are hidden
type BlockedSet map[string]struct{}

// NewBlockedSet builds a set from ids
func NewBlockedSet(ids []string) BlockedSet {
	set := make(BlockedSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether userID is blocked
func (s BlockedSet) Has(userID string) bool {
	_, ok := s[userID]
	return ok
}

// IDs returns the blocked ids in no particular order
func (s BlockedSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// FilterBlocked returns the posts whose author is not in blocked
func FilterBlocked(posts []Post, blocked BlockedSet) []Post {
	if len(blocked) == 0 {
		return posts
	}
	kept := make([]Post, 0, len(posts))
	for _, p := range posts {
		if blocked.Has(p.AuthorID) {
			continue
		}
		kept = append(kept, p)
	}
	if dropped := len(posts) - len(kept); dropped > 0 {
		metrics.BlockedPostsDropped.Add(float64(dropped))
	}
	return kept
}
