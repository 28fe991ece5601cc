// Package teamfilter holds the viewer's team filter: which teams' posts the feed
// shows, how it is persisted, and how a first filter is derived from followed teams.
package teamfilter

import (
	"sort"
	"strings"
)

// AllTeamsKey is the normalized key of the empty filter
const AllTeamsKey = "ALL"

// Filter is a set of team ids kept in first-seen order.
// The nil Filter means no restriction: posts from all teams.
type Filter []string

// Follow is a team the viewer follows
type Follow struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName,omitempty"`
}

// New builds a filter from ids, dropping blanks and duplicates.
// No ids yields the nil (all teams) filter.
func New(ids ...string) Filter {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make(Filter, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FromFollows derives a filter from followed teams. Zero follows yields the
// nil filter: a new viewer sees every team instead of an empty feed.
func FromFollows(follows []Follow) Filter {
	ids := make([]string, 0, len(follows))
	for _, f := range follows {
		ids = append(ids, f.TeamID)
	}
	return New(ids...)
}

// IsAll reports whether the filter places no restriction
func (f Filter) IsAll() bool {
	return len(f) == 0
}

// Contains reports whether teamID passes the filter
func (f Filter) Contains(teamID string) bool {
	if f.IsAll() {
		return true
	}
	for _, id := range f {
		if id == teamID {
			return true
		}
	}
	return false
}

// Equal compares two filters as sets, ignoring order
func (f Filter) Equal(other Filter) bool {
	if len(f) != len(other) {
		return false
	}
	set := make(map[string]struct{}, len(f))
	for _, id := range f {
		set[id] = struct{}{}
	}
	for _, id := range other {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Key returns "ALL" or the sorted ids joined by ",".
// Selection order never changes the key.
func (f Filter) Key() string {
	if f.IsAll() {
		return AllTeamsKey
	}
	ids := make([]string, len(f))
	copy(ids, f)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// TeamIDs returns a copy of the ids, nil for the all-teams filter
func (f Filter) TeamIDs() []string {
	if f.IsAll() {
		return nil
	}
	ids := make([]string, len(f))
	copy(ids, f)
	return ids
}
