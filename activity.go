// activity.go keeps the recent-activity list: committed renames, newest
// first, that a front end offers for undo.
package main

import (
	"slices"
	"sync"
)

// RecentActivity is a bounded, newest-first list of history entries.
type RecentActivity struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	limit   int
}

// NewRecentActivity creates a list holding at most limit entries.
func NewRecentActivity(limit int) *RecentActivity {
	if limit < 1 {
		limit = MaxHistoryEntries
	}
	return &RecentActivity{limit: limit}
}

// Load replaces the list, e.g. with history read at start-up. entries must
// be newest first.
func (a *RecentActivity) Load(entries []HistoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = slices.Clone(entries[:min(len(entries), a.limit)])
}

// Prepend records a new rename at the front, dropping the oldest entry past
// the limit.
func (a *RecentActivity) Prepend(e HistoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = slices.Insert(a.entries, 0, e)
	if len(a.entries) > a.limit {
		a.entries = a.entries[:a.limit]
	}
}

// Remove drops the entry with the given history ID. Reports whether it was
// present.
func (a *RecentActivity) Remove(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := slices.IndexFunc(a.entries, func(e HistoryEntry) bool { return e.ID == id })
	if i < 0 {
		return false
	}
	a.entries = slices.Delete(a.entries, i, i+1)
	return true
}

// List returns a copy, newest first.
func (a *RecentActivity) List() []HistoryEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.entries)
}

// Get returns the entry with the given history ID.
func (a *RecentActivity) Get(id string) (HistoryEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, e := range a.entries {
		if e.ID == id {
			return e, true
		}
	}
	return HistoryEntry{}, false
}
