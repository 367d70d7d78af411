package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"medcare.org/internal/ids"
)

// MemoryStore is a process-local Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if !matches(e, q) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Summarize(_ context.Context, start, end time.Time, resource string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		action   Action
		resource string
	}
	counts := make(map[key]int64)
	actors := make(map[string]int64)
	var total int64
	for _, e := range s.entries {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		if resource != "" && e.Resource != resource {
			continue
		}
		counts[key{e.Action, e.Resource}]++
		if e.UserID != "" {
			actors[e.UserID]++
		}
		total++
	}

	var sum Summary
	sum.TotalEvents = total
	for k, n := range counts {
		sum.ActionSummary = append(sum.ActionSummary, SummaryRow{
			Action:   k.action,
			Resource: k.resource,
			Count:    n,
		})
	}
	sort.Slice(sum.ActionSummary, func(i, j int) bool {
		return sum.ActionSummary[i].Count > sum.ActionSummary[j].Count
	})
	for id, n := range actors {
		sum.TopActiveUsers = append(sum.TopActiveUsers, ActorRow{UserID: id, Count: n})
	}
	sort.Slice(sum.TopActiveUsers, func(i, j int) bool {
		return sum.TopActiveUsers[i].Count > sum.TopActiveUsers[j].Count
	})
	if len(sum.TopActiveUsers) > 10 {
		sum.TopActiveUsers = sum.TopActiveUsers[:10]
	}
	return sum, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

func matches(e Entry, q Query) bool {
	if q.Resource != "" && e.Resource != q.Resource {
		return false
	}
	if q.ResourceID != "" && e.ResourceID != q.ResourceID {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if len(q.Actions) > 0 {
		found := false
		for _, a := range q.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.StartDate.IsZero() && e.Timestamp.Before(q.StartDate) {
		return false
	}
	if !q.EndDate.IsZero() && e.Timestamp.After(q.EndDate) {
		return false
	}
	return true
}
