package audit

import (
	"context"
	"sync"

	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// MemoryRepository keeps the audit chain in memory. It backs tests and the
// degraded mode where the event store is unavailable but handlers still
// want somewhere to append.
type MemoryRepository struct {
	mu       sync.Mutex
	entries  []*AuditEntry
	lastHash string
	sequence int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Initialize(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) Append(ctx context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	entry.Sequence = r.sequence
	entry.PrevHash = r.lastHash
	entry.Hash = entry.ComputeHash()

	r.entries = append(r.entries, entry)
	r.lastHash = entry.Hash
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id types.ID) (*AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.NotFound("audit entry", string(id))
}

func (r *MemoryRepository) List(ctx context.Context, filter ListEntriesFilter) ([]*AuditEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*AuditEntry
	// newest first, matching the KurrentDB read direction
	for i := len(r.entries) - 1; i >= 0; i-- {
		if matchesFilter(r.entries[i], filter) {
			matched = append(matched, r.entries[i])
		}
	}

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, total, nil
}

func (r *MemoryRepository) GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*AuditEntry, error) {
	entries, _, err := r.List(ctx, ListEntriesFilter{
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Limit:        limit,
	})
	return entries, err
}

func (r *MemoryRepository) VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// newest first
	var entries []*AuditEntry
	for i := len(r.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, r.entries[i])
	}

	return verifyEntries(entries, includeDetails), nil
}

func (r *MemoryRepository) GetLastHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHash
}

func (r *MemoryRepository) GetSequence() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}

func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), nil
}
