package audit

import (
	"context"

	"github.com/vigia-health/platform/internal/shared/types"
)

// AuditRepository defines the storage operations for the clinical audit log.
type AuditRepository interface {
	// Initialize loads initial state (last hash, sequence)
	Initialize(ctx context.Context) error

	// Append appends a new audit entry
	Append(ctx context.Context, entry *AuditEntry) error

	// FindByID finds an audit entry by ID
	FindByID(ctx context.Context, id types.ID) (*AuditEntry, error)

	// List lists audit entries with filters
	List(ctx context.Context, filter ListEntriesFilter) ([]*AuditEntry, int, error)

	// GetByResource gets audit entries for a specific resource
	GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*AuditEntry, error)

	// VerifyChain verifies the integrity of the audit chain
	VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error)

	// GetLastHash returns the last hash in the chain
	GetLastHash() string

	// GetSequence returns the current sequence number
	GetSequence() int64

	// Count returns the total number of audit entries
	Count(ctx context.Context) (int, error)
}

// VerifyResult reports the outcome of a chain verification pass
type VerifyResult struct {
	Valid          bool                `json:"valid"`
	Checked        int                 `json:"checked"`
	ContentValid   int                 `json:"content_valid"`
	ContentInvalid int                 `json:"content_invalid"`
	LinkageValid   int                 `json:"linkage_valid"`
	LinkageInvalid int                 `json:"linkage_invalid"`
	Violations     []string            `json:"violations,omitempty"`
	Entries        []VerifyEntryResult `json:"entries,omitempty"`
}

// VerifyEntryResult contains verification result for a single entry
type VerifyEntryResult struct {
	ID           types.ID `json:"id"`
	Sequence     int64    `json:"sequence"`
	Hash         string   `json:"hash"`
	ComputedHash string   `json:"computed_hash"`
	PrevHash     string   `json:"prev_hash"`
	Valid        bool     `json:"valid"`
	ContentValid bool     `json:"content_valid"`
	LinkageValid bool     `json:"linkage_valid"`
	Action       string   `json:"action"`
}

// Ensure implementations satisfy the interface
var (
	_ AuditRepository = (*KurrentDBRepository)(nil)
	_ AuditRepository = (*MemoryRepository)(nil)
)
