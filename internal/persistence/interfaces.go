package persistence

import (
	"context"
	"time"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
)

// ScanPreset is a named, reusable scan configuration. System presets come
// from the static in-process catalog and never live in the store.
type ScanPreset struct {
	ID                    string      `json:"id" db:"id"`
	OwnerID               string      `json:"owner_id" db:"owner_id"`
	Name                  string      `json:"name" db:"name"`
	Description           string      `json:"description" db:"description"`
	Category              string      `json:"category" db:"category"`
	Config                scan.Config `json:"config" db:"config"`
	RecommendedStrategies []string    `json:"recommended_strategies" db:"recommended_strategies"`
	UsageCount            int64       `json:"usage_count" db:"usage_count"`
	SuccessRate           *float64    `json:"success_rate,omitempty" db:"success_rate"`
	IsSystemPreset        bool        `json:"is_system_preset" db:"is_system_preset"`
	IsActive              bool        `json:"is_active" db:"is_active"`
	CreatedAt             time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at" db:"updated_at"`
}

// PresetStore persists caller-owned presets. All reads and writes are
// owner-scoped; a missing record is reported as *scan.NotFoundError.
type PresetStore interface {
	// Get retrieves one preset owned by ownerID.
	Get(ctx context.Context, id, ownerID string) (*ScanPreset, error)

	// List retrieves all presets owned by ownerID, newest first.
	List(ctx context.Context, ownerID string) ([]ScanPreset, error)

	// Save inserts a new preset record.
	Save(ctx context.Context, preset *ScanPreset) error

	// Update replaces an existing owner-scoped preset record.
	Update(ctx context.Context, preset *ScanPreset) error

	// Delete removes an owner-scoped preset record.
	Delete(ctx context.Context, id, ownerID string) error

	// IncrementUsage bumps usage_count and updated_at as a single-record
	// update, safe to apply concurrently and at-least-once.
	IncrementUsage(ctx context.Context, id, ownerID string) error
}
