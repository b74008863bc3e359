package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_presets (
	id                     TEXT PRIMARY KEY,
	owner_id               TEXT NOT NULL,
	name                   TEXT NOT NULL,
	description            TEXT NOT NULL DEFAULT '',
	category               TEXT NOT NULL DEFAULT '',
	config                 JSONB NOT NULL,
	recommended_strategies TEXT[] NOT NULL DEFAULT '{}',
	usage_count            BIGINT NOT NULL DEFAULT 0,
	success_rate           DOUBLE PRECISION,
	is_system_preset       BOOLEAN NOT NULL DEFAULT FALSE,
	is_active              BOOLEAN NOT NULL DEFAULT TRUE,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_scan_presets_owner ON scan_presets (owner_id, updated_at DESC);
`

// presetRow mirrors the table layout; config is JSONB.
type presetRow struct {
	ID                    string         `db:"id"`
	OwnerID               string         `db:"owner_id"`
	Name                  string         `db:"name"`
	Description           string         `db:"description"`
	Category              string         `db:"category"`
	Config                []byte         `db:"config"`
	RecommendedStrategies pq.StringArray `db:"recommended_strategies"`
	UsageCount            int64          `db:"usage_count"`
	SuccessRate           *float64       `db:"success_rate"`
	IsSystemPreset        bool           `db:"is_system_preset"`
	IsActive              bool           `db:"is_active"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

// presetRepo implements persistence.PresetStore for PostgreSQL.
type presetRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPresetStore creates a PostgreSQL-backed preset store.
func NewPresetStore(db *sqlx.DB, timeout time.Duration) persistence.PresetStore {
	return &presetRepo{db: db, timeout: timeout}
}

// EnsureSchema creates the preset table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure preset schema: %w", err)
	}
	return nil
}

func (r *presetRepo) Get(ctx context.Context, id, ownerID string) (*persistence.ScanPreset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, owner_id, name, description, category, config,
		       recommended_strategies, usage_count, success_rate,
		       is_system_preset, is_active, created_at, updated_at
		FROM scan_presets
		WHERE id = $1 AND owner_id = $2`

	var row presetRow
	if err := r.db.GetContext(ctx, &row, query, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &scan.NotFoundError{Resource: "preset", ID: id}
		}
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}
	return rowToPreset(row)
}

func (r *presetRepo) List(ctx context.Context, ownerID string) ([]persistence.ScanPreset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, owner_id, name, description, category, config,
		       recommended_strategies, usage_count, success_rate,
		       is_system_preset, is_active, created_at, updated_at
		FROM scan_presets
		WHERE owner_id = $1
		ORDER BY updated_at DESC`

	var rows []presetRow
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}

	presets := make([]persistence.ScanPreset, 0, len(rows))
	for _, row := range rows {
		p, err := rowToPreset(row)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *p)
	}
	return presets, nil
}

func (r *presetRepo) Save(ctx context.Context, preset *persistence.ScanPreset) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	configJSON, err := json.Marshal(preset.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal preset config: %w", err)
	}

	query := `
		INSERT INTO scan_presets
			(id, owner_id, name, description, category, config,
			 recommended_strategies, usage_count, success_rate,
			 is_system_preset, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		preset.ID, preset.OwnerID, preset.Name, preset.Description, preset.Category,
		configJSON, pq.StringArray(preset.RecommendedStrategies), preset.UsageCount,
		preset.SuccessRate, preset.IsSystemPreset, preset.IsActive,
		preset.CreatedAt, preset.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate preset id %s: %w", preset.ID, err)
		}
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

func (r *presetRepo) Update(ctx context.Context, preset *persistence.ScanPreset) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	configJSON, err := json.Marshal(preset.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal preset config: %w", err)
	}

	query := `
		UPDATE scan_presets
		SET name = $3, description = $4, category = $5, config = $6,
		    recommended_strategies = $7, success_rate = $8,
		    is_system_preset = $9, is_active = $10, updated_at = $11
		WHERE id = $1 AND owner_id = $2`

	res, err := r.db.ExecContext(ctx, query,
		preset.ID, preset.OwnerID, preset.Name, preset.Description, preset.Category,
		configJSON, pq.StringArray(preset.RecommendedStrategies), preset.SuccessRate,
		preset.IsSystemPreset, preset.IsActive, preset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update preset: %w", err)
	}
	return requireOneRow(res, preset.ID)
}

func (r *presetRepo) Delete(ctx context.Context, id, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scan_presets WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	return requireOneRow(res, id)
}

// IncrementUsage is a single-record update so concurrent scans can apply
// it without any pipeline-wide lock.
func (r *presetRepo) IncrementUsage(ctx context.Context, id, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE scan_presets
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to increment preset usage: %w", err)
	}
	return requireOneRow(res, id)
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &scan.NotFoundError{Resource: "preset", ID: id}
	}
	return nil
}

func rowToPreset(row presetRow) (*persistence.ScanPreset, error) {
	var cfg scan.Config
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preset config: %w", err)
	}
	return &persistence.ScanPreset{
		ID:                    row.ID,
		OwnerID:               row.OwnerID,
		Name:                  row.Name,
		Description:           row.Description,
		Category:              row.Category,
		Config:                cfg,
		RecommendedStrategies: []string(row.RecommendedStrategies),
		UsageCount:            row.UsageCount,
		SuccessRate:           row.SuccessRate,
		IsSystemPreset:        row.IsSystemPreset,
		IsActive:              row.IsActive,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}, nil
}
