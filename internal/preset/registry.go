// Package preset merges caller-owned presets with the static system
// catalog behind one facade and enforces ownership rules.
package preset

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/persistence"
)

// Registry resolves presets from two sources: the caller-owned store and
// the in-process system catalog. System presets are immutable and
// non-deletable through this API.
type Registry struct {
	store persistence.PresetStore

	mu     sync.Mutex
	system map[string]persistence.ScanPreset
}

// NewRegistry creates a registry over the given store, seeded with the
// built-in system catalog.
func NewRegistry(store persistence.PresetStore) *Registry {
	return &Registry{
		store:  store,
		system: systemCatalog(),
	}
}

// GetByID checks caller-owned presets first and falls back to the system
// catalog. Returns *scan.NotFoundError when the id is absent in both.
func (r *Registry) GetByID(ctx context.Context, id, callerID string) (*persistence.ScanPreset, error) {
	p, err := r.store.Get(ctx, id, callerID)
	if err == nil {
		return p, nil
	}
	var nf *scan.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sp, ok := r.system[id]; ok {
		cp := sp
		return &cp, nil
	}
	return nil, &scan.NotFoundError{Resource: "preset", ID: id}
}

// List returns caller-owned presets, optionally followed by the system
// catalog. Owned entries always come first.
func (r *Registry) List(ctx context.Context, callerID string, includeSystem bool) ([]persistence.ScanPreset, error) {
	owned, err := r.store.List(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !includeSystem {
		return owned, nil
	}

	r.mu.Lock()
	system := make([]persistence.ScanPreset, 0, len(r.system))
	for _, sp := range r.system {
		system = append(system, sp)
	}
	r.mu.Unlock()

	sort.Slice(system, func(i, j int) bool { return system[i].ID < system[j].ID })
	return append(owned, system...), nil
}

// Create stores a new caller-owned preset. The stored copy is always
// forced to is_system_preset=false; system presets are seeded only by
// the registry itself. A caller-supplied id must not collide with a
// system id, since GetByID checks the store first and the user preset
// would shadow the system one.
func (r *Registry) Create(ctx context.Context, p *persistence.ScanPreset, callerID string) (*persistence.ScanPreset, error) {
	if p.ID != "" && r.isSystem(p.ID) {
		return nil, &scan.PermissionError{Action: "create", Resource: "system preset " + p.ID}
	}

	cfg := p.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cp := *p
	cp.Config = cfg
	cp.OwnerID = callerID
	cp.IsSystemPreset = false
	cp.UsageCount = 0
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}

	if err := r.store.Save(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Update replaces a caller-owned preset. Targeting a system preset id
// yields *scan.PermissionError.
func (r *Registry) Update(ctx context.Context, p *persistence.ScanPreset, callerID string) (*persistence.ScanPreset, error) {
	if r.isSystem(p.ID) {
		return nil, &scan.PermissionError{Action: "update", Resource: "system preset " + p.ID}
	}

	cfg := p.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cp := *p
	cp.Config = cfg
	cp.OwnerID = callerID
	cp.IsSystemPreset = false
	cp.UpdatedAt = time.Now().UTC()

	if err := r.store.Update(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Delete removes a caller-owned preset. System presets always yield
// *scan.PermissionError, regardless of caller.
func (r *Registry) Delete(ctx context.Context, id, callerID string) error {
	if r.isSystem(id) {
		return &scan.PermissionError{Action: "delete", Resource: "system preset " + id}
	}
	return r.store.Delete(ctx, id, callerID)
}

// IncrementUsage bumps the usage counter for either source. System
// preset counters live in process memory; store-backed counters are a
// single-record update.
func (r *Registry) IncrementUsage(ctx context.Context, id, callerID string) error {
	r.mu.Lock()
	if sp, ok := r.system[id]; ok {
		sp.UsageCount++
		sp.UpdatedAt = time.Now().UTC()
		r.system[id] = sp
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	return r.store.IncrementUsage(ctx, id, callerID)
}

func (r *Registry) isSystem(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.system[id]
	return ok
}
