// Package memstore provides an in-memory PresetStore used as the CLI
// default when no database is configured, and as a test double.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/persistence"
)

type Store struct {
	mu      sync.RWMutex
	presets map[string]map[string]persistence.ScanPreset // ownerID -> id -> preset
}

func New() *Store {
	return &Store{presets: make(map[string]map[string]persistence.ScanPreset)}
}

func (s *Store) Get(ctx context.Context, id, ownerID string) (*persistence.ScanPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.presets[ownerID][id]; ok {
		cp := clone(p)
		return &cp, nil
	}
	return nil, &scan.NotFoundError{Resource: "preset", ID: id}
}

func (s *Store) List(ctx context.Context, ownerID string) ([]persistence.ScanPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.presets[ownerID]
	out := make([]persistence.ScanPreset, 0, len(owned))
	for _, p := range owned {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Save(ctx context.Context, preset *persistence.ScanPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.presets[preset.OwnerID] == nil {
		s.presets[preset.OwnerID] = make(map[string]persistence.ScanPreset)
	}
	s.presets[preset.OwnerID][preset.ID] = clone(*preset)
	return nil
}

func (s *Store) Update(ctx context.Context, preset *persistence.ScanPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.presets[preset.OwnerID]
	if _, ok := owned[preset.ID]; !ok {
		return &scan.NotFoundError{Resource: "preset", ID: preset.ID}
	}
	owned[preset.ID] = clone(*preset)
	return nil
}

func (s *Store) Delete(ctx context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.presets[ownerID]
	if _, ok := owned[id]; !ok {
		return &scan.NotFoundError{Resource: "preset", ID: id}
	}
	delete(owned, id)
	return nil
}

func (s *Store) IncrementUsage(ctx context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.presets[ownerID]
	p, ok := owned[id]
	if !ok {
		return &scan.NotFoundError{Resource: "preset", ID: id}
	}
	p.UsageCount++
	p.UpdatedAt = time.Now().UTC()
	owned[id] = p
	return nil
}

// clone copies slice-typed fields so callers cannot mutate stored state.
func clone(p persistence.ScanPreset) persistence.ScanPreset {
	p.RecommendedStrategies = append([]string(nil), p.RecommendedStrategies...)
	p.Config.ExcludedSymbols = append([]string(nil), p.Config.ExcludedSymbols...)
	p.Config.ExcludedCategories = append([]string(nil), p.Config.ExcludedCategories...)
	p.Config.AllowedQuoteCurrencies = append([]string(nil), p.Config.AllowedQuoteCurrencies...)
	p.Config.MarketCapRanges = append([]scan.MarketCapRange(nil), p.Config.MarketCapRanges...)
	return p
}
