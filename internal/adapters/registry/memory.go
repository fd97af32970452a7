package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
)

// Competitor es un registro del NFT de competidor.
type Competitor struct {
	ID    uint64         `yaml:"id"`
	Owner common.Address `yaml:"owner"`
	Stats [3]uint8       `yaml:"stats"`
}

// Memory es un registro en memoria. Sirve para el modo simulado y para
// sembrar el pool de la casa.
type Memory struct {
	mu          sync.RWMutex
	competitors map[uint64]Competitor
}

// NewMemory crea el registro con los competidores dados.
func NewMemory(competitors ...Competitor) *Memory {
	m := &Memory{competitors: make(map[uint64]Competitor, len(competitors))}
	for _, c := range competitors {
		m.competitors[c.ID] = c
	}
	return m
}

// Mint registra (o reemplaza) un competidor.
func (m *Memory) Mint(c Competitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.competitors[c.ID] = c
}

// Transfer cambia el holder de un competidor.
func (m *Memory) Transfer(id uint64, to common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.competitors[id]
	if !ok {
		return fmt.Errorf("registry.Transfer: %d: %w", id, domain.ErrCompetitorUnknown)
	}
	c.Owner = to
	m.competitors[id] = c
	return nil
}

// OwnerOf implementa ports.CompetitorRegistry.
func (m *Memory) OwnerOf(_ context.Context, id uint64) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.competitors[id]
	if !ok {
		return common.Address{}, fmt.Errorf("registry.OwnerOf: %d: %w", id, domain.ErrCompetitorUnknown)
	}
	return c.Owner, nil
}

// Stats implementa ports.CompetitorRegistry.
func (m *Memory) Stats(_ context.Context, id uint64) ([3]uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.competitors[id]
	if !ok {
		return [3]uint8{}, fmt.Errorf("registry.Stats: %d: %w", id, domain.ErrCompetitorUnknown)
	}
	return c.Stats, nil
}
