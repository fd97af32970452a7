package treasury

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
)

// Memory es un bankroll en memoria con saldos por participante.
// Collect mueve fondos del participante al bankroll; Pay al revés.
type Memory struct {
	mu       sync.Mutex
	bankroll uint64
	balances map[common.Address]uint64
}

// NewMemory crea un bankroll con el saldo inicial dado.
func NewMemory(initial uint64) *Memory {
	return &Memory{bankroll: initial, balances: make(map[common.Address]uint64)}
}

// Deposit acredita saldo a un participante.
func (m *Memory) Deposit(to common.Address, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[to] += amount
}

// Fund añade fondos al bankroll.
func (m *Memory) Fund(amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bankroll += amount
}

// BalanceOf devuelve el saldo de un participante.
func (m *Memory) BalanceOf(who common.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[who]
}

// AvailableBalance implementa ports.Bankroll.
func (m *Memory) AvailableBalance(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bankroll, nil
}

// Collect implementa ports.Bankroll.
func (m *Memory) Collect(_ context.Context, from common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return fmt.Errorf("treasury.Collect: %s has %d, needs %d: %w",
			from.Hex(), m.balances[from], amount, domain.ErrTransferFailed)
	}
	m.balances[from] -= amount
	m.bankroll += amount
	return nil
}

// Pay implementa ports.Bankroll.
func (m *Memory) Pay(_ context.Context, to common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bankroll < amount {
		return fmt.Errorf("treasury.Pay: bankroll %d < %d: %w", m.bankroll, amount, domain.ErrTransferFailed)
	}
	m.bankroll -= amount
	m.balances[to] += amount
	return nil
}
