package chain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/derby/internal/domain"
)

// DefaultEntropyWindow es la ventana de blockhash de la EVM.
const DefaultEntropyWindow = 256

// SimChain es una cadena simulada y determinista: la entropía del punto p
// es keccak256(genesis ‖ uint256(p)) y solo se puede leer mientras
// p < altura ≤ p + window, igual que BLOCKHASH.
type SimChain struct {
	mu      sync.Mutex
	genesis common.Hash
	height  uint64
	window  uint64
}

// NewSimChain crea la cadena a la altura start.
func NewSimChain(genesis common.Hash, start, window uint64) *SimChain {
	if window == 0 {
		window = DefaultEntropyWindow
	}
	return &SimChain{genesis: genesis, height: start, window: window}
}

// Now implementa ports.Clock.
func (c *SimChain) Now(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

// EntropyAt implementa ports.EntropySource.
func (c *SimChain) EntropyAt(_ context.Context, point uint64) (common.Hash, error) {
	c.mu.Lock()
	height := c.height
	c.mu.Unlock()

	if err := checkWindow(point, height, c.window); err != nil {
		return common.Hash{}, err
	}
	return BlockEntropy(c.genesis, point), nil
}

// Advance mina n bloques y devuelve la nueva altura.
func (c *SimChain) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

// Run mina un bloque por intervalo hasta que se cancele el contexto.
func (c *SimChain) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := c.Advance(1)
			slog.Debug("sim chain block", "height", h)
		}
	}
}

// BlockEntropy es la entropía simulada de un punto.
func BlockEntropy(genesis common.Hash, point uint64) common.Hash {
	var w [32]byte
	for i := 0; i < 8; i++ {
		w[31-i] = byte(point >> (8 * i))
	}
	return crypto.Keccak256Hash(genesis[:], w[:])
}

// checkWindow aplica la ventana de disponibilidad: el punto tiene que estar
// minado (point < height) y no más de window bloques atrás.
func checkWindow(point, height, window uint64) error {
	if point >= height {
		return domain.ErrEntropyPending
	}
	if height-point > window {
		return domain.ErrEntropyUnavailable
	}
	return nil
}
