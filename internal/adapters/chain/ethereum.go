package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

const (
	// Límite conservador para endpoints RPC públicos.
	defaultRPCRatePerSec = 10

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// headerReader es lo que el adapter necesita de ethclient.Client.
type headerReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Ethereum usa un nodo JSON-RPC como reloj (altura de bloque) y su
// blockhash como entropía diferida.
type Ethereum struct {
	client  headerReader
	limiter *rate.Limiter
	window  uint64
	close   func()
}

// DialEthereum conecta con el nodo en rpcURL.
func DialEthereum(ctx context.Context, rpcURL string, window uint64, ratePerSec float64) (*Ethereum, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain.DialEthereum: dial %q: %w", rpcURL, err)
	}
	e := NewEthereum(client, window, ratePerSec)
	e.close = client.Close
	return e, nil
}

// NewEthereum envuelve un cliente ya conectado.
func NewEthereum(client headerReader, window uint64, ratePerSec float64) *Ethereum {
	if window == 0 {
		window = DefaultEntropyWindow
	}
	if ratePerSec <= 0 {
		ratePerSec = defaultRPCRatePerSec
	}
	return &Ethereum{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 5),
		window:  window,
	}
}

// Now implementa ports.Clock.
func (e *Ethereum) Now(ctx context.Context) (uint64, error) {
	var height uint64
	err := e.withRetry(ctx, func() error {
		var err error
		height, err = e.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("chain.Now: %w", err)
	}
	return height, nil
}

// EntropyAt implementa ports.EntropySource con el hash del bloque point.
// La ventana se revalida en cada llamada contra la altura actual.
func (e *Ethereum) EntropyAt(ctx context.Context, point uint64) (common.Hash, error) {
	height, err := e.Now(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := checkWindow(point, height, e.window); err != nil {
		return common.Hash{}, err
	}

	var header *types.Header
	err = e.withRetry(ctx, func() error {
		var err error
		header, err = e.client.HeaderByNumber(ctx, new(big.Int).SetUint64(point))
		return err
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain.EntropyAt: header %d: %w", point, err)
	}
	return header.Hash(), nil
}

// Close cierra la conexión RPC si la abrió DialEthereum.
func (e *Ethereum) Close() {
	if e.close != nil {
		e.close()
	}
}

// withRetry ejecuta fn con rate limiting y backoff exponencial.
func (e *Ethereum) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if werr := e.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("rate limiter: %w", werr)
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		slog.Warn("rpc call failed, retrying", "attempt", attempt+1, "err", err)
		wait := baseRetryWait << attempt
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("rpc failed after %d retries: %w", maxRetries, err)
}
