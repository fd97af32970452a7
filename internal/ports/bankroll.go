package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Bankroll es la tesorería compartida. El motor nunca custodia fondos.
type Bankroll interface {
	AvailableBalance(ctx context.Context) (uint64, error)

	// Collect cobra amount al participante; un error aborta la apuesta.
	Collect(ctx context.Context, from common.Address, amount uint64) error

	// Pay transfiere amount al destinatario.
	Pay(ctx context.Context, to common.Address, amount uint64) error
}
