package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Clock devuelve el ledger-time actual (altura de bloque).
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// EntropySource es la fuente de entropía diferida.
// La entropía de un punto solo es recuperable dentro de una ventana acotada
// posterior a ese punto; fuera de ella devuelve domain.ErrEntropyUnavailable,
// y antes de que exista domain.ErrEntropyPending.
type EntropySource interface {
	EntropyAt(ctx context.Context, point uint64) (common.Hash, error)
}

// Chain agrupa reloj y entropía, que en producción vienen del mismo nodo.
type Chain interface {
	Clock
	EntropySource
}
