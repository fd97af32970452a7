package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
)

// Store persiste el estado del ledger. Cada llamada a Update es atómica:
// si fn devuelve error no queda ninguna escritura aplicada.
type Store interface {
	// Update ejecuta fn dentro de una transacción de escritura serializada.
	Update(ctx context.Context, fn func(tx LedgerTx) error) error

	// View ejecuta fn con una vista de solo lectura.
	View(ctx context.Context, fn func(tx LedgerTx) error) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// LedgerTx son las tablas del ledger vistas desde una transacción.
type LedgerTx interface {
	Ledger(ctx context.Context) (domain.Ledger, error)
	SaveLedger(ctx context.Context, l domain.Ledger) error

	// Race devuelve domain.ErrRaceNotFound si el id no existe.
	Race(ctx context.Context, id uint64) (domain.Race, error)
	SaveRace(ctx context.Context, r domain.Race) error

	// Wager devuelve ok=false si no hay apuesta para la clave.
	Wager(ctx context.Context, key domain.WagerKey) (w domain.Wager, ok bool, err error)
	SaveWager(ctx context.Context, w domain.Wager) error

	// RaceHistory es la lista cronológica de carreras con apuestas del participante.
	RaceHistory(ctx context.Context, participant common.Address) ([]uint64, error)
	AppendRaceHistory(ctx context.Context, participant common.Address, raceID uint64) error

	Cursor(ctx context.Context, participant common.Address) (int, error)
	SaveCursor(ctx context.Context, participant common.Address, next int) error

	Queues(ctx context.Context) (domain.Queues, error)
	SaveQueues(ctx context.Context, q domain.Queues) error
}
