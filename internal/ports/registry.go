package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// CompetitorRegistry es el registro externo de competidores (NFT).
type CompetitorRegistry interface {
	// OwnerOf devuelve el holder actual o domain.ErrCompetitorUnknown.
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)

	// Stats devuelve los tres atributos del competidor, cada uno en [1,10].
	Stats(ctx context.Context, id uint64) ([3]uint8, error)
}
