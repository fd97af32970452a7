package domain

import "github.com/ethereum/go-ethereum/common"

// Wager es una apuesta de un participante en una carrera.
// Como mucho una por (participante, carrera, mercado).
type Wager struct {
	RaceID      uint64         `json:"race_id"`
	Participant common.Address `json:"participant"`
	BetType     BetType        `json:"bet_type"`
	Lane        uint8          `json:"lane"`
	Stake       uint64         `json:"stake"`
	Claimed     bool           `json:"claimed"`
	PlacedAt    uint64         `json:"placed_at"`
}

// WagerKey identifica una apuesta.
type WagerKey struct {
	RaceID      uint64
	Participant common.Address
	BetType     BetType
}

// Key devuelve la clave de la apuesta.
func (w Wager) Key() WagerKey {
	return WagerKey{RaceID: w.RaceID, Participant: w.Participant, BetType: w.BetType}
}

// ClaimCursor es la posición del participante en su historial de carreras.
// Next indexa la primera carrera con apuestas pendientes de claim.
type ClaimCursor struct {
	Participant common.Address `json:"participant"`
	Next        int            `json:"next"`
}
