package domain

import "github.com/ethereum/go-ethereum/common"

// Action es lo siguiente que debería invocar el operador.
type Action string

const (
	ActionWait            Action = "wait"
	ActionCreateRace      Action = "create_race"
	ActionFinalizeLineup  Action = "finalize_lineup"
	ActionPublishOdds     Action = "publish_odds"
	ActionSettleRace      Action = "settle_race"
	ActionCancelRace      Action = "cancel_race"
	ActionCancelStuckRace Action = "cancel_stuck_race"
)

// OperatorSummary responde "qué toca hacer ahora".
type OperatorSummary struct {
	Point     uint64     `json:"point"`
	Action    Action     `json:"action"`
	RaceID    uint64     `json:"race_id,omitempty"`
	Status    RaceStatus `json:"status"`
	ReadyAt   uint64     `json:"ready_at,omitempty"` // primer punto en el que Action aplica
	QueueLen  int        `json:"queue_len"`
	Liability uint64     `json:"liability"`
	Reason    string     `json:"reason,omitempty"`
}

// ClaimStatus es la vista del cursor de claims de un participante.
type ClaimStatus struct {
	Participant     common.Address `json:"participant"`
	Cursor          int            `json:"cursor"`
	HistoryLen      int            `json:"history_len"`
	NextRaceID      uint64         `json:"next_race_id,omitempty"`
	NextBetType     string         `json:"next_bet_type,omitempty"`
	NextPayout      uint64         `json:"next_payout"`
	NeedsSettlement bool           `json:"needs_settlement"`
	HasClaim        bool           `json:"has_claim"`
}

// ClaimResult es el resultado de un claim.
type ClaimResult struct {
	RaceID  uint64  `json:"race_id"`
	BetType BetType `json:"bet_type"`
	Lane    uint8   `json:"lane"`
	Stake   uint64  `json:"stake"`
	Payout  uint64  `json:"payout"`
	Refund  bool    `json:"refund"`
}
