package domain

// EventType identifica un evento del ciclo de vida.
type EventType string

const (
	EventRaceCreated     EventType = "race_created"
	EventLineupFinalized EventType = "lineup_finalized"
	EventOddsPublished   EventType = "odds_published"
	EventWagerPlaced     EventType = "wager_placed"
	EventRaceSettled     EventType = "race_settled"
	EventRaceCancelled   EventType = "race_cancelled"
	EventPayoutClaimed   EventType = "payout_claimed"
	EventQueueEntered    EventType = "queue_entered"
	EventHouseEdgeSet    EventType = "house_edge_set"
)

// Event se publica una vez confirmada la transacción que lo produjo.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	RaceID      uint64    `json:"race_id,omitempty"`
	Point       uint64    `json:"point"`
	Participant string    `json:"participant,omitempty"`
	Competitor  uint64    `json:"competitor,omitempty"`
	Lane        int       `json:"lane"`
	BetType     string    `json:"bet_type,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}
