package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// RaceStatus es el estado derivado de los flags de una carrera.
type RaceStatus uint8

const (
	StatusNone RaceStatus = iota
	StatusAwaitingOdds
	StatusBettingOpen
	StatusSettled
	StatusCancelled
)

func (s RaceStatus) String() string {
	switch s {
	case StatusAwaitingOdds:
		return "awaiting_odds"
	case StatusBettingOpen:
		return "betting_open"
	case StatusSettled:
		return "settled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Schedule son los puntos de ledger-time de una carrera.
// Los puntos de entropía son CreatedAt (lineup) y SettlementPoint (simulación);
// la entropía de un punto solo existe una vez pasado ese punto.
type Schedule struct {
	CreatedAt       uint64 `json:"created_at"`
	OddsDeadline    uint64 `json:"odds_deadline"`
	OddsPublishedAt uint64 `json:"odds_published_at,omitempty"`
	BettingCloses   uint64 `json:"betting_closes,omitempty"`
	SettlementPoint uint64 `json:"settlement_point,omitempty"`
	SettledAt       uint64 `json:"settled_at,omitempty"`
}

// LaneAssignment es el ocupante de un carril.
type LaneAssignment struct {
	Competitor uint64         `json:"competitor"`
	Holder     common.Address `json:"holder"` // dueño al momento de la selección
	House      bool           `json:"house"`
	Filled     bool           `json:"filled"`
	NoShow     bool           `json:"no_show,omitempty"`
}

// Race es una carrera con su lineup, pools, cuotas y resultado.
// Los flags solo pasan de false a true.
type Race struct {
	ID       uint64   `json:"id"`
	Schedule Schedule `json:"schedule"`

	LineupFinalized bool `json:"lineup_finalized"`
	OddsSet         bool `json:"odds_set"`
	Settled         bool `json:"settled"`
	Cancelled       bool `json:"cancelled"`

	Generation   Generation  `json:"generation"`
	Model        PayoutModel `json:"model"`
	HouseEdgeBps uint64      `json:"house_edge_bps"`

	Lanes  [LaneCount]LaneAssignment `json:"lanes"`
	Scores Scores                    `json:"scores"`

	// Pools[bt][lane] es el stake acumulado por mercado y carril.
	Pools   [BetTypeCount][LaneCount]uint64 `json:"pools"`
	Odds    OddsBoard                       `json:"odds"`
	Outcome Outcome                         `json:"outcome"`

	// Liability registrada al liquidar; PaidOut lo ya pagado contra ella.
	Liability uint64 `json:"liability"`
	PaidOut   uint64 `json:"paid_out"`
}

// Status deriva el estado de la máquina a partir de los flags.
func (r *Race) Status() RaceStatus {
	switch {
	case r.Cancelled:
		return StatusCancelled
	case r.Settled:
		return StatusSettled
	case r.OddsSet:
		return StatusBettingOpen
	default:
		return StatusAwaitingOdds
	}
}

// Active: ni liquidada ni cancelada.
func (r *Race) Active() bool { return !r.Settled && !r.Cancelled }

// BettingOpenAt indica si se aceptan apuestas en el punto now.
func (r *Race) BettingOpenAt(now uint64) bool {
	return r.Active() && r.OddsSet && now < r.Schedule.BettingCloses
}

// CancellableAt: esperando cuotas con el deadline vencido.
func (r *Race) CancellableAt(now uint64) bool {
	return r.Active() && !r.OddsSet && now > r.Schedule.OddsDeadline
}

// SettleableAt: apuestas cerradas y entropía del punto de liquidación minada.
func (r *Race) SettleableAt(now uint64) bool {
	return r.Active() && r.OddsSet && now > r.Schedule.SettlementPoint
}

// CheckOddsPublishable valida la ventana de publicación de cuotas.
func (r *Race) CheckOddsPublishable(now uint64) error {
	switch {
	case !r.Active():
		return r.inactiveErr()
	case r.OddsSet:
		return ErrOddsAlreadySet
	case !r.LineupFinalized:
		return ErrLineupNotFinalized
	case now > r.Schedule.OddsDeadline:
		return ErrOddsWindowClosed
	}
	return nil
}

func (r *Race) inactiveErr() error {
	if r.Cancelled {
		return ErrRaceCancelled
	}
	return ErrRaceSettled
}

// TotalPool suma el stake de un mercado.
func (r *Race) TotalPool(bt BetType) uint64 {
	var total uint64
	for _, s := range r.Pools[bt] {
		total += s
	}
	return total
}

// Competitors devuelve los ids de los carriles ocupados.
func (r *Race) Competitors() []uint64 {
	out := make([]uint64, 0, LaneCount)
	for _, l := range r.Lanes {
		if l.Filled {
			out = append(out, l.Competitor)
		}
	}
	return out
}

// HasCompetitor indica si el competidor ya ocupa un carril.
func (r *Race) HasCompetitor(id uint64) bool {
	for _, l := range r.Lanes {
		if l.Filled && l.Competitor == id {
			return true
		}
	}
	return false
}

// FilledLanes cuenta los carriles ocupados.
func (r *Race) FilledLanes() int {
	n := 0
	for _, l := range r.Lanes {
		if l.Filled {
			n++
		}
	}
	return n
}

// CheckLineup verifica el invariante de lineup completo: LaneCount carriles
// y ningún competidor repetido.
func (r *Race) CheckLineup() error {
	seen := make(map[uint64]bool, LaneCount)
	for lane, l := range r.Lanes {
		if !l.Filled {
			return fmt.Errorf("domain.CheckLineup: lane %d empty: %w", lane, ErrLineupNotFinalized)
		}
		if seen[l.Competitor] {
			return fmt.Errorf("domain.CheckLineup: competitor %d: %w", l.Competitor, ErrDuplicateCompetitor)
		}
		seen[l.Competitor] = true
	}
	return nil
}

// Ledger es el estado global del motor.
type Ledger struct {
	Initialized  bool   `json:"initialized"`
	NextRaceID   uint64 `json:"next_race_id"`
	LastRaceID   uint64 `json:"last_race_id"` // 0 = nunca hubo carrera
	Liability    uint64 `json:"liability"`
	HouseEdgeBps uint64 `json:"house_edge_bps"`
}
