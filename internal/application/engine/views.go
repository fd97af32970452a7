package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
)

// Race devuelve la carrera por id.
func (e *Engine) Race(ctx context.Context, id uint64) (domain.Race, error) {
	var race domain.Race
	err := e.view(ctx, "Race", func(t *txn) error {
		r, err := e.loadRace(t, id)
		race = r
		return err
	})
	return race, err
}

// Lineup devuelve los carriles de la carrera.
func (e *Engine) Lineup(ctx context.Context, id uint64) ([domain.LaneCount]domain.LaneAssignment, error) {
	r, err := e.Race(ctx, id)
	if err != nil {
		return [domain.LaneCount]domain.LaneAssignment{}, err
	}
	return r.Lanes, nil
}

// Odds devuelve las cuotas publicadas.
func (e *Engine) Odds(ctx context.Context, id uint64) (domain.OddsBoard, error) {
	r, err := e.Race(ctx, id)
	if err != nil {
		return domain.OddsBoard{}, err
	}
	if !r.OddsSet {
		return domain.OddsBoard{}, domain.ErrOddsNotSet
	}
	return r.Odds, nil
}

// FinishOrder devuelve el resultado de una carrera liquidada.
func (e *Engine) FinishOrder(ctx context.Context, id uint64) (domain.Outcome, error) {
	r, err := e.Race(ctx, id)
	if err != nil {
		return domain.Outcome{}, err
	}
	if !r.Settled {
		return domain.Outcome{}, domain.ErrRaceNotSettled
	}
	return r.Outcome, nil
}

// QueuePosition devuelve la posición 1-based del participante (0 = fuera)
// y el largo total de las colas.
func (e *Engine) QueuePosition(ctx context.Context, participant common.Address) (position, length int, err error) {
	err = e.view(ctx, "QueuePosition", func(t *txn) error {
		q, err := t.Queues(t.ctx)
		if err != nil {
			return fmt.Errorf("load queues: %w", err)
		}
		position, length = q.Position(participant), q.Len()
		return nil
	})
	return position, length, err
}

// Ledger devuelve el estado global.
func (e *Engine) Ledger(ctx context.Context) (domain.Ledger, error) {
	var l domain.Ledger
	err := e.view(ctx, "Ledger", func(t *txn) error {
		var err error
		l, err = e.ledger(t)
		return err
	})
	return l, err
}

// OperatorSummary dice qué operación de ciclo de vida toca invocar ahora.
func (e *Engine) OperatorSummary(ctx context.Context) (domain.OperatorSummary, error) {
	var s domain.OperatorSummary
	err := e.view(ctx, "OperatorSummary", func(t *txn) error {
		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		q, err := t.Queues(t.ctx)
		if err != nil {
			return fmt.Errorf("load queues: %w", err)
		}
		s = domain.OperatorSummary{Point: t.now, QueueLen: q.Len(), Liability: l.Liability}

		r, ok, err := e.lastRace(t, l)
		if err != nil {
			return err
		}
		if !ok {
			s.Action, s.ReadyAt = domain.ActionCreateRace, t.now
			return nil
		}
		s.RaceID, s.Status = r.ID, r.Status()
		return e.nextAction(t, r, &s)
	})
	return s, err
}

func (e *Engine) nextAction(t *txn, r domain.Race, s *domain.OperatorSummary) error {
	switch r.Status() {
	case domain.StatusSettled:
		ready := r.Schedule.SettledAt + e.cfg.Cooldown
		if t.now < ready {
			s.Action, s.ReadyAt, s.Reason = domain.ActionWait, ready, "cooldown"
			return nil
		}
		s.Action, s.ReadyAt = domain.ActionCreateRace, t.now

	case domain.StatusCancelled:
		s.Action, s.ReadyAt = domain.ActionCreateRace, t.now

	case domain.StatusAwaitingOdds:
		switch {
		case r.CancellableAt(t.now):
			s.Action, s.ReadyAt = domain.ActionCancelRace, t.now
		case !r.LineupFinalized && t.now <= r.Schedule.CreatedAt:
			s.Action, s.ReadyAt, s.Reason = domain.ActionWait, r.Schedule.CreatedAt+1, "lineup entropy pending"
		case !r.LineupFinalized:
			s.Action, s.ReadyAt = domain.ActionFinalizeLineup, t.now
		default:
			s.Action, s.ReadyAt = domain.ActionPublishOdds, t.now
			s.Reason = fmt.Sprintf("deadline %d", r.Schedule.OddsDeadline)
		}

	case domain.StatusBettingOpen:
		if !r.SettleableAt(t.now) {
			s.Action, s.ReadyAt, s.Reason = domain.ActionWait, r.Schedule.SettlementPoint+1, "betting open"
			return nil
		}
		_, err := e.chain.EntropyAt(t.ctx, r.Schedule.SettlementPoint)
		switch {
		case errors.Is(err, domain.ErrEntropyUnavailable):
			s.Action, s.ReadyAt, s.Reason = domain.ActionCancelStuckRace, t.now, "settlement entropy expired"
		case err != nil:
			return fmt.Errorf("entropy at %d: %w", r.Schedule.SettlementPoint, err)
		default:
			s.Action, s.ReadyAt = domain.ActionSettleRace, t.now
		}
	}
	return nil
}
