package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
)

// EnterQueue pone al competidor del participante en la cola principal.
func (e *Engine) EnterQueue(ctx context.Context, participant common.Address, competitor uint64) (int, error) {
	var position int
	err := e.update(ctx, "EnterQueue", func(t *txn) error {
		if e.isHouse(competitor) {
			return domain.ErrHouseCompetitor
		}
		owner, err := e.registry.OwnerOf(t.ctx, competitor)
		if err != nil {
			return fmt.Errorf("owner of %d: %w", competitor, err)
		}
		if owner != participant {
			return domain.ErrNotOwner
		}

		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		if r, ok, err := e.lastRace(t, l); err != nil {
			return err
		} else if ok && r.Active() && r.HasCompetitor(competitor) {
			return domain.ErrAlreadyRacing
		}

		q, err := t.Queues(t.ctx)
		if err != nil {
			return fmt.Errorf("load queues: %w", err)
		}
		if _, err := q.Enqueue(competitor, participant, e.cfg.QueueCapacity); err != nil {
			return err
		}
		if err := t.SaveQueues(t.ctx, q); err != nil {
			return fmt.Errorf("save queues: %w", err)
		}
		position = q.Position(participant)

		t.emit(domain.Event{
			Type:        domain.EventQueueEntered,
			Participant: participant.Hex(),
			Competitor:  competitor,
			Amount:      uint64(position),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Debug("queue entered", "participant", participant.Hex(), "competitor", competitor, "position", position)
	return position, nil
}

// PlaceWager registra una apuesta en la carrera activa.
//
// El bankroll tiene que cubrir la liability ya registrada más el peor pago
// posible de la carrera con la apuesta incluida. El stake se cobra antes
// de registrar nada: si el cobro falla la transacción se descarta.
func (e *Engine) PlaceWager(ctx context.Context, participant common.Address, lane uint8, bt domain.BetType, stake uint64) (domain.Wager, error) {
	var placed domain.Wager
	err := e.update(ctx, "PlaceWager", func(t *txn) error {
		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		r, err := e.activeRace(t, l)
		if err != nil {
			return err
		}
		switch {
		case !r.OddsSet:
			return domain.ErrOddsNotSet
		case !r.BettingOpenAt(t.now):
			return domain.ErrBettingClosed
		case int(lane) >= domain.LaneCount:
			return domain.ErrInvalidLane
		case !bt.Valid():
			return domain.ErrInvalidBetType
		case stake == 0:
			return domain.ErrZeroStake
		case e.cfg.MaxStake > 0 && stake > e.cfg.MaxStake:
			return fmt.Errorf("%w: %d > %d", domain.ErrStakeOverCap, stake, e.cfg.MaxStake)
		}

		key := domain.WagerKey{RaceID: r.ID, Participant: participant, BetType: bt}
		if _, exists, err := t.Wager(t.ctx, key); err != nil {
			return fmt.Errorf("load wager: %w", err)
		} else if exists {
			return domain.ErrDuplicateWager
		}

		available, err := e.bankroll.AvailableBalance(t.ctx)
		if err != nil {
			return fmt.Errorf("available balance: %w", err)
		}
		exposure := r.ExposureWith(lane, bt, stake)
		if need := l.Liability + exposure; need < l.Liability || need > available {
			return fmt.Errorf("%w: need %d, available %d", domain.ErrInsufficientBankroll, need, available)
		}

		if err := e.bankroll.Collect(t.ctx, participant, stake); err != nil {
			return fmt.Errorf("collect: %w", err)
		}

		first, err := e.firstWagerInRace(t, r.ID, participant)
		if err != nil {
			return err
		}
		w := domain.Wager{
			RaceID:      r.ID,
			Participant: participant,
			BetType:     bt,
			Lane:        lane,
			Stake:       stake,
			PlacedAt:    t.now,
		}
		r.Pools[bt][lane] += stake

		if err := t.SaveWager(t.ctx, w); err != nil {
			return fmt.Errorf("save wager: %w", err)
		}
		if err := t.SaveRace(t.ctx, r); err != nil {
			return fmt.Errorf("save race %d: %w", r.ID, err)
		}
		if first {
			if err := t.AppendRaceHistory(t.ctx, participant, r.ID); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
		}

		t.emit(domain.Event{
			Type:        domain.EventWagerPlaced,
			RaceID:      r.ID,
			Participant: participant.Hex(),
			Lane:        int(lane),
			BetType:     bt.String(),
			Amount:      stake,
		})
		placed = w
		return nil
	})
	if err != nil {
		return domain.Wager{}, err
	}
	return placed, nil
}

// firstWagerInRace indica si el participante aún no apostó en la carrera.
func (e *Engine) firstWagerInRace(t *txn, raceID uint64, participant common.Address) (bool, error) {
	for _, bt := range domain.BetTypes {
		_, ok, err := t.Wager(t.ctx, domain.WagerKey{RaceID: raceID, Participant: participant, BetType: bt})
		if err != nil {
			return false, fmt.Errorf("load wager: %w", err)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}
