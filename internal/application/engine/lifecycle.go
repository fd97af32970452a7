package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
)

// CreateRace abre una carrera nueva con los competidores en cola.
// Una carrera previa esperando cuotas con el deadline vencido se cancela
// aquí mismo; cualquier otra carrera activa bloquea la creación.
func (e *Engine) CreateRace(ctx context.Context) (domain.Race, error) {
	var created domain.Race
	err := e.update(ctx, "CreateRace", func(t *txn) error {
		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		q, err := t.Queues(t.ctx)
		if err != nil {
			return fmt.Errorf("load queues: %w", err)
		}

		prev, ok, err := e.lastRace(t, l)
		if err != nil {
			return err
		}
		if ok {
			switch {
			case prev.Active() && prev.CancellableAt(t.now):
				e.cancel(t, &prev, &q, "odds deadline elapsed")
				if err := t.SaveRace(t.ctx, prev); err != nil {
					return fmt.Errorf("save race %d: %w", prev.ID, err)
				}
			case prev.Active():
				return domain.ErrRaceActive
			case prev.Settled && t.now < prev.Schedule.SettledAt+e.cfg.Cooldown:
				return fmt.Errorf("%w: ready at %d", domain.ErrCooldown, prev.Schedule.SettledAt+e.cfg.Cooldown)
			}
		}

		race := domain.Race{
			ID: l.NextRaceID,
			Schedule: domain.Schedule{
				CreatedAt:    t.now,
				OddsDeadline: t.now + e.cfg.OddsWindow,
			},
			Generation: e.cfg.Generation,
			Model:      e.cfg.Model,
		}
		queued, err := e.selectQueued(t, &q, &race)
		if err != nil {
			return err
		}

		l.LastRaceID = race.ID
		l.NextRaceID++
		if err := t.SaveQueues(t.ctx, q); err != nil {
			return fmt.Errorf("save queues: %w", err)
		}
		if err := t.SaveRace(t.ctx, race); err != nil {
			return fmt.Errorf("save race %d: %w", race.ID, err)
		}
		if err := t.SaveLedger(t.ctx, l); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}

		t.emit(domain.Event{
			Type:   domain.EventRaceCreated,
			RaceID: race.ID,
			Amount: uint64(queued),
			Detail: fmt.Sprintf("odds deadline %d", race.Schedule.OddsDeadline),
		})
		created = race
		return nil
	})
	if err != nil {
		return domain.Race{}, err
	}
	slog.Info("race created", "race_id", created.ID, "queued_lanes", created.FilledLanes())
	return created, nil
}

// FinalizeLineup completa los carriles libres con competidores de la casa
// y fija los scores. Necesita la entropía del punto de creación.
func (e *Engine) FinalizeLineup(ctx context.Context, raceID uint64) (domain.Race, error) {
	var race domain.Race
	err := e.update(ctx, "FinalizeLineup", func(t *txn) error {
		r, err := e.loadRace(t, raceID)
		if err != nil {
			return err
		}
		switch {
		case r.Cancelled:
			return domain.ErrRaceCancelled
		case r.LineupFinalized:
			return domain.ErrLineupFinalized
		case t.now > r.Schedule.OddsDeadline:
			return domain.ErrOddsWindowClosed
		}

		entropy, err := e.chain.EntropyAt(t.ctx, r.Schedule.CreatedAt)
		if err != nil {
			return fmt.Errorf("entropy at %d: %w", r.Schedule.CreatedAt, err)
		}
		seed := domain.DeriveSeed(entropy, r.ID, e.cfg.Contract, domain.LineupSeedTag)
		if err := e.fillHouseLanes(t.ctx, &r, domain.NewRejectionSource(seed)); err != nil {
			return err
		}
		if err := e.scoreLanes(t.ctx, &r); err != nil {
			return err
		}
		if err := r.CheckLineup(); err != nil {
			return err
		}
		r.LineupFinalized = true

		if err := t.SaveRace(t.ctx, r); err != nil {
			return fmt.Errorf("save race %d: %w", r.ID, err)
		}
		t.emit(domain.Event{
			Type:   domain.EventLineupFinalized,
			RaceID: r.ID,
			Detail: fmt.Sprintf("scores %v", r.Scores),
		})
		race = r
		return nil
	})
	if err != nil {
		return domain.Race{}, err
	}
	slog.Info("lineup finalized", "race_id", race.ID, "scores", race.Scores)
	return race, nil
}

// QuoteOdds calcula las cuotas que debería publicar el odds role.
// Si la fuente de probabilidades falla se usan las cuotas planas.
func (e *Engine) QuoteOdds(ctx context.Context, raceID uint64) (domain.OddsBoard, error) {
	var (
		race domain.Race
		cfg  domain.OddsConfig
	)
	err := e.view(ctx, "QuoteOdds", func(t *txn) error {
		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		r, err := e.loadRace(t, raceID)
		if err != nil {
			return err
		}
		if !r.LineupFinalized {
			return domain.ErrLineupNotFinalized
		}
		race, cfg = r, e.oddsConfig(l)
		return nil
	})
	if err != nil {
		return domain.OddsBoard{}, err
	}

	if e.probs == nil {
		return domain.FlatBoard(cfg), nil
	}
	probs, err := e.probs.WinProbabilities(ctx, race.Scores)
	if err != nil {
		slog.Warn("probability source failed, quoting flat odds", "race_id", raceID, "err", err)
		return domain.FlatBoard(cfg), nil
	}
	board, err := domain.QuoteOdds(cfg, race.Scores, &probs)
	if err != nil {
		return domain.OddsBoard{}, fmt.Errorf("engine.QuoteOdds: race %d: %w", raceID, err)
	}
	return board, nil
}

// PublishOdds fija las cuotas y abre las apuestas. Solo el odds role.
func (e *Engine) PublishOdds(ctx context.Context, caller common.Address, raceID uint64, board domain.OddsBoard) (domain.Race, error) {
	var race domain.Race
	err := e.update(ctx, "PublishOdds", func(t *txn) error {
		if caller != e.cfg.OddsRole {
			return domain.ErrUnauthorized
		}
		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		r, err := e.loadRace(t, raceID)
		if err != nil {
			return err
		}
		if err := r.CheckOddsPublishable(t.now); err != nil {
			return err
		}
		if err := domain.ValidateBoard(e.oddsConfig(l), board); err != nil {
			return err
		}

		r.Odds = board
		r.OddsSet = true
		r.HouseEdgeBps = l.HouseEdgeBps
		r.Schedule.OddsPublishedAt = t.now
		r.Schedule.BettingCloses = t.now + e.cfg.BettingWindow
		r.Schedule.SettlementPoint = r.Schedule.BettingCloses

		if err := t.SaveRace(t.ctx, r); err != nil {
			return fmt.Errorf("save race %d: %w", r.ID, err)
		}
		t.emit(domain.Event{
			Type:   domain.EventOddsPublished,
			RaceID: r.ID,
			Detail: fmt.Sprintf("betting closes %d", r.Schedule.BettingCloses),
		})
		race = r
		return nil
	})
	if err != nil {
		return domain.Race{}, err
	}
	slog.Info("odds published", "race_id", race.ID, "betting_closes", race.Schedule.BettingCloses)
	return race, nil
}

// SettleRace simula la carrera y registra la liability. Permissionless.
func (e *Engine) SettleRace(ctx context.Context, raceID uint64) (domain.Race, error) {
	var race domain.Race
	err := e.update(ctx, "SettleRace", func(t *txn) error {
		r, err := e.loadRace(t, raceID)
		if err != nil {
			return err
		}
		if err := e.settle(t, &r); err != nil {
			return err
		}
		race = r
		return nil
	})
	if err != nil {
		return domain.Race{}, err
	}
	slog.Info("race settled",
		"race_id", race.ID,
		"first", race.Outcome.Positions[0].Lanes.Lanes(),
		"liability", race.Liability,
	)
	return race, nil
}

// settle liquida r dentro de la transacción t, guardando carrera y ledger.
func (e *Engine) settle(t *txn, r *domain.Race) error {
	switch {
	case r.Cancelled:
		return domain.ErrRaceCancelled
	case r.Settled:
		return domain.ErrRaceSettled
	case !r.OddsSet:
		return domain.ErrOddsNotSet
	case !r.SettleableAt(t.now):
		return domain.ErrBettingStillOpen
	}

	entropy, err := e.chain.EntropyAt(t.ctx, r.Schedule.SettlementPoint)
	if err != nil {
		return fmt.Errorf("entropy at %d: %w", r.Schedule.SettlementPoint, err)
	}
	seed := domain.DeriveSeed(entropy, r.ID, e.cfg.Contract, domain.RaceSeedTag)
	out, err := domain.Simulate(seed, r.Scores, r.Generation)
	if err != nil {
		return fmt.Errorf("simulate race %d: %w", r.ID, err)
	}
	if err := e.markNoShows(t.ctx, r); err != nil {
		return err
	}

	r.Outcome = out
	r.Settled = true
	r.Schedule.SettledAt = t.now
	r.Liability = r.SettlementLiability()

	l, err := e.ledger(t)
	if err != nil {
		return err
	}
	l.Liability += r.Liability

	if err := t.SaveRace(t.ctx, *r); err != nil {
		return fmt.Errorf("save race %d: %w", r.ID, err)
	}
	if err := t.SaveLedger(t.ctx, l); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	t.emit(domain.Event{
		Type:   domain.EventRaceSettled,
		RaceID: r.ID,
		Amount: r.Liability,
		Detail: fmt.Sprintf("order %v", out.FinishOrder),
	})
	return nil
}

// markNoShows marca los carriles cuyo holder cambió desde la selección.
// El carril sigue corriendo y sus apuestas valen.
func (e *Engine) markNoShows(ctx context.Context, r *domain.Race) error {
	for lane := range r.Lanes {
		a := &r.Lanes[lane]
		if a.House {
			continue
		}
		owner, known, err := e.ownerIfKnown(ctx, a.Competitor)
		if err != nil {
			return err
		}
		if !known || owner != a.Holder {
			a.NoShow = true
			slog.Debug("lane no-show", "race_id", r.ID, "lane", lane, "competitor", a.Competitor)
		}
	}
	return nil
}

// CancelRace cancela una carrera que no recibió cuotas antes del deadline.
// Permissionless.
func (e *Engine) CancelRace(ctx context.Context, raceID uint64) (domain.Race, error) {
	var race domain.Race
	err := e.update(ctx, "CancelRace", func(t *txn) error {
		r, err := e.loadRace(t, raceID)
		if err != nil {
			return err
		}
		switch {
		case !r.Active():
			if r.Cancelled {
				return domain.ErrRaceCancelled
			}
			return domain.ErrRaceSettled
		case r.OddsSet:
			return domain.ErrOddsAlreadySet
		case !r.CancellableAt(t.now):
			return domain.ErrOddsDeadlinePending
		}

		q, err := t.Queues(t.ctx)
		if err != nil {
			return fmt.Errorf("load queues: %w", err)
		}
		e.cancel(t, &r, &q, "odds deadline elapsed")
		if err := t.SaveQueues(t.ctx, q); err != nil {
			return fmt.Errorf("save queues: %w", err)
		}
		if err := t.SaveRace(t.ctx, r); err != nil {
			return fmt.Errorf("save race %d: %w", r.ID, err)
		}
		race = r
		return nil
	})
	if err != nil {
		return domain.Race{}, err
	}
	slog.Info("race cancelled", "race_id", race.ID)
	return race, nil
}

// CancelStuckRace cancela una carrera cuya entropía de liquidación ya no se
// puede recuperar. Solo el operador. Las apuestas se reembolsan por claim.
func (e *Engine) CancelStuckRace(ctx context.Context, caller common.Address, raceID uint64) (domain.Race, error) {
	var race domain.Race
	err := e.update(ctx, "CancelStuckRace", func(t *txn) error {
		if caller != e.cfg.Operator {
			return domain.ErrUnauthorized
		}
		r, err := e.loadRace(t, raceID)
		if err != nil {
			return err
		}
		switch {
		case !r.Active():
			if r.Cancelled {
				return domain.ErrRaceCancelled
			}
			return domain.ErrRaceSettled
		case !r.OddsSet:
			return domain.ErrOddsNotSet
		case !r.SettleableAt(t.now):
			return domain.ErrBettingStillOpen
		}
		_, err = e.chain.EntropyAt(t.ctx, r.Schedule.SettlementPoint)
		switch {
		case err == nil:
			return domain.ErrRaceNotStuck
		case !errors.Is(err, domain.ErrEntropyUnavailable):
			return fmt.Errorf("entropy at %d: %w", r.Schedule.SettlementPoint, err)
		}

		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		q, err := t.Queues(t.ctx)
		if err != nil {
			return fmt.Errorf("load queues: %w", err)
		}
		e.cancel(t, &r, &q, "settlement entropy expired")

		// Los reembolsos se deben igual que un pago ganador.
		for _, bt := range domain.BetTypes {
			r.Liability += r.TotalPool(bt)
		}
		l.Liability += r.Liability

		if err := t.SaveQueues(t.ctx, q); err != nil {
			return fmt.Errorf("save queues: %w", err)
		}
		if err := t.SaveRace(t.ctx, r); err != nil {
			return fmt.Errorf("save race %d: %w", r.ID, err)
		}
		if err := t.SaveLedger(t.ctx, l); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		race = r
		return nil
	})
	if err != nil {
		return domain.Race{}, err
	}
	slog.Warn("stuck race cancelled", "race_id", race.ID, "refunds", race.Liability)
	return race, nil
}

// cancel marca la carrera como cancelada y devuelve a prioridad a los
// holders de carriles que no son de la casa, en orden de carril.
func (e *Engine) cancel(t *txn, r *domain.Race, q *domain.Queues, reason string) {
	r.Cancelled = true

	var entries []domain.QueueEntry
	for _, a := range r.Lanes {
		if a.Filled && !a.House {
			entries = append(entries, domain.QueueEntry{Competitor: a.Competitor, Owner: a.Holder})
		}
	}
	restored := q.Restore(entries)

	t.emit(domain.Event{
		Type:   domain.EventRaceCancelled,
		RaceID: r.ID,
		Amount: uint64(len(restored)),
		Detail: reason,
	})
}

// SetHouseEdge ajusta el house edge de las próximas publicaciones.
// Solo el operador, con tope en domain.MaxHouseEdgeBps.
func (e *Engine) SetHouseEdge(ctx context.Context, caller common.Address, bps uint64) error {
	return e.update(ctx, "SetHouseEdge", func(t *txn) error {
		if caller != e.cfg.Operator {
			return domain.ErrUnauthorized
		}
		if bps > domain.MaxHouseEdgeBps {
			return fmt.Errorf("%w: %d > %d", domain.ErrHouseEdgeTooHigh, bps, domain.MaxHouseEdgeBps)
		}
		l, err := e.ledger(t)
		if err != nil {
			return err
		}
		next := e.oddsConfig(l)
		next.HouseEdgeBps = bps
		if err := domain.ValidateOddsConfig(next); err != nil {
			return err
		}
		l.HouseEdgeBps = bps
		if err := t.SaveLedger(t.ctx, l); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		t.emit(domain.Event{Type: domain.EventHouseEdgeSet, Amount: bps})
		return nil
	})
}

func (e *Engine) loadRace(t *txn, id uint64) (domain.Race, error) {
	r, err := t.Race(t.ctx, id)
	if err != nil {
		return domain.Race{}, fmt.Errorf("load race %d: %w", id, err)
	}
	return r, nil
}
