package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/derby/internal/domain"
)

// selectQueued llena carriles desde las colas (prioridad primero).
// Cada entrada se revalida al sacarla: si el owner registrado ya no tiene
// el competidor, se descarta sin ocupar carril.
func (e *Engine) selectQueued(t *txn, q *domain.Queues, r *domain.Race) (int, error) {
	lane := 0
	for lane < domain.LaneCount {
		entry, ok := q.Pop()
		if !ok {
			break
		}
		if e.isHouse(entry.Competitor) || r.HasCompetitor(entry.Competitor) {
			slog.Debug("queue entry discarded", "competitor", entry.Competitor, "reason", "ineligible")
			continue
		}
		owner, known, err := e.ownerIfKnown(t.ctx, entry.Competitor)
		if err != nil {
			return 0, err
		}
		if !known || owner != entry.Owner {
			slog.Debug("queue entry discarded", "competitor", entry.Competitor, "reason", "owner changed")
			continue
		}
		r.Lanes[lane] = domain.LaneAssignment{
			Competitor: entry.Competitor,
			Holder:     owner,
			Filled:     true,
		}
		lane++
	}
	return lane, nil
}

// fillHouseLanes completa los carriles libres con un sorteo uniforme sin
// reemplazo sobre el pool de la casa (Fisher-Yates parcial).
func (e *Engine) fillHouseLanes(ctx context.Context, r *domain.Race, src domain.Source) error {
	pool := make([]uint64, 0, len(e.cfg.HouseCompetitors))
	for _, id := range e.cfg.HouseCompetitors {
		if !r.HasCompetitor(id) {
			pool = append(pool, id)
		}
	}

	next := 0
	for lane := range r.Lanes {
		if r.Lanes[lane].Filled {
			continue
		}
		if next >= len(pool) {
			return fmt.Errorf("house pool exhausted at lane %d: %w", lane, domain.ErrInvalidHouseCompetitor)
		}
		j := next + int(src.Roll(uint64(len(pool)-next)))
		pool[next], pool[j] = pool[j], pool[next]
		id := pool[next]
		next++

		owner, known, err := e.ownerIfKnown(ctx, id)
		if err != nil {
			return err
		}
		if !known || owner != e.cfg.HouseOwner {
			return fmt.Errorf("house competitor %d held by %s: %w", id, owner.Hex(), domain.ErrInvalidHouseCompetitor)
		}
		r.Lanes[lane] = domain.LaneAssignment{
			Competitor: id,
			Holder:     owner,
			House:      true,
			Filled:     true,
		}
	}
	return nil
}

// scoreLanes fija el score efectivo de cada carril desde el registro.
func (e *Engine) scoreLanes(ctx context.Context, r *domain.Race) error {
	for lane, a := range r.Lanes {
		stats, err := e.registry.Stats(ctx, a.Competitor)
		if err != nil {
			return fmt.Errorf("stats of %d: %w", a.Competitor, err)
		}
		score, err := domain.EffectiveScore(stats)
		if err != nil {
			return fmt.Errorf("lane %d competitor %d: %w", lane, a.Competitor, err)
		}
		r.Scores[lane] = score
	}
	return nil
}
