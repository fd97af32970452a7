package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/config"
	"github.com/alejandrodnm/derby/internal/adapters/notify"
	"github.com/alejandrodnm/derby/internal/application/keeper"
	"github.com/alejandrodnm/derby/internal/domain"
)

// maxDemoSteps corta el loop si algo deja al keeper sin avanzar.
const maxDemoSteps = 200

// runDemo juega n carreras completas contra la cadena simulada y un store
// en memoria: los competidores de la config entran a la cola, los
// depositantes apuestan y al final todos reclaman.
func runDemo(ctx context.Context, cfg *config.Config, n int, table bool) error {
	d, err := buildDeps(ctx, cfg, true)
	if err != nil {
		return fmt.Errorf("runDemo: %w", err)
	}
	defer d.Close()

	console := notify.NewConsole(table)
	k := keeper.New(keeper.Config{
		Identity:    config.Address(cfg.Race.OddsRole),
		PublishOdds: true,
		CancelStuck: true,
		DryRun:      true,
	}, d.engine, console, d.metrics)

	bettors := depositors(cfg)
	enqueue(ctx, cfg, d)

	var prev domain.OperatorSummary
	settled := 0
	for step := 0; settled < n && step < maxDemoSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		s, err := k.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("runDemo: %w", err)
		}
		if s == prev {
			// La acción se saltó (precondición perdida): avanzar la cadena.
			d.sim.Advance(1)
			continue
		}
		prev = s

		switch s.Action {
		case domain.ActionWait:
			skip := uint64(1)
			if s.ReadyAt > s.Point {
				skip = s.ReadyAt - s.Point
			}
			d.sim.Advance(skip)
		case domain.ActionPublishOdds:
			placeWagers(ctx, d, bettors, s.RaceID, cfg.Race.MaxStake/10)
		case domain.ActionSettleRace, domain.ActionCancelRace, domain.ActionCancelStuckRace:
			settled++
			enqueue(ctx, cfg, d)
		}
	}

	for _, p := range bettors {
		results, err := claimAll(ctx, d, p)
		if err != nil {
			return fmt.Errorf("runDemo: claims for %s: %w", p.Hex(), err)
		}
		fmt.Printf("\nclaims %s\n", p.Hex())
		console.PrintClaims(results)
	}

	l, err := d.engine.Ledger(ctx)
	if err != nil {
		return fmt.Errorf("runDemo: %w", err)
	}
	available, err := d.treasury.AvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("runDemo: %w", err)
	}
	console.PrintLedger(l, available)
	return nil
}

// depositors devuelve los participantes con saldo, en orden estable.
func depositors(cfg *config.Config) []common.Address {
	out := make([]common.Address, 0, len(cfg.Sim.Deposits))
	for addr := range cfg.Sim.Deposits {
		out = append(out, config.Address(addr))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// enqueue mete en cola a cada competidor que no es de la casa.
func enqueue(ctx context.Context, cfg *config.Config, d *deps) {
	house := make(map[uint64]bool, len(cfg.Race.HouseCompetitors))
	for _, id := range cfg.Race.HouseCompetitors {
		house[id] = true
	}
	for _, c := range cfg.Sim.Competitors {
		if house[c.ID] {
			continue
		}
		pos, err := d.engine.EnterQueue(ctx, config.Address(c.Owner), c.ID)
		if err != nil {
			slog.Debug("enter queue skipped", "competitor", c.ID, "reason", err)
			continue
		}
		slog.Info("queued", "competitor", c.ID, "position", pos)
	}
}

// placeWagers apuesta a ganador, cada participante a un carril distinto.
func placeWagers(ctx context.Context, d *deps, bettors []common.Address, raceID, stake uint64) {
	if stake == 0 {
		stake = 1
	}
	for i, p := range bettors {
		lane := uint8(i % domain.LaneCount)
		w, err := d.engine.PlaceWager(ctx, p, lane, domain.BetWin, stake)
		if err != nil {
			slog.Warn("wager rejected", "race_id", raceID, "participant", p.Hex(), "kind", domain.KindOf(err), "err", err)
			continue
		}
		slog.Info("wager placed", "race_id", w.RaceID, "lane", lane, "stake", w.Stake)
	}
}

// claimAll reclama hasta agotar el historial del participante.
func claimAll(ctx context.Context, d *deps, p common.Address) ([]domain.ClaimResult, error) {
	var out []domain.ClaimResult
	for {
		r, err := d.engine.Claim(ctx, p)
		if errors.Is(err, domain.ErrNothingToClaim) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
