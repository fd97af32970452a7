package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/derby/internal/domain"
	"github.com/alejandrodnm/derby/internal/ports"
)

// Config contiene la configuración del keeper.
type Config struct {
	Interval time.Duration
	// RatePerSecond acota las escrituras contra el motor (0 = sin límite).
	RatePerSecond float64
	Burst         int

	// Identity es la dirección con la que firma el keeper.
	Identity common.Address
	// PublishOdds: el keeper es el odds role y publica las cuotas citadas.
	PublishOdds bool
	// CancelStuck: el keeper es el operador y cancela carreras atascadas.
	CancelStuck bool

	DryRun bool // un solo ciclo
}

// Operator es el subconjunto del engine que usa el keeper.
type Operator interface {
	OperatorSummary(ctx context.Context) (domain.OperatorSummary, error)
	Race(ctx context.Context, id uint64) (domain.Race, error)
	CreateRace(ctx context.Context) (domain.Race, error)
	FinalizeLineup(ctx context.Context, raceID uint64) (domain.Race, error)
	QuoteOdds(ctx context.Context, raceID uint64) (domain.OddsBoard, error)
	PublishOdds(ctx context.Context, caller common.Address, raceID uint64, board domain.OddsBoard) (domain.Race, error)
	SettleRace(ctx context.Context, raceID uint64) (domain.Race, error)
	CancelRace(ctx context.Context, raceID uint64) (domain.Race, error)
	CancelStuckRace(ctx context.Context, caller common.Address, raceID uint64) (domain.Race, error)
}

// Keeper consulta el resumen del operador e invoca el trigger que toque.
// Todas las acciones salvo publish-odds y cancel-stuck son permissionless,
// así que varios keepers pueden competir: perder la carrera contra otro
// (una precondición que ya no se cumple) no es un error.
type Keeper struct {
	cfg       Config
	ops       Operator
	notifiers []ports.Notifier
	limiter   *rate.Limiter
}

// New crea un Keeper. Los notifiers reciben el resumen de cada ciclo y la
// carrera tras cada acción.
func New(cfg Config, ops Operator, notifiers ...ports.Notifier) *Keeper {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Keeper{
		cfg:       cfg,
		ops:       ops,
		notifiers: notifiers,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Run ejecuta el loop hasta que el contexto se cancele.
// Si cfg.DryRun está activo, solo ejecuta un ciclo.
func (k *Keeper) Run(ctx context.Context) error {
	slog.Info("keeper starting",
		"interval", k.cfg.Interval,
		"identity", k.cfg.Identity.Hex(),
		"publish_odds", k.cfg.PublishOdds,
		"cancel_stuck", k.cfg.CancelStuck,
	)

	if _, err := k.RunOnce(ctx); err != nil {
		slog.Error("keeper cycle failed", "err", err)
		if k.cfg.DryRun {
			return err
		}
	}
	if k.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper stopped")
			return nil
		case <-ticker.C:
			if _, err := k.RunOnce(ctx); err != nil {
				slog.Error("keeper cycle failed", "err", err)
			}
		}
	}
}

// RunOnce lee el resumen, actúa si corresponde y devuelve el resumen leído.
func (k *Keeper) RunOnce(ctx context.Context) (domain.OperatorSummary, error) {
	s, err := k.ops.OperatorSummary(ctx)
	if err != nil {
		return s, fmt.Errorf("keeper.RunOnce: summary: %w", err)
	}
	for _, n := range k.notifiers {
		if err := n.NotifySummary(ctx, s); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}

	race, acted, err := k.act(ctx, s)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return s, fmt.Errorf("keeper.RunOnce: %s as %s: %w", s.Action, k.cfg.Identity.Hex(), err)
	case domain.KindOf(err) == domain.KindPrecondition:
		// Otro keeper se adelantó o la ventana cambió entre lectura y escritura.
		slog.Debug("keeper action skipped", "action", s.Action, "race_id", s.RaceID, "reason", err)
		return s, nil
	case err != nil:
		return s, fmt.Errorf("keeper.RunOnce: %s: %w", s.Action, err)
	}

	if acted {
		slog.Info("keeper action", "action", s.Action, "race_id", race.ID, "status", race.Status())
		for _, n := range k.notifiers {
			if err := n.NotifyRace(ctx, race); err != nil {
				slog.Warn("notifier error", "err", err)
			}
		}
	}
	return s, nil
}

// act ejecuta la acción sugerida. acted=false si no había nada que hacer
// o la acción requiere un rol que el keeper no tiene.
func (k *Keeper) act(ctx context.Context, s domain.OperatorSummary) (domain.Race, bool, error) {
	if s.Action == domain.ActionWait {
		return domain.Race{}, false, nil
	}
	if s.Action == domain.ActionPublishOdds && !k.cfg.PublishOdds {
		slog.Debug("waiting for odds role", "race_id", s.RaceID, "reason", s.Reason)
		return domain.Race{}, false, nil
	}
	if s.Action == domain.ActionCancelStuckRace && !k.cfg.CancelStuck {
		slog.Warn("race stuck, operator action required", "race_id", s.RaceID)
		return domain.Race{}, false, nil
	}

	if err := k.limiter.Wait(ctx); err != nil {
		return domain.Race{}, false, err
	}

	var (
		race domain.Race
		err  error
	)
	switch s.Action {
	case domain.ActionCreateRace:
		race, err = k.ops.CreateRace(ctx)
	case domain.ActionFinalizeLineup:
		race, err = k.ops.FinalizeLineup(ctx, s.RaceID)
	case domain.ActionPublishOdds:
		race, err = k.publishOdds(ctx, s.RaceID)
	case domain.ActionSettleRace:
		race, err = k.ops.SettleRace(ctx, s.RaceID)
	case domain.ActionCancelRace:
		race, err = k.ops.CancelRace(ctx, s.RaceID)
	case domain.ActionCancelStuckRace:
		race, err = k.ops.CancelStuckRace(ctx, k.cfg.Identity, s.RaceID)
	default:
		return domain.Race{}, false, fmt.Errorf("unknown action %q", s.Action)
	}
	if err != nil {
		return domain.Race{}, false, err
	}
	return race, true, nil
}

func (k *Keeper) publishOdds(ctx context.Context, raceID uint64) (domain.Race, error) {
	board, err := k.ops.QuoteOdds(ctx, raceID)
	if err != nil {
		return domain.Race{}, fmt.Errorf("quote: %w", err)
	}
	return k.ops.PublishOdds(ctx, k.cfg.Identity, raceID, board)
}
