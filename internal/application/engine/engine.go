package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alejandrodnm/derby/internal/domain"
	"github.com/alejandrodnm/derby/internal/ports"
)

// Config contiene la configuración del motor de carreras.
type Config struct {
	// Contract es la identidad del despliegue; entra en la derivación de seeds.
	Contract common.Address
	// OddsRole es el único que puede publicar cuotas.
	OddsRole common.Address
	// Operator puede cancelar carreras atascadas y ajustar el house edge.
	Operator common.Address

	// HouseOwner es el holder esperado de los competidores de la casa.
	HouseOwner       common.Address
	HouseCompetitors []uint64

	OddsWindow    uint64 // puntos desde la creación hasta el deadline de cuotas
	BettingWindow uint64 // puntos desde la publicación hasta el cierre de apuestas
	Cooldown      uint64 // puntos tras la liquidación antes de otra carrera

	MaxStake      uint64
	QueueCapacity int // 0 = sin límite

	Odds       domain.OddsConfig
	Model      domain.PayoutModel
	Generation domain.Generation
}

// Engine orquesta ciclo de vida, apuestas y claims sobre el Store.
// Cada operación pública es una transacción; los eventos se publican
// solo después del commit.
type Engine struct {
	cfg      Config
	store    ports.Store
	chain    ports.Chain
	registry ports.CompetitorRegistry
	bankroll ports.Bankroll
	probs    ports.ProbabilitySource
	events   ports.EventPublisher
	house    map[uint64]bool
}

// Option configura colaboradores opcionales.
type Option func(*Engine)

// WithProbabilitySource activa las cuotas derivadas de probabilidades.
func WithProbabilitySource(p ports.ProbabilitySource) Option {
	return func(e *Engine) { e.probs = p }
}

// WithEventPublisher registra el destino de los eventos.
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// New valida la configuración y crea el Engine. Un pool de la casa inválido
// es un error de integridad.
func New(
	cfg Config,
	store ports.Store,
	chain ports.Chain,
	registry ports.CompetitorRegistry,
	bankroll ports.Bankroll,
	opts ...Option,
) (*Engine, error) {
	if len(cfg.HouseCompetitors) < domain.LaneCount {
		return nil, fmt.Errorf("engine.New: %d house competitors for %d lanes: %w",
			len(cfg.HouseCompetitors), domain.LaneCount, domain.ErrInvalidHouseCompetitor)
	}
	house := make(map[uint64]bool, len(cfg.HouseCompetitors))
	for _, id := range cfg.HouseCompetitors {
		if house[id] {
			return nil, fmt.Errorf("engine.New: house competitor %d: %w", id, domain.ErrDuplicateCompetitor)
		}
		house[id] = true
	}
	if err := domain.ValidateOddsConfig(cfg.Odds); err != nil {
		return nil, fmt.Errorf("engine.New: %w", err)
	}
	if cfg.Model == 0 {
		cfg.Model = domain.ModelFixedOdds
	}
	if cfg.Generation == 0 {
		cfg.Generation = domain.GenerationTick
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		chain:    chain,
		registry: registry,
		bankroll: bankroll,
		house:    house,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// txn es el contexto de una operación: la transacción, el punto actual y
// los eventos pendientes de publicar.
type txn struct {
	ports.LedgerTx
	ctx    context.Context
	now    uint64
	events []domain.Event
}

func (t *txn) emit(ev domain.Event) {
	ev.Point = t.now
	t.events = append(t.events, ev)
}

// update lee el punto actual, ejecuta fn en una transacción de escritura y,
// si confirma, publica los eventos.
func (e *Engine) update(ctx context.Context, op string, fn func(t *txn) error) error {
	now, err := e.chain.Now(ctx)
	if err != nil {
		return fmt.Errorf("engine.%s: clock: %w", op, err)
	}
	var events []domain.Event
	err = e.store.Update(ctx, func(tx ports.LedgerTx) error {
		t := &txn{LedgerTx: tx, ctx: ctx, now: now}
		if err := fn(t); err != nil {
			return err
		}
		events = t.events
		return nil
	})
	if err != nil {
		return fmt.Errorf("engine.%s: %w", op, err)
	}
	e.publish(ctx, events)
	return nil
}

// view ejecuta fn sobre una vista de solo lectura.
func (e *Engine) view(ctx context.Context, op string, fn func(t *txn) error) error {
	now, err := e.chain.Now(ctx)
	if err != nil {
		return fmt.Errorf("engine.%s: clock: %w", op, err)
	}
	err = e.store.View(ctx, func(tx ports.LedgerTx) error {
		return fn(&txn{LedgerTx: tx, ctx: ctx, now: now})
	})
	if err != nil {
		return fmt.Errorf("engine.%s: %w", op, err)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, events []domain.Event) {
	if e.events == nil || len(events) == 0 {
		return
	}
	for i := range events {
		events[i].ID = uuid.NewString()
	}
	if err := e.events.Publish(ctx, events); err != nil {
		slog.Warn("engine: publish events failed", "events", len(events), "err", err)
	}
}

// ledger carga el estado global, inicializándolo en la primera operación.
func (e *Engine) ledger(t *txn) (domain.Ledger, error) {
	l, err := t.Ledger(t.ctx)
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("load ledger: %w", err)
	}
	if !l.Initialized {
		l = domain.Ledger{
			Initialized:  true,
			NextRaceID:   1,
			HouseEdgeBps: e.cfg.Odds.HouseEdgeBps,
		}
	}
	return l, nil
}

// lastRace devuelve la última carrera creada, ok=false si nunca hubo una.
func (e *Engine) lastRace(t *txn, l domain.Ledger) (domain.Race, bool, error) {
	if l.LastRaceID == 0 {
		return domain.Race{}, false, nil
	}
	r, err := t.Race(t.ctx, l.LastRaceID)
	if err != nil {
		return domain.Race{}, false, fmt.Errorf("load race %d: %w", l.LastRaceID, err)
	}
	return r, true, nil
}

// activeRace devuelve la carrera activa o domain.ErrNoActiveRace.
func (e *Engine) activeRace(t *txn, l domain.Ledger) (domain.Race, error) {
	r, ok, err := e.lastRace(t, l)
	if err != nil {
		return domain.Race{}, err
	}
	if !ok || !r.Active() {
		return domain.Race{}, domain.ErrNoActiveRace
	}
	return r, nil
}

func (e *Engine) oddsConfig(l domain.Ledger) domain.OddsConfig {
	cfg := e.cfg.Odds
	cfg.HouseEdgeBps = l.HouseEdgeBps
	return cfg
}

// isHouse indica si el competidor pertenece al pool de la casa.
func (e *Engine) isHouse(id uint64) bool { return e.house[id] }

// ownerIfKnown consulta el registro; un competidor desconocido no es un
// fallo del colaborador sino un dueño inexistente.
func (e *Engine) ownerIfKnown(ctx context.Context, id uint64) (common.Address, bool, error) {
	owner, err := e.registry.OwnerOf(ctx, id)
	if errors.Is(err, domain.ErrCompetitorUnknown) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("owner of %d: %w", id, err)
	}
	return owner, true, nil
}
