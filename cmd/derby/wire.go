package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/config"
	"github.com/alejandrodnm/derby/internal/adapters/chain"
	"github.com/alejandrodnm/derby/internal/adapters/notify"
	"github.com/alejandrodnm/derby/internal/adapters/probability"
	"github.com/alejandrodnm/derby/internal/adapters/registry"
	"github.com/alejandrodnm/derby/internal/adapters/storage"
	"github.com/alejandrodnm/derby/internal/adapters/treasury"
	"github.com/alejandrodnm/derby/internal/application/engine"
	"github.com/alejandrodnm/derby/internal/domain"
	"github.com/alejandrodnm/derby/internal/ports"
)

// deps agrupa lo que construye buildDeps para cada modo.
type deps struct {
	engine   *engine.Engine
	store    ports.Store
	sim      *chain.SimChain // nil en modo ethereum
	treasury *treasury.Memory
	metrics  *notify.Metrics
	closers  []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps conecta store, cadena, registro, bankroll, probabilidades y
// eventos según la config. memory fuerza el store en memoria y la cadena
// simulada (modo demo).
func buildDeps(ctx context.Context, cfg *config.Config, memory bool) (*deps, error) {
	d := &deps{metrics: notify.NewMetrics()}

	ecfg, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Storage
	if memory || cfg.Storage.DSN == "memory" {
		d.store = storage.NewMemoryStore()
	} else {
		s, err := storage.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("buildDeps: %w", err)
		}
		d.store = s
	}
	d.closers = append(d.closers, func() {
		if err := d.store.Close(); err != nil {
			slog.Warn("store close failed", "err", err)
		}
	})

	// Chain
	var ch ports.Chain
	if memory || cfg.Chain.Mode == "sim" {
		d.sim = chain.NewSimChain(common.HexToHash(cfg.Chain.Genesis), cfg.Chain.StartHeight, cfg.Chain.EntropyWindow)
		ch = d.sim
	} else {
		eth, err := chain.DialEthereum(ctx, cfg.Chain.RPCURL, cfg.Chain.EntropyWindow, cfg.Chain.RPCRate)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("buildDeps: %w", err)
		}
		d.closers = append(d.closers, eth.Close)
		ch = eth
	}

	// Registro y bankroll en memoria, sembrados desde la config.
	reg := registry.NewMemory()
	for _, c := range cfg.Sim.Competitors {
		reg.Mint(registry.Competitor{ID: c.ID, Owner: config.Address(c.Owner), Stats: c.Stats})
	}
	d.treasury = treasury.NewMemory(cfg.Sim.Bankroll)
	for addr, amount := range cfg.Sim.Deposits {
		d.treasury.Deposit(config.Address(addr), amount)
	}

	opts := []engine.Option{engine.WithEventPublisher(buildPublisher(cfg, d))}
	probs, err := buildProbabilities(cfg, ecfg.Generation)
	if err != nil {
		d.Close()
		return nil, err
	}
	if probs != nil {
		opts = append(opts, engine.WithProbabilitySource(probs))
	}

	d.engine, err = engine.New(ecfg, d.store, ch, reg, d.treasury, opts...)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("buildDeps: %w", err)
	}
	return d, nil
}

func engineConfig(cfg *config.Config) (engine.Config, error) {
	model, err := domain.ParsePayoutModel(cfg.Race.PayoutModel)
	if err != nil {
		return engine.Config{}, err
	}
	gen, err := domain.ParseGeneration(cfg.Race.Generation)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Contract:         config.Address(cfg.Race.Contract),
		OddsRole:         config.Address(cfg.Race.OddsRole),
		Operator:         config.Address(cfg.Race.Operator),
		HouseOwner:       config.Address(cfg.Race.HouseOwner),
		HouseCompetitors: cfg.Race.HouseCompetitors,
		OddsWindow:       cfg.Race.OddsWindow,
		BettingWindow:    cfg.Race.BettingWindow,
		Cooldown:         cfg.Race.Cooldown,
		MaxStake:         cfg.Race.MaxStake,
		QueueCapacity:    cfg.Race.QueueCapacity,
		Odds:             cfg.Race.OddsConfig(),
		Model:            model,
		Generation:       gen,
	}, nil
}

// buildPublisher arma el fanout de eventos: log, Kafka y métricas.
func buildPublisher(cfg *config.Config, d *deps) ports.EventPublisher {
	var sinks []ports.EventPublisher
	if cfg.Events.Log {
		sinks = append(sinks, notify.NewLogPublisher(slog.Default()))
	}
	if len(cfg.Events.Brokers) > 0 {
		k, err := notify.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		if err != nil {
			slog.Warn("kafka publisher disabled", "err", err)
		} else {
			d.closers = append(d.closers, func() {
				if err := k.Close(); err != nil {
					slog.Warn("kafka close failed", "err", err)
				}
			})
			sinks = append(sinks, k)
		}
	}
	sinks = append(sinks, d.metrics)
	return notify.NewFanout(sinks...)
}

func buildProbabilities(cfg *config.Config, gen domain.Generation) (ports.ProbabilitySource, error) {
	switch cfg.Probability.Mode {
	case "montecarlo":
		return probability.NewMonteCarlo(cfg.Probability.Samples, cfg.Probability.Workers, gen), nil
	case "table":
		t, err := probability.LoadTable(cfg.Probability.TablePath)
		if err != nil {
			return nil, fmt.Errorf("buildProbabilities: %w", err)
		}
		slog.Info("probability table loaded", "entries", t.Len())
		return t, nil
	}
	return nil, nil
}
