package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/derby/internal/domain"
)

// Metrics implementa ports.EventPublisher y ports.Notifier actualizando
// métricas Prometheus. Usa su propio registry para no chocar en tests.
type Metrics struct {
	registry *prometheus.Registry

	events    *prometheus.CounterVec
	staked    *prometheus.CounterVec
	paid      prometheus.Counter
	liability prometheus.Gauge
	queueLen  prometheus.Gauge
	lastRace  prometheus.Gauge
	actions   *prometheus.CounterVec
}

// NewMetrics registra los colectores.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "events_total",
			Help:      "Lifecycle events published, by type.",
		}, []string{"type"}),
		staked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "staked_total",
			Help:      "Stake accepted, by bet type.",
		}, []string{"bet_type"}),
		paid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "paid_out_total",
			Help:      "Payouts and refunds transferred to participants.",
		}),
		liability: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "derby",
			Name:      "liability",
			Help:      "Outstanding liability from the last operator summary.",
		}),
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "derby",
			Name:      "queue_length",
			Help:      "Live queue entries from the last operator summary.",
		}),
		lastRace: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "derby",
			Name:      "last_race_id",
			Help:      "Id of the most recent race.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "operator_actions_total",
			Help:      "Operator summaries observed, by suggested action.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(m.events, m.staked, m.paid, m.liability, m.queueLen, m.lastRace, m.actions)
	return m
}

// Registry expone el registry (tests y handlers propios).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Publish implementa ports.EventPublisher.
func (m *Metrics) Publish(_ context.Context, events []domain.Event) error {
	for _, e := range events {
		m.events.WithLabelValues(string(e.Type)).Inc()
		switch e.Type {
		case domain.EventWagerPlaced:
			m.staked.WithLabelValues(e.BetType).Add(float64(e.Amount))
		case domain.EventPayoutClaimed:
			m.paid.Add(float64(e.Amount))
		case domain.EventRaceCreated:
			m.lastRace.Set(float64(e.RaceID))
		}
	}
	return nil
}

// NotifySummary implementa la mitad de ports.Notifier que le interesa.
func (m *Metrics) NotifySummary(_ context.Context, s domain.OperatorSummary) error {
	m.liability.Set(float64(s.Liability))
	m.queueLen.Set(float64(s.QueueLen))
	m.actions.WithLabelValues(string(s.Action)).Inc()
	return nil
}

// NotifyRace no actualiza nada: los eventos ya cubren el ciclo de vida.
func (m *Metrics) NotifyRace(context.Context, domain.Race) error { return nil }

// Handler devuelve el handler HTTP de /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve levanta /metrics y /healthz en addr hasta que ctx se cancele.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("notify.Metrics.Serve: %w", err)
	}
	return nil
}
