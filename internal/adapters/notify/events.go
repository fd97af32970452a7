package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/derby/internal/domain"
	"github.com/alejandrodnm/derby/internal/ports"
)

// LogPublisher implementa ports.EventPublisher escribiendo cada evento con slog.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher usa el logger dado o slog.Default() si es nil.
func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

// Publish implementa ports.EventPublisher.
func (p *LogPublisher) Publish(ctx context.Context, events []domain.Event) error {
	for _, e := range events {
		attrs := []any{"id", e.ID, "race_id", e.RaceID, "point", e.Point}
		if e.Participant != "" {
			attrs = append(attrs, "participant", e.Participant)
		}
		if e.Competitor != 0 {
			attrs = append(attrs, "competitor", e.Competitor)
		}
		if e.BetType != "" {
			attrs = append(attrs, "bet_type", e.BetType, "lane", e.Lane)
		}
		if e.Amount != 0 {
			attrs = append(attrs, "amount", e.Amount)
		}
		if e.Detail != "" {
			attrs = append(attrs, "detail", e.Detail)
		}
		p.log.InfoContext(ctx, string(e.Type), attrs...)
	}
	return nil
}

// Fanout reparte los eventos entre varios publishers. Un sink que falla no
// impide que los demás reciban el lote; los errores se agregan.
type Fanout struct {
	sinks []ports.EventPublisher
}

// NewFanout ignora los sinks nil.
func NewFanout(sinks ...ports.EventPublisher) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len devuelve el número de sinks activos.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish implementa ports.EventPublisher.
func (f *Fanout) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for i, s := range f.sinks {
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify.Fanout: %w", errors.Join(errs...))
	}
	return nil
}
