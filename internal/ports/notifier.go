package ports

import (
	"context"

	"github.com/alejandrodnm/derby/internal/domain"
)

// EventPublisher recibe los eventos de una operación ya confirmada.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// Notifier presenta carreras y el estado del operador al usuario.
type Notifier interface {
	// NotifyRace muestra el race card: lineup, cuotas, pools y resultado.
	NotifyRace(ctx context.Context, race domain.Race) error

	// NotifySummary muestra qué acción toca al operador.
	NotifySummary(ctx context.Context, s domain.OperatorSummary) error
}
