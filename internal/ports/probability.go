package ports

import (
	"context"

	"github.com/alejandrodnm/derby/internal/domain"
)

// ProbabilitySource estima la probabilidad de victoria por carril (bps).
type ProbabilitySource interface {
	WinProbabilities(ctx context.Context, scores domain.Scores) ([domain.LaneCount]uint64, error)
}
