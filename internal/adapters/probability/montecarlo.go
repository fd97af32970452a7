package probability

// montecarlo.go: estimación de P(ganar) por carril corriendo el simulador.
//
// Cada muestra i usa la seed keccak256(tag ‖ scores ‖ uint256(i)), así que
// el resultado es determinista para (scores, muestras, generación) sin
// importar cuántos workers haya. Un dead heat en 1º reparte el crédito:
// cada muestra vale 60 unidades (divisible entre 1..6 carriles).

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/derby/internal/domain"
)

const (
	sampleTag    = "derby/montecarlo/v1"
	sampleWeight = 60

	DefaultSamples = 2000
)

// MonteCarlo implementa ports.ProbabilitySource con un worker pool sobre
// domain.Simulate. Cachea por vector de scores.
type MonteCarlo struct {
	samples    int
	workers    int
	generation domain.Generation

	mu    sync.Mutex
	cache map[domain.Scores][domain.LaneCount]uint64
}

// NewMonteCarlo crea el estimador. workers <= 0 usa runtime.NumCPU().
func NewMonteCarlo(samples, workers int, gen domain.Generation) *MonteCarlo {
	if samples <= 0 {
		samples = DefaultSamples
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if gen == 0 {
		gen = domain.GenerationTick
	}
	return &MonteCarlo{
		samples:    samples,
		workers:    workers,
		generation: gen,
		cache:      make(map[domain.Scores][domain.LaneCount]uint64),
	}
}

// WinProbabilities implementa ports.ProbabilitySource.
func (m *MonteCarlo) WinProbabilities(ctx context.Context, scores domain.Scores) ([domain.LaneCount]uint64, error) {
	m.mu.Lock()
	if p, ok := m.cache[scores]; ok {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	credits, err := m.run(ctx, scores)
	if err != nil {
		return [domain.LaneCount]uint64{}, fmt.Errorf("probability.MonteCarlo: %w", err)
	}
	probs := toBps(credits, uint64(m.samples)*sampleWeight)

	m.mu.Lock()
	m.cache[scores] = probs
	m.mu.Unlock()
	return probs, nil
}

// run reparte las muestras entre los workers y suma sus créditos.
func (m *MonteCarlo) run(ctx context.Context, scores domain.Scores) ([domain.LaneCount]uint64, error) {
	workCh := make(chan int, m.samples)
	resultCh := make(chan [domain.LaneCount]uint64, m.workers)
	errCh := make(chan error, m.workers)

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local [domain.LaneCount]uint64
			for idx := range workCh {
				if ctx.Err() != nil {
					continue
				}
				out, err := domain.Simulate(sampleSeed(scores, idx), scores, m.generation)
				if err != nil {
					errCh <- err
					return
				}
				first := out.Positions[0]
				share := uint64(sampleWeight / int(first.DeadHeat))
				for _, lane := range first.Lanes.Lanes() {
					local[lane] += share
				}
			}
			resultCh <- local
		}()
	}

	for i := 0; i < m.samples; i++ {
		workCh <- i
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
		close(errCh)
	}()

	var total [domain.LaneCount]uint64
	for local := range resultCh {
		for lane, c := range local {
			total[lane] += c
		}
	}
	if err := <-errCh; err != nil {
		return total, err
	}
	if err := ctx.Err(); err != nil {
		return total, err
	}

	slog.Debug("monte carlo complete", "scores", scores, "samples", m.samples, "workers", m.workers)
	return total, nil
}

func sampleSeed(scores domain.Scores, idx int) common.Hash {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], uint64(idx))
	return crypto.Keccak256Hash([]byte(sampleTag), scores[:], w[:])
}

// toBps convierte créditos en bps que suman exactamente domain.Scale,
// repartiendo el resto por mayor residuo (empate: carril menor).
func toBps(credits [domain.LaneCount]uint64, total uint64) [domain.LaneCount]uint64 {
	var (
		probs [domain.LaneCount]uint64
		rems  [domain.LaneCount]uint64
		sum   uint64
	)
	if total == 0 {
		return probs
	}
	for lane, c := range credits {
		probs[lane] = c * domain.Scale / total
		rems[lane] = c * domain.Scale % total
		sum += probs[lane]
	}

	order := make([]int, domain.LaneCount)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rems[order[a]] > rems[order[b]] })
	for i := 0; sum < domain.Scale && i < len(order); i++ {
		if credits[order[i]] == 0 {
			continue
		}
		probs[order[i]]++
		sum++
	}
	return probs
}
