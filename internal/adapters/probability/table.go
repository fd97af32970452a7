package probability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/derby/internal/domain"
)

// TableEntry es una fila de la tabla: probabilidades de victoria (bps)
// para una combinación de scores, en el orden en que aparecen los scores.
type TableEntry struct {
	Scores []uint8  `yaml:"scores"`
	WinBps []uint64 `yaml:"win_bps"`
}

type tableFile struct {
	Entries []TableEntry `yaml:"entries"`
}

// Table implementa ports.ProbabilitySource sobre una tabla combinatoria
// precalculada. La clave es la combinación ordenada de scores, así que una
// fila sirve para cualquier permutación de carriles.
type Table struct {
	rows map[string][]uint64
}

// LoadTable lee la tabla desde un archivo YAML.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probability.LoadTable: read %q: %w", path, err)
	}
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("probability.LoadTable: parse %q: %w", path, err)
	}
	return NewTable(f.Entries)
}

// NewTable indexa las filas por su combinación canónica.
func NewTable(entries []TableEntry) (*Table, error) {
	t := &Table{rows: make(map[string][]uint64, len(entries))}
	for i, e := range entries {
		if len(e.Scores) != domain.LaneCount || len(e.WinBps) != domain.LaneCount {
			return nil, fmt.Errorf("probability.NewTable: entry %d: want %d scores and probabilities", i, domain.LaneCount)
		}
		var scores domain.Scores
		copy(scores[:], e.Scores)
		order := canonicalOrder(scores)

		probs := make([]uint64, domain.LaneCount)
		for rank, lane := range order {
			probs[rank] = e.WinBps[lane]
		}
		t.rows[key(scores, order)] = probs
	}
	return t, nil
}

// Len devuelve el número de combinaciones cargadas.
func (t *Table) Len() int { return len(t.rows) }

// WinProbabilities implementa ports.ProbabilitySource.
func (t *Table) WinProbabilities(_ context.Context, scores domain.Scores) ([domain.LaneCount]uint64, error) {
	order := canonicalOrder(scores)
	probs, ok := t.rows[key(scores, order)]
	if !ok {
		return [domain.LaneCount]uint64{}, fmt.Errorf("probability.Table: scores %v: %w", scores, domain.ErrProbabilityUnavailable)
	}
	var out [domain.LaneCount]uint64
	for rank, lane := range order {
		out[lane] = probs[rank]
	}
	return out, nil
}

// canonicalOrder devuelve los carriles ordenados por score descendente
// (carril ascendente en empate).
func canonicalOrder(scores domain.Scores) []int {
	order := make([]int, domain.LaneCount)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}

func key(scores domain.Scores, order []int) string {
	parts := make([]string, len(order))
	for i, lane := range order {
		parts[i] = strconv.Itoa(int(scores[lane]))
	}
	return strings.Join(parts, ",")
}
