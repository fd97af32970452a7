package domain

// simulator.go: carrera tick a tick, determinista dado (seed, scores, generación).
//
// Por tick y por carril:
//   1. velocidad base en [1, SpeedRange]
//   2. escalado por el multiplicador del score (bps)
//   3. redondeo con un segundo draw contra el resto fraccional, para que el
//      valor esperado se conserve exacto (sin sesgo de floor)
//   4. floor en 1: todos los carriles avanzan siempre
//
// El tiempo de llegada se interpola dentro del tick:
//   finishTime = tick*Precision + distanciaRestante*Precision/velocidad
// Solo hay dead heat si los finishTime son exactamente iguales.

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Scores son los scores efectivos por carril, en [MinScore, MaxScore].
type Scores [LaneCount]uint8

// LaneSet es un conjunto de carriles como bitmask (bit i = carril i).
type LaneSet uint8

// With devuelve el conjunto con lane añadido.
func (s LaneSet) With(lane int) LaneSet { return s | 1<<uint(lane) }

// Has indica si lane pertenece al conjunto.
func (s LaneSet) Has(lane int) bool { return lane >= 0 && lane < LaneCount && s&(1<<uint(lane)) != 0 }

// Count devuelve el número de carriles del conjunto.
func (s LaneSet) Count() int { return bits.OnesCount8(uint8(s)) }

// Lanes devuelve los carriles en orden ascendente.
func (s LaneSet) Lanes() []int {
	out := make([]int, 0, s.Count())
	for lane := 0; lane < LaneCount; lane++ {
		if s.Has(lane) {
			out = append(out, lane)
		}
	}
	return out
}

// PositionGroup es un puesto del podio: los carriles que lo comparten y el
// número de carriles en dead heat (0 si el puesto quedó vacío).
type PositionGroup struct {
	Lanes    LaneSet `json:"lanes"`
	DeadHeat uint8   `json:"dead_heat"`
}

// Empty indica que el puesto colapsó por un empate anterior.
func (g PositionGroup) Empty() bool { return g.DeadHeat == 0 }

// Outcome es el resultado completo de una simulación.
type Outcome struct {
	Seed        common.Hash       `json:"seed"`
	Positions   [3]PositionGroup  `json:"positions"`
	FinishOrder [LaneCount]uint8  `json:"finish_order"`
	FinishTimes [LaneCount]uint64 `json:"finish_times"`
	Distances   [LaneCount]uint64 `json:"distances"`
	Ticks       uint64            `json:"ticks"`
}

// NormalizeScore aplica el clamp de entrada: 0 se trata como MaxScore.
func NormalizeScore(s uint8) (uint8, error) {
	if s == 0 {
		return MaxScore, nil
	}
	if s > MaxScore {
		return 0, fmt.Errorf("%w: %d", ErrInvalidScore, s)
	}
	return s, nil
}

// EffectiveScore es la media redondeada (half-up) de los tres atributos.
func EffectiveScore(stats [3]uint8) (uint8, error) {
	sum := 0
	for _, s := range stats {
		n, err := NormalizeScore(s)
		if err != nil {
			return 0, err
		}
		sum += int(n)
	}
	return uint8((sum + 1) / 3), nil
}

// ScoreMultiplierBps mapea score 1 → MinScoreMultiplierBps y 10 → Scale.
func ScoreMultiplierBps(score uint8) uint64 {
	return MinScoreMultiplierBps + (Scale-MinScoreMultiplierBps)*uint64(score-MinScore)/(MaxScore-MinScore)
}

// Simulate corre la carrera completa.
func Simulate(seed common.Hash, scores Scores, gen Generation) (Outcome, error) {
	return simulate(seed, scores, gen.NewSource(seed))
}

func simulate(seed common.Hash, scores Scores, src Source) (Outcome, error) {
	var mult [LaneCount]uint64
	for lane, s := range scores {
		n, err := NormalizeScore(s)
		if err != nil {
			return Outcome{}, fmt.Errorf("domain.Simulate: lane %d: %w", lane, err)
		}
		mult[lane] = ScoreMultiplierBps(n)
	}

	out := Outcome{Seed: seed}
	var finished LaneSet

	for tick := uint64(0); ; tick++ {
		if tick >= MaxTicks {
			return Outcome{}, fmt.Errorf("domain.Simulate: %w", ErrMaxTicksExceeded)
		}
		src.BeginTick(tick)

		done := true
		for lane := 0; lane < LaneCount; lane++ {
			speed := laneSpeed(src, mult[lane])
			before := out.Distances[lane]
			out.Distances[lane] += speed

			if !finished.Has(lane) && out.Distances[lane] >= TrackLength {
				remaining := TrackLength - before
				out.FinishTimes[lane] = tick*Precision + remaining*Precision/speed
				finished = finished.With(lane)
			}
			if out.Distances[lane] < TrackLength+FinishOvershoot {
				done = false
			}
		}
		if done {
			out.Ticks = tick + 1
			break
		}
	}

	out.FinishOrder, out.Positions = rankFinish(out.FinishTimes)
	return out, nil
}

// laneSpeed consume siempre dos draws (velocidad y redondeo) para que el
// stream quede alineado por carril en ambas generaciones.
func laneSpeed(src Source, multBps uint64) uint64 {
	base := src.Roll(SpeedRange) + 1
	scaled := base * multBps
	speed := scaled / Scale
	if src.Roll(Scale) < scaled%Scale {
		speed++
	}
	if speed < 1 {
		speed = 1
	}
	return speed
}

// rankFinish ordena por finishTime (carril como desempate estable) y arma
// los tres puestos. El rango de un grupo es 1 + carriles por delante, así que
// un empate doble en 1º deja vacío el 2º, y uno en 2º deja vacío el 3º.
func rankFinish(times [LaneCount]uint64) ([LaneCount]uint8, [3]PositionGroup) {
	idx := make([]int, LaneCount)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return times[idx[a]] < times[idx[b]]
	})

	var order [LaneCount]uint8
	for i, lane := range idx {
		order[i] = uint8(lane)
	}

	var groups [3]PositionGroup
	ahead := 0
	for i := 0; i < LaneCount && ahead < len(groups); {
		j := i
		var set LaneSet
		for j < LaneCount && times[idx[j]] == times[idx[i]] {
			set = set.With(idx[j])
			j++
		}
		groups[ahead] = PositionGroup{Lanes: set, DeadHeat: uint8(j - i)}
		ahead += j - i
		i = j
	}
	return order, groups
}
