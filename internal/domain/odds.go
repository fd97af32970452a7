package domain

// odds.go: conversión probabilidad → cuota fija con house edge.
//
// Todas las cuotas y probabilidades están en basis points:
//   57000 = 5.70×, 1667 = 16.67%.
//
// Fórmula: odds = Scale*(Scale-edge)/p, con floor en MinOddsBps.
// Un vector publicado se valida exigiendo sum(1/odds) ≥ k*Scale/(Scale-edge),
// donde k es el número de puestos que paga el mercado (1 win, 2 place, 3 show).

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// BetType es el mercado de una apuesta.
type BetType uint8

const (
	BetWin BetType = iota
	BetPlace
	BetShow
)

// BetTypeCount es el número de mercados por carrera.
const BetTypeCount = 3

// BetTypes en el orden fijo de resolución de claims.
var BetTypes = [BetTypeCount]BetType{BetWin, BetPlace, BetShow}

func (b BetType) String() string {
	switch b {
	case BetWin:
		return "win"
	case BetPlace:
		return "place"
	case BetShow:
		return "show"
	default:
		return fmt.Sprintf("bet(%d)", uint8(b))
	}
}

// Valid indica si b es uno de los tres mercados.
func (b BetType) Valid() bool { return b < BetTypeCount }

// PaidPositions es cuántos puestos paga el mercado.
func (b BetType) PaidPositions() int { return int(b) + 1 }

// ParseBetType acepta "win", "place" o "show".
func ParseBetType(s string) (BetType, error) {
	switch s {
	case "win":
		return BetWin, nil
	case "place":
		return BetPlace, nil
	case "show":
		return BetShow, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBetType, s)
}

// OddsVector son las cuotas de un mercado por carril.
type OddsVector [LaneCount]uint64

// OddsBoard son las cuotas de los tres mercados.
type OddsBoard [BetTypeCount]OddsVector

// OddsConfig parametriza el OddsEngine.
type OddsConfig struct {
	HouseEdgeBps uint64
	MinOddsBps   uint64
	MaxOddsBps   uint64
	// Fallback fija la cuota plana por mercado; 0 usa FlatOdds.
	Fallback [BetTypeCount]uint64
}

// DefaultOddsConfig: 5% de edge, floor 1.01×, techo 100×.
func DefaultOddsConfig() OddsConfig {
	return OddsConfig{
		HouseEdgeBps: 500,
		MinOddsBps:   10_100,
		MaxOddsBps:   1_000_000,
	}
}

// FlatOdds es la cuota uniforme de un mercado: (Scale-edge)*LaneCount/k.
// Con edge 500 da 5.70× / 2.85× / 1.90×, que cumplen el overround exacto.
func FlatOdds(cfg OddsConfig, bt BetType) uint64 {
	if f := cfg.Fallback[bt]; f > 0 {
		return f
	}
	return (Scale - cfg.HouseEdgeBps) * LaneCount / uint64(bt.PaidPositions())
}

// FlatBoard es el tablero sin fuente de probabilidades: FlatOdds en cada
// carril de cada mercado.
func FlatBoard(cfg OddsConfig) OddsBoard {
	var board OddsBoard
	for _, bt := range BetTypes {
		board[bt] = flatVector(cfg, bt)
	}
	return board
}

// QuoteOdds produce el tablero de cuotas. Sin probabilidades (winProbs nil)
// devuelve FlatBoard. Con probabilidades cada carril recibe
// ProbabilityToOdds; si el floor del favorito deja el mercado bajo el
// overround mínimo, se acortan los demás carriles (ver shorten).
func QuoteOdds(cfg OddsConfig, scores Scores, winProbs *[LaneCount]uint64) (OddsBoard, error) {
	if winProbs == nil {
		return FlatBoard(cfg), nil
	}

	win := SmoothTiedProbabilities(scores, *winProbs)
	place, show := HarvilleTopK(win)
	// Place y show derivan de win, que ya está suavizado; se vuelven a
	// promediar por si el redondeo de Harville separó carriles empatados.
	place = SmoothTiedProbabilities(scores, place)
	show = SmoothTiedProbabilities(scores, show)

	var board OddsBoard
	probs := [BetTypeCount][LaneCount]uint64{win, place, show}
	for _, bt := range BetTypes {
		var vec OddsVector
		for lane := range vec {
			vec[lane] = ProbabilityToOdds(cfg, probs[bt][lane])
		}
		vec, err := shorten(cfg, bt, vec)
		if err != nil {
			return OddsBoard{}, fmt.Errorf("domain.QuoteOdds: %w", err)
		}
		board[bt] = vec
	}
	return board, nil
}

// shorten recupera el overround de un mercado cuyo favorito quedó en el
// floor: escala a la baja las cuotas de los carriles libres (por encima del
// floor) en proporción free/need. Un carril que cae bajo el floor se fija
// ahí y se repite. Nunca sube una cuota, así que cada carril sigue
// ≤ Scale*(Scale-edge)/p o en el floor.
func shorten(cfg OddsConfig, bt BetType, vec OddsVector) (OddsVector, error) {
	for _, o := range vec {
		if o == 0 {
			return vec, ValidateOdds(cfg, bt, vec)
		}
	}
	paid := new(big.Rat).SetInt64(int64(bt.PaidPositions()))
	margin := int64(Scale - cfg.HouseEdgeBps)

	for i := 0; i < LaneCount+1; i++ {
		if overround(cfg, vec).Cmp(paid) >= 0 {
			break
		}
		fixed, free := new(big.Rat), new(big.Rat)
		for _, o := range vec {
			c := new(big.Rat).SetFrac64(margin, int64(o))
			if o <= cfg.MinOddsBps {
				fixed.Add(fixed, c)
			} else {
				free.Add(free, c)
			}
		}
		need := new(big.Rat).Sub(paid, fixed)
		if free.Sign() == 0 || need.Sign() <= 0 {
			break
		}
		for lane, o := range vec {
			if o <= cfg.MinOddsBps {
				continue
			}
			v := new(big.Rat).SetInt64(int64(o))
			v.Mul(v, free).Quo(v, need)
			next := new(big.Int).Quo(v.Num(), v.Denom()).Uint64()
			if next < cfg.MinOddsBps {
				next = cfg.MinOddsBps
			}
			vec[lane] = next
		}
	}
	return vec, ValidateOdds(cfg, bt, vec)
}

// overround devuelve sum((Scale-edge)/o_i); el mercado es válido si es ≥ k.
func overround(cfg OddsConfig, vec OddsVector) *big.Rat {
	sum := new(big.Rat)
	for _, o := range vec {
		sum.Add(sum, new(big.Rat).SetFrac64(int64(Scale-cfg.HouseEdgeBps), int64(o)))
	}
	return sum
}

func flatVector(cfg OddsConfig, bt BetType) OddsVector {
	var v OddsVector
	flat := FlatOdds(cfg, bt)
	for lane := range v {
		v[lane] = flat
	}
	return v
}

// ValidateOddsConfig comprueba que cfg pueda producir un tablero publicable:
// edge bajo el tope, floor sobre 1.0×, techo sobre el floor y cuotas planas
// que pasen ValidateOdds en los tres mercados. Si las planas pasan, un
// mercado con todos los carriles en el floor también, así que shorten
// siempre encuentra solución.
func ValidateOddsConfig(cfg OddsConfig) error {
	if cfg.HouseEdgeBps > MaxHouseEdgeBps {
		return fmt.Errorf("%w: %w: %d bps", ErrInvalidOddsConfig, ErrHouseEdgeTooHigh, cfg.HouseEdgeBps)
	}
	if cfg.MinOddsBps <= Scale {
		return fmt.Errorf("%w: floor %d bps must be above 1.0x", ErrInvalidOddsConfig, cfg.MinOddsBps)
	}
	if cfg.MaxOddsBps > 0 && cfg.MaxOddsBps < cfg.MinOddsBps {
		return fmt.Errorf("%w: ceiling %d below floor %d", ErrInvalidOddsConfig, cfg.MaxOddsBps, cfg.MinOddsBps)
	}
	for _, bt := range BetTypes {
		if err := ValidateOdds(cfg, bt, flatVector(cfg, bt)); err != nil {
			return fmt.Errorf("%w: fallback: %w", ErrInvalidOddsConfig, err)
		}
	}
	return nil
}

// ProbabilityToOdds aplica odds = Scale*(Scale-edge)/p acotado a
// [MinOddsBps, MaxOddsBps]. p = 0 da el techo.
func ProbabilityToOdds(cfg OddsConfig, p uint64) uint64 {
	if p == 0 {
		return cfg.MaxOddsBps
	}
	odds := uint64(Scale) * (Scale - cfg.HouseEdgeBps) / p
	if odds < cfg.MinOddsBps {
		odds = cfg.MinOddsBps
	}
	if cfg.MaxOddsBps > 0 && odds > cfg.MaxOddsBps {
		odds = cfg.MaxOddsBps
	}
	return odds
}

// SmoothTiedProbabilities reemplaza la probabilidad de cada carril por la
// media redondeada de los carriles con su mismo score. Garantiza cuotas
// idénticas para inputs idénticos aunque la fuente tenga ruido.
func SmoothTiedProbabilities(scores Scores, probs [LaneCount]uint64) [LaneCount]uint64 {
	var out [LaneCount]uint64
	for lane := range probs {
		var sum, n uint64
		for other := range probs {
			if scores[other] == scores[lane] {
				sum += probs[other]
				n++
			}
		}
		out[lane] = (sum + n/2) / n
	}
	return out
}

// HarvilleTopK deriva las probabilidades de quedar entre los 2 y 3 primeros
// a partir de las de ganar (modelo de Harville), en enteros bps con
// redondeo hacia arriba para no subestimar el overround.
func HarvilleTopK(win [LaneCount]uint64) (place, show [LaneCount]uint64) {
	const s = int64(Scale)
	p := func(i int) int64 { return int64(win[i]) }

	for i := 0; i < LaneCount; i++ {
		second := int64(0)
		third := int64(0)
		for j := 0; j < LaneCount; j++ {
			if j == i {
				continue
			}
			den := s - p(j)
			if den <= 0 {
				continue
			}
			second += ceilDiv(p(j)*p(i), den)
			for k := 0; k < LaneCount; k++ {
				if k == i || k == j {
					continue
				}
				den2 := den * (s - p(j) - p(k))
				if den2 <= 0 {
					continue
				}
				third += ceilDiv(p(j)*p(k)*p(i), den2)
			}
		}
		place[i] = clampBps(p(i) + second)
		show[i] = clampBps(p(i) + second + third)
	}
	return place, show
}

func ceilDiv(num, den int64) int64 {
	return (num + den - 1) / den
}

func clampBps(v int64) uint64 {
	if v < 0 {
		return 0
	}
	if v > Scale {
		return Scale
	}
	return uint64(v)
}

// ValidateOdds rechaza un vector con algún carril bajo el floor (o sobre el
// techo) o cuyo overround no refleje el house edge.
func ValidateOdds(cfg OddsConfig, bt BetType, vec OddsVector) error {
	if !bt.Valid() {
		return ErrInvalidBetType
	}
	if cfg.HouseEdgeBps >= Scale {
		return fmt.Errorf("%w: %d bps", ErrHouseEdgeTooHigh, cfg.HouseEdgeBps)
	}
	for lane, o := range vec {
		if o == 0 || o < cfg.MinOddsBps {
			return fmt.Errorf("%w: %s lane %d = %d bps", ErrOddsBelowFloor, bt, lane, o)
		}
		if cfg.MaxOddsBps > 0 && o > cfg.MaxOddsBps {
			return fmt.Errorf("%w: %s lane %d = %d bps", ErrOddsAboveCeiling, bt, lane, o)
		}
	}
	// sum((Scale-edge)/o_i) ≥ k  ⇔  sum(Scale/o_i) ≥ k*Scale/(Scale-edge)
	if overround(cfg, vec).Cmp(new(big.Rat).SetInt64(int64(bt.PaidPositions()))) < 0 {
		return fmt.Errorf("%w: %s market", ErrOverroundTooLow, bt)
	}
	return nil
}

// ValidateBoard valida los tres mercados.
func ValidateBoard(cfg OddsConfig, board OddsBoard) error {
	for _, bt := range BetTypes {
		if err := ValidateOdds(cfg, bt, board[bt]); err != nil {
			return err
		}
	}
	return nil
}

// FormatBps formatea un valor en bps como decimal: 57000 → "5.70".
func FormatBps(v uint64) string {
	return decimal.New(int64(v), -4).StringFixed(2)
}
