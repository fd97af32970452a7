package domain

// payout.go: cálculo de pagos, liability y exposición.
//
// Fixed odds:   payout = floor(stake*odds/Scale) / deadHeat
// Parimutuel:   netPool = pool*(Scale-edge)/Scale, repartido en partes iguales
//               entre los carriles que pagan y pro-rata por stake dentro del carril.
//
// El divisor de dead heat solo aplica en el último puesto que paga el mercado:
// win divide en empate de 1º, place en empate de 2º, show en empate de 3º.

import (
	"fmt"
	"math"
	"math/bits"
)

// PayoutModel es el modelo de liquidación de una carrera.
type PayoutModel uint8

const (
	ModelFixedOdds PayoutModel = iota + 1
	ModelParimutuel
)

func (m PayoutModel) String() string {
	switch m {
	case ModelFixedOdds:
		return "fixed"
	case ModelParimutuel:
		return "parimutuel"
	default:
		return fmt.Sprintf("model(%d)", uint8(m))
	}
}

// ParsePayoutModel acepta "fixed" o "parimutuel".
func ParsePayoutModel(s string) (PayoutModel, error) {
	switch s {
	case "fixed", "fixed_odds":
		return ModelFixedOdds, nil
	case "parimutuel":
		return ModelParimutuel, nil
	}
	return 0, fmt.Errorf("domain.ParsePayoutModel: unknown model %q", s)
}

// PayingDivisor devuelve el divisor de dead heat con el que paga un carril en
// un mercado, o 0 si el carril no cobra.
func (o Outcome) PayingDivisor(lane int, bt BetType) uint64 {
	last := int(bt)
	for pos := 0; pos <= last && pos < len(o.Positions); pos++ {
		g := o.Positions[pos]
		if !g.Lanes.Has(lane) {
			continue
		}
		if pos == last {
			return uint64(g.DeadHeat)
		}
		return 1
	}
	return 0
}

// mulDiv calcula a*b/d con producto de 128 bits; satura en MaxUint64.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}

// FixedPayout es el pago fijo sin dead heat: floor(stake*odds/Scale).
func FixedPayout(stake, oddsBps uint64) uint64 {
	return mulDiv(stake, oddsBps, Scale)
}

// PayoutFor devuelve lo que cobra una apuesta. Carrera cancelada: el stake.
// Carrera activa: 0.
func (r *Race) PayoutFor(w Wager) uint64 {
	switch {
	case r.Cancelled:
		return w.Stake
	case !r.Settled:
		return 0
	}
	lane := int(w.Lane)
	div := r.Outcome.PayingDivisor(lane, w.BetType)
	if div == 0 {
		return 0
	}
	if r.Model == ModelParimutuel {
		return r.parimutuelPayout(w, lane)
	}
	return FixedPayout(w.Stake, r.Odds[w.BetType][lane]) / div
}

func (r *Race) parimutuelPayout(w Wager, lane int) uint64 {
	lanePool := r.Pools[w.BetType][lane]
	if lanePool == 0 {
		return 0
	}
	share := r.parimutuelShare(w.BetType)
	return mulDiv(share, w.Stake, lanePool)
}

// parimutuelShare es la parte del pool neto que recibe cada carril pagador.
func (r *Race) parimutuelShare(bt BetType) uint64 {
	paying := 0
	for lane := 0; lane < LaneCount; lane++ {
		if r.Outcome.PayingDivisor(lane, bt) > 0 {
			paying++
		}
	}
	if paying == 0 {
		return 0
	}
	return NetPool(r.TotalPool(bt), r.HouseEdgeBps) / uint64(paying)
}

// NetPool descuenta el house edge de un pool parimutuel.
func NetPool(total, edgeBps uint64) uint64 {
	return mulDiv(total, Scale-edgeBps, Scale)
}

// SettlementLiability calcula lo que la carrera liquidada debe a sus
// apostadores. Acota por arriba la suma de PayoutFor de todas las apuestas,
// porque floor(a)+floor(b) ≤ floor(a+b).
func (r *Race) SettlementLiability() uint64 {
	var total uint64
	for _, bt := range BetTypes {
		if r.Model == ModelParimutuel {
			share := r.parimutuelShare(bt)
			for lane := 0; lane < LaneCount; lane++ {
				if r.Pools[bt][lane] > 0 && r.Outcome.PayingDivisor(lane, bt) > 0 {
					total = satAdd(total, share)
				}
			}
			continue
		}
		for lane := 0; lane < LaneCount; lane++ {
			div := r.Outcome.PayingDivisor(lane, bt)
			if div == 0 {
				continue
			}
			total = satAdd(total, FixedPayout(r.Pools[bt][lane], r.Odds[bt][lane])/div)
		}
	}
	return total
}

// Exposure es el peor pago posible de la carrera con los pools actuales,
// sobre todos los resultados posibles. Win paga como mucho el mayor carril
// (un empate divide). Place y show pueden pagar todos los carriles completos
// si el empate en 1º es lo bastante ancho, así que cuentan la suma entera.
func (r *Race) Exposure() uint64 {
	if r.Model == ModelParimutuel {
		var total uint64
		for _, bt := range BetTypes {
			total = satAdd(total, NetPool(r.TotalPool(bt), r.HouseEdgeBps))
		}
		return total
	}

	var total uint64
	for _, bt := range BetTypes {
		var top, sum uint64
		for lane := 0; lane < LaneCount; lane++ {
			p := FixedPayout(r.Pools[bt][lane], r.Odds[bt][lane])
			sum = satAdd(sum, p)
			if p > top {
				top = p
			}
		}
		if bt == BetWin {
			total = satAdd(total, top)
		} else {
			total = satAdd(total, sum)
		}
	}
	return total
}

// ExposureWith es la exposición si se aceptara una apuesta más.
func (r *Race) ExposureWith(lane uint8, bt BetType, stake uint64) uint64 {
	next := *r
	next.Pools[bt][lane] = satAdd(next.Pools[bt][lane], stake)
	return next.Exposure()
}

func satAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return s
}
