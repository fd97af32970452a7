package domain

// LaneCount es el número fijo de carriles por carrera. Todas las colecciones
// por carril son arrays de este tamaño, nunca slices.
const LaneCount = 6

const (
	// Scale es la base de los valores en basis points (10000 = 1.0×).
	Scale = 10_000

	// TrackLength es la distancia a recorrer para cruzar la meta.
	TrackLength = 1000
	// SpeedRange es el rango de la velocidad base por tick: [1, SpeedRange].
	SpeedRange = 20
	// Precision escala la interpolación fraccional del tiempo de llegada.
	Precision = 1000
	// FinishOvershoot es lo que cada carril debe superar TrackLength antes de
	// terminar la simulación.
	FinishOvershoot = 20
	// MinScoreMultiplierBps es el multiplicador de velocidad de un score 1.
	// Score 10 corre a 1.0× (Scale); el resto es lineal entre ambos.
	MinScoreMultiplierBps = 7000
	// MaxTicks acota la simulación. Con velocidad mínima 1 ningún carril
	// puede necesitar más de TrackLength+FinishOvershoot ticks.
	MaxTicks = TrackLength + FinishOvershoot + 1

	// MinScore y MaxScore acotan el score efectivo de un carril.
	MinScore = 1
	MaxScore = 10

	// MaxHouseEdgeBps es el tope duro del house edge configurable.
	MaxHouseEdgeBps = 2000
)

// Tags de dominio para derivar seeds a partir de la entropía del ledger.
const (
	RaceSeedTag   = "derby/race-seed/v1"
	LineupSeedTag = "derby/lineup-seed/v1"
)
