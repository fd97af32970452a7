package domain

// prng.go: generadores deterministas de enteros acotados.
//
// Dos generaciones con el mismo contrato (Source):
//   - A (RejectionSource): 256 bits de entropía + cursor de bits. Consume el
//     ancho mínimo que cubre n y rechaza valores fuera del mayor múltiplo de n,
//     así que no tiene sesgo de módulo. Re-hashea al agotar la entropía.
//   - B (TickSource): un keccak256(seed ‖ tick) por tick, cortado en slices
//     fijos de 2 bytes aplicando módulo directo. El sesgo con n ≤ 10000 es
//     despreciable y ahorra casi todos los hashes.
//
// Ambas son funciones puras de (seed, índice de llamada).

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Source entrega enteros en [0, n) de forma determinista.
type Source interface {
	// BeginTick marca el inicio del tick t de la simulación.
	BeginTick(t uint64)
	// Roll devuelve un valor en [0, n). n debe ser > 0.
	Roll(n uint64) uint64
}

// Generation identifica la implementación de Source usada por una carrera.
type Generation uint8

const (
	GenerationRejection Generation = iota + 1
	GenerationTick
)

func (g Generation) String() string {
	switch g {
	case GenerationRejection:
		return "rejection"
	case GenerationTick:
		return "tick"
	default:
		return fmt.Sprintf("generation(%d)", uint8(g))
	}
}

// ParseGeneration convierte el nombre de config en Generation.
func ParseGeneration(s string) (Generation, error) {
	switch s {
	case "rejection", "a", "A":
		return GenerationRejection, nil
	case "tick", "b", "B":
		return GenerationTick, nil
	}
	return 0, fmt.Errorf("domain.ParseGeneration: unknown generation %q", s)
}

// NewSource crea la Source de esta generación para seed.
func (g Generation) NewSource(seed common.Hash) Source {
	if g == GenerationTick {
		return NewTickSource(seed)
	}
	return NewRejectionSource(seed)
}

// --- generación A ---

const entropyBits = 256

// maxRejectionRange acota n para que el ancho en bits quepa en uint64
// sin desbordar el cálculo del límite de rechazo.
const maxRejectionRange = 1 << 32

// RejectionSource es la generación A.
type RejectionSource struct {
	entropy common.Hash
	cursor  uint
}

// NewRejectionSource arranca con la seed como primeros 256 bits.
func NewRejectionSource(seed common.Hash) *RejectionSource {
	return &RejectionSource{entropy: seed}
}

// BeginTick no afecta a la generación A: el stream es continuo.
func (s *RejectionSource) BeginTick(uint64) {}

// Roll implementa Source.
func (s *RejectionSource) Roll(n uint64) uint64 {
	if n == 0 || n > maxRejectionRange {
		panic(fmt.Sprintf("domain.RejectionSource: range %d out of bounds", n))
	}
	if n == 1 {
		return 0
	}
	width := uint(bits.Len64(n - 1))
	limit := (uint64(1) << width) / n * n
	for {
		if s.cursor+width > entropyBits {
			s.entropy = crypto.Keccak256Hash(s.entropy[:])
			s.cursor = 0
		}
		v := s.take(width)
		if v < limit {
			return v % n
		}
	}
}

// take lee width bits MSB-first desde el cursor.
func (s *RejectionSource) take(width uint) uint64 {
	var v uint64
	for i := uint(0); i < width; i++ {
		bit := s.cursor + i
		b := s.entropy[bit/8] >> (7 - bit%8) & 1
		v = v<<1 | uint64(b)
	}
	s.cursor += width
	return v
}

// --- generación B ---

// tickSlots es el número de slices de 2 bytes en un hash de 32 bytes.
const tickSlots = 16

// maxTickRange es el mayor n que un slice de 2 bytes puede servir.
const maxTickRange = 1 << 16

// TickSource es la generación B.
type TickSource struct {
	seed  common.Hash
	block common.Hash
	slot  int
}

// NewTickSource prepara el tick 0.
func NewTickSource(seed common.Hash) *TickSource {
	s := &TickSource{seed: seed}
	s.BeginTick(0)
	return s
}

// BeginTick hashea (seed, t) una sola vez y reinicia los slices.
func (s *TickSource) BeginTick(t uint64) {
	s.block = crypto.Keccak256Hash(s.seed[:], word(t))
	s.slot = 0
}

// Roll implementa Source con módulo directo sobre el siguiente slice.
// Si un tick agota sus 16 slices se encadena keccak256(block).
func (s *TickSource) Roll(n uint64) uint64 {
	if n == 0 || n > maxTickRange {
		panic(fmt.Sprintf("domain.TickSource: range %d out of bounds", n))
	}
	if s.slot == tickSlots {
		s.block = crypto.Keccak256Hash(s.block[:])
		s.slot = 0
	}
	off := s.slot * 2
	s.slot++
	return uint64(binary.BigEndian.Uint16(s.block[off:off+2])) % n
}

// --- derivación de seeds ---

// DeriveSeed combina la entropía del ledger con la identidad de la carrera:
// keccak256(entropy ‖ uint256(raceID) ‖ contract ‖ tag).
func DeriveSeed(entropy common.Hash, raceID uint64, contract common.Address, tag string) common.Hash {
	return crypto.Keccak256Hash(entropy[:], word(raceID), contract[:], []byte(tag))
}

// word codifica v como palabra big-endian de 32 bytes.
func word(v uint64) []byte {
	var b [32]byte
	binary.BigEndian.PutUint64(b[24:], v)
	return b[:]
}
