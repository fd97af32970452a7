package domain

import "errors"

// ErrorKind clasifica un rechazo según la taxonomía del ledger.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindPrecondition: estado, ventana o acción duplicada. El caller puede
	// reintentar cuando la precondición se cumpla.
	KindPrecondition
	// KindCapacity: bankroll, cola o stake. Se reevalúa contra el estado vivo.
	KindCapacity
	// KindCollaborator: fallo de un colaborador externo (fondos, entropía).
	KindCollaborator
	// KindIntegrity: configuración inválida o invariante roto. Fatal.
	KindIntegrity
)

func (k ErrorKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindCapacity:
		return "capacity"
	case KindCollaborator:
		return "collaborator"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error es un rechazo tipado. Los valores exportados son sentinels
// comparables con errors.Is.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Precondition violations.
var (
	ErrNoActiveRace        = newError(KindPrecondition, "no active race")
	ErrRaceNotFound        = newError(KindPrecondition, "race not found")
	ErrRaceActive          = newError(KindPrecondition, "previous race still active")
	ErrCooldown            = newError(KindPrecondition, "cooldown after settlement has not elapsed")
	ErrLineupFinalized     = newError(KindPrecondition, "lineup already finalized")
	ErrLineupNotFinalized  = newError(KindPrecondition, "lineup not finalized")
	ErrOddsAlreadySet      = newError(KindPrecondition, "odds already published")
	ErrOddsNotSet          = newError(KindPrecondition, "odds not published")
	ErrOddsWindowClosed    = newError(KindPrecondition, "odds deadline has passed")
	ErrOddsDeadlinePending = newError(KindPrecondition, "odds deadline has not passed")
	ErrBettingClosed       = newError(KindPrecondition, "betting is not open")
	ErrBettingStillOpen    = newError(KindPrecondition, "betting close point has not passed")
	ErrRaceSettled         = newError(KindPrecondition, "race already settled")
	ErrRaceCancelled       = newError(KindPrecondition, "race already cancelled")
	ErrRaceNotSettled      = newError(KindPrecondition, "race not settled")
	ErrDuplicateWager      = newError(KindPrecondition, "wager of this type already placed")
	ErrZeroStake           = newError(KindPrecondition, "stake must be positive")
	ErrInvalidLane         = newError(KindPrecondition, "invalid lane")
	ErrInvalidBetType      = newError(KindPrecondition, "invalid bet type")
	ErrInvalidScore        = newError(KindPrecondition, "score out of range")
	ErrUnauthorized        = newError(KindPrecondition, "caller lacks the required role")
	ErrNotOwner            = newError(KindPrecondition, "caller does not hold the competitor")
	ErrHouseCompetitor     = newError(KindPrecondition, "house competitors cannot be queued")
	ErrAlreadyQueued       = newError(KindPrecondition, "participant or competitor already queued")
	ErrAlreadyRacing       = newError(KindPrecondition, "competitor is in the active race")
	ErrNothingToClaim      = newError(KindPrecondition, "nothing to claim")
	ErrEntropyPending      = newError(KindPrecondition, "entropy point has not been reached")
	ErrOddsBelowFloor      = newError(KindPrecondition, "odds below the minimum floor")
	ErrOddsAboveCeiling    = newError(KindPrecondition, "odds above the maximum ceiling")
	ErrOverroundTooLow     = newError(KindPrecondition, "overround below the house edge minimum")
	ErrRaceNotStuck        = newError(KindPrecondition, "race entropy is still retrievable")
)

// Capacity violations.
var (
	ErrStakeOverCap         = newError(KindCapacity, "stake above the configured cap")
	ErrInsufficientBankroll = newError(KindCapacity, "bankroll cannot cover worst-case liability")
	ErrQueueFull            = newError(KindCapacity, "queue is full")
	ErrHouseEdgeTooHigh     = newError(KindCapacity, "house edge above the hard cap")
)

// Collaborator failures.
var (
	ErrEntropyUnavailable     = newError(KindCollaborator, "entropy unavailable")
	ErrTransferFailed         = newError(KindCollaborator, "fund transfer failed")
	ErrProbabilityUnavailable = newError(KindCollaborator, "probability source has no answer")
	ErrCompetitorUnknown      = newError(KindCollaborator, "competitor unknown to registry")
)

// Integrity violations.
var (
	ErrMaxTicksExceeded       = newError(KindIntegrity, "simulation exceeded MaxTicks")
	ErrInvalidHouseCompetitor = newError(KindIntegrity, "house competitor not held by the house")
	ErrDuplicateCompetitor    = newError(KindIntegrity, "competitor appears twice in a lineup")
	ErrLiabilityUnderflow     = newError(KindIntegrity, "payout exceeds recorded liability")
	ErrInvalidOddsConfig      = newError(KindIntegrity, "odds configuration cannot produce a valid board")
)

// KindOf devuelve la clase del primer *Error en la cadena de err.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
