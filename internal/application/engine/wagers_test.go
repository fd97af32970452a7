package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/domain"
)

func TestEnterQueue_Errors(t *testing.T) {
	h := newHarness(t, func(s *setup) { s.cfg.QueueCapacity = 2 })

	_, err := h.eng.EnterQueue(h.ctx, houseOwner, 101)
	require.ErrorIs(t, err, domain.ErrHouseCompetitor)

	_, err = h.eng.EnterQueue(h.ctx, bob, 1)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = h.eng.EnterQueue(h.ctx, alice, 999)
	require.ErrorIs(t, err, domain.ErrCompetitorUnknown)

	_, err = h.eng.EnterQueue(h.ctx, alice, 1)
	require.NoError(t, err)
	_, err = h.eng.EnterQueue(h.ctx, alice, 1)
	require.ErrorIs(t, err, domain.ErrAlreadyQueued)

	pos, err := h.eng.EnterQueue(h.ctx, bob, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	_, err = h.eng.EnterQueue(h.ctx, carol, 3)
	require.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Equal(t, domain.KindCapacity, domain.KindOf(err))
}

func TestEnterQueue_AlreadyRacing(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.EnterQueue(h.ctx, alice, 1)
	require.NoError(t, err)
	_, err = h.eng.CreateRace(h.ctx)
	require.NoError(t, err)

	_, err = h.eng.EnterQueue(h.ctx, alice, 1)
	require.ErrorIs(t, err, domain.ErrAlreadyRacing)
}

func TestEnterQueue_StaleEntryDiscarded(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.EnterQueue(h.ctx, alice, 1)
	require.NoError(t, err)
	require.NoError(t, h.reg.Transfer(1, carol))

	r, err := h.eng.CreateRace(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, r.FilledLanes())

	_, length, err := h.eng.QueuePosition(h.ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestPlaceWager_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.eng.PlaceWager(h.ctx, alice, 0, domain.BetWin, 100)
	require.ErrorIs(t, err, domain.ErrNoActiveRace)

	r, err := h.eng.CreateRace(h.ctx)
	require.NoError(t, err)
	_, err = h.eng.PlaceWager(h.ctx, alice, 0, domain.BetWin, 100)
	require.ErrorIs(t, err, domain.ErrOddsNotSet)

	h.advanceTo(r.Schedule.CreatedAt + 1)
	_, err = h.eng.FinalizeLineup(h.ctx, r.ID)
	require.NoError(t, err)
	board, err := h.eng.QuoteOdds(h.ctx, r.ID)
	require.NoError(t, err)
	r, err = h.eng.PublishOdds(h.ctx, oddsRole, r.ID, board)
	require.NoError(t, err)

	tests := []struct {
		name  string
		lane  uint8
		bt    domain.BetType
		stake uint64
		want  error
	}{
		{"lane out of range", domain.LaneCount, domain.BetWin, 100, domain.ErrInvalidLane},
		{"unknown bet type", 0, domain.BetType(7), 100, domain.ErrInvalidBetType},
		{"zero stake", 0, domain.BetWin, 0, domain.ErrZeroStake},
		{"stake over cap", 0, domain.BetWin, 10_001, domain.ErrStakeOverCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.eng.PlaceWager(h.ctx, alice, tt.lane, tt.bt, tt.stake)
			require.ErrorIs(t, err, tt.want)
		})
	}

	w, err := h.eng.PlaceWager(h.ctx, alice, 4, domain.BetPlace, 10_000)
	require.NoError(t, err)
	assert.Equal(t, r.ID, w.RaceID)
	assert.Equal(t, h.now(), w.PlacedAt)

	_, err = h.eng.PlaceWager(h.ctx, alice, 2, domain.BetPlace, 100)
	require.ErrorIs(t, err, domain.ErrDuplicateWager)

	// Otro tipo de apuesta en la misma carrera sí vale.
	_, err = h.eng.PlaceWager(h.ctx, alice, 2, domain.BetShow, 100)
	require.NoError(t, err)

	h.advanceTo(r.Schedule.BettingCloses)
	_, err = h.eng.PlaceWager(h.ctx, bob, 0, domain.BetWin, 100)
	require.ErrorIs(t, err, domain.ErrBettingClosed)

	got, err := h.eng.Race(h.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), got.Pools[domain.BetPlace][4])
	assert.Equal(t, uint64(100), got.Pools[domain.BetShow][2])
	assert.Equal(t, uint64(10_100), got.TotalPool(domain.BetPlace)+got.TotalPool(domain.BetShow))
}

func TestPlaceWager_CollectFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	r := h.openRace()

	_, err := h.eng.PlaceWager(h.ctx, dave, 0, domain.BetWin, 100)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, domain.KindCollaborator, domain.KindOf(err))

	got, err := h.eng.Race(h.ctx, r.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalPool(domain.BetWin))

	st, err := h.eng.ClaimStatus(h.ctx, dave)
	require.NoError(t, err)
	assert.Zero(t, st.HistoryLen)
}

// Escenario: bankroll disponible igual a la liability registrada. Cualquier
// apuesta con pago posible se rechaza.
func TestPlaceWager_BankrollEqualsLiability(t *testing.T) {
	h := newHarness(t, func(s *setup) { s.bankroll = 0 })
	h.openRace()

	_, err := h.eng.PlaceWager(h.ctx, alice, 0, domain.BetWin, 1)
	require.ErrorIs(t, err, domain.ErrInsufficientBankroll)
	assert.Equal(t, domain.KindCapacity, domain.KindOf(err))
	assert.Equal(t, uint64(initialBalance), h.bank.BalanceOf(alice))
}

func TestPlaceWager_BankrollBoundary(t *testing.T) {
	// 100 a 5.70x en win: peor pago 570.
	tight := newHarness(t, func(s *setup) { s.bankroll = 569 })
	tight.openRace()
	_, err := tight.eng.PlaceWager(tight.ctx, alice, 0, domain.BetWin, 100)
	require.ErrorIs(t, err, domain.ErrInsufficientBankroll)

	exact := newHarness(t, func(s *setup) { s.bankroll = 570 })
	exact.openRace()
	_, err = exact.eng.PlaceWager(exact.ctx, alice, 0, domain.BetWin, 100)
	require.NoError(t, err)
}

func TestPlaceWager_LiabilityCountsAgainstBankroll(t *testing.T) {
	h := newHarness(t, func(s *setup) { s.bankroll = 2_000 })

	r := h.openRace()
	out := h.predict(r)
	win := winningLane(out)
	_, err := h.eng.PlaceWager(h.ctx, alice, win, domain.BetWin, 300)
	require.NoError(t, err)
	h.closeBetting(r)
	settled, err := h.eng.SettleRace(h.ctx, r.ID)
	require.NoError(t, err)
	require.Positive(t, settled.Liability)
	h.advanceTo(settled.Schedule.SettledAt + h.cfg.Cooldown)

	// Bankroll 2300 con la liability sin cobrar reservada.
	r2 := h.openRace()
	available, err := h.bank.AvailableBalance(h.ctx)
	require.NoError(t, err)
	free := available - settled.Liability

	stake := free*domain.Scale/r2.Odds[domain.BetWin][0] + 1
	_, err = h.eng.PlaceWager(h.ctx, bob, 0, domain.BetWin, stake)
	require.ErrorIs(t, err, domain.ErrInsufficientBankroll)

	_, err = h.eng.PlaceWager(h.ctx, bob, 0, domain.BetWin, stake-1)
	require.NoError(t, err)
}
