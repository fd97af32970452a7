package engine_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alejandrodnm/derby/internal/domain"
)

func TestClaim_NothingToClaim(t *testing.T) {
	h := newHarness(t)

	_, err := h.eng.Claim(h.ctx, alice)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)

	r := h.openRace()
	_, err = h.eng.PlaceWager(h.ctx, alice, 0, domain.BetWin, 100)
	require.NoError(t, err)

	// Apuestas abiertas: nada resoluble todavía.
	_, err = h.eng.Claim(h.ctx, alice)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)

	st, err := h.eng.ClaimStatus(h.ctx, alice)
	require.NoError(t, err)
	assert.False(t, st.HasClaim)
	assert.Equal(t, r.ID, st.NextRaceID)
}

func TestClaim_SettlesOnDemand(t *testing.T) {
	h := newHarness(t)

	r := h.openRace()
	out := h.predict(r)
	win := winningLane(out)
	_, err := h.eng.PlaceWager(h.ctx, alice, win, domain.BetWin, 1000)
	require.NoError(t, err)
	h.closeBetting(r)

	st, err := h.eng.ClaimStatus(h.ctx, alice)
	require.NoError(t, err)
	assert.True(t, st.NeedsSettlement)
	assert.True(t, st.HasClaim)
	assert.Equal(t, "win", st.NextBetType)

	res, err := h.eng.Claim(h.ctx, alice)
	require.NoError(t, err)

	settled, err := h.eng.Race(h.ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, settled.Settled)
	assert.Equal(t, out, settled.Outcome)

	want := domain.FixedPayout(1000, r.Odds[domain.BetWin][win]) / uint64(out.Positions[0].DeadHeat)
	assert.Equal(t, want, res.Payout)
	assert.Equal(t, want, settled.PaidOut)
	assert.Equal(t, uint64(initialBalance-1000)+want, h.bank.BalanceOf(alice))

	st, err = h.eng.ClaimStatus(h.ctx, alice)
	require.NoError(t, err)
	assert.False(t, st.HasClaim)
	assert.Equal(t, 1, st.Cursor)
}

func TestClaim_LosingWagerResolvesWithZero(t *testing.T) {
	h := newHarness(t)

	r := h.openRace()
	lose := losingLane(h.predict(r), domain.BetWin)
	_, err := h.eng.PlaceWager(h.ctx, alice, lose, domain.BetWin, 1000)
	require.NoError(t, err)
	h.closeBetting(r)
	_, err = h.eng.SettleRace(h.ctx, r.ID)
	require.NoError(t, err)

	before := len(h.events.types())
	res, err := h.eng.Claim(h.ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, res.Payout)
	assert.Equal(t, lose, res.Lane)
	// Sin pago no hay evento.
	assert.Len(t, h.events.types(), before)

	_, err = h.eng.Claim(h.ctx, alice)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimNextWinningPayout_SkipsLosses(t *testing.T) {
	h := newHarness(t)

	r1 := h.openRace()
	_, err := h.eng.PlaceWager(h.ctx, alice, losingLane(h.predict(r1), domain.BetWin), domain.BetWin, 500)
	require.NoError(t, err)
	h.closeBetting(r1)
	s1, err := h.eng.SettleRace(h.ctx, r1.ID)
	require.NoError(t, err)
	h.advanceTo(s1.Schedule.SettledAt + h.cfg.Cooldown)

	r2 := h.openRace()
	out2 := h.predict(r2)
	win := winningLane(out2)
	_, err = h.eng.PlaceWager(h.ctx, alice, win, domain.BetWin, 800)
	require.NoError(t, err)
	h.closeBetting(r2)

	res, err := h.eng.ClaimNextWinningPayout(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, res.RaceID)
	assert.Positive(t, res.Payout)

	st, err := h.eng.ClaimStatus(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Cursor)
	assert.Equal(t, 2, st.HistoryLen)

	_, err = h.eng.ClaimNextWinningPayout(h.ctx, alice)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimNextWinningPayout_OnlyLosses(t *testing.T) {
	h := newHarness(t)

	r := h.openRace()
	_, err := h.eng.PlaceWager(h.ctx, alice, losingLane(h.predict(r), domain.BetWin), domain.BetWin, 500)
	require.NoError(t, err)
	h.closeBetting(r)

	res, err := h.eng.ClaimNextWinningPayout(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimResult{}, res)

	st, err := h.eng.ClaimStatus(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Cursor)
}

func TestClaim_ParimutuelModel(t *testing.T) {
	h := newHarness(t, func(s *setup) { s.cfg.Model = domain.ModelParimutuel })

	r := h.openRace()
	assert.Equal(t, domain.ModelParimutuel, r.Model)
	out := h.predict(r)
	_, err := h.eng.PlaceWager(h.ctx, alice, winningLane(out), domain.BetWin, 1000)
	require.NoError(t, err)
	_, err = h.eng.PlaceWager(h.ctx, bob, losingLane(out, domain.BetWin), domain.BetWin, 3000)
	require.NoError(t, err)
	h.closeBetting(r)

	settled, err := h.eng.SettleRace(h.ctx, r.ID)
	require.NoError(t, err)

	net := domain.NetPool(4000, 500)
	assert.Equal(t, uint64(3800), net)
	assert.Equal(t, net/uint64(out.Positions[0].DeadHeat), settled.Liability)

	res, err := h.eng.Claim(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, settled.Liability, res.Payout)

	res, err = h.eng.Claim(h.ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, res.Payout)
}

// Pase lo que pase, lo pagado nunca supera la liability registrada y, una
// vez cobrado todo, la liability del ledger es lo que sobra por redondeo.
func TestClaim_PayoutsNeverExceedLiability(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		model := rapid.SampledFrom([]domain.PayoutModel{domain.ModelFixedOdds, domain.ModelParimutuel}).Draw(t, "model")
		h := newHarness(t, func(s *setup) { s.cfg.Model = model })
		r := h.openRace()

		n := rapid.IntRange(1, 6).Draw(t, "participants")
		players := make([]common.Address, n)
		for i := range players {
			players[i] = addr(int64(1000 + i))
			h.bank.Deposit(players[i], initialBalance)
			for _, bt := range domain.BetTypes {
				if !rapid.Bool().Draw(t, "bet") {
					continue
				}
				lane := uint8(rapid.IntRange(0, domain.LaneCount-1).Draw(t, "lane"))
				stake := rapid.Uint64Range(1, 10_000).Draw(t, "stake")
				_, err := h.eng.PlaceWager(h.ctx, players[i], lane, bt, stake)
				require.NoError(t, err)
			}
		}

		h.closeBetting(r)
		settled, err := h.eng.SettleRace(h.ctx, r.ID)
		require.NoError(t, err)

		var paid uint64
		for _, p := range players {
			for {
				res, err := h.eng.Claim(h.ctx, p)
				if err != nil {
					require.ErrorIs(t, err, domain.ErrNothingToClaim)
					break
				}
				paid += res.Payout
			}
		}
		if paid > settled.Liability {
			t.Fatalf("paid %d over liability %d", paid, settled.Liability)
		}
		l, err := h.eng.Ledger(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, settled.Liability-paid, l.Liability)
	})
}
