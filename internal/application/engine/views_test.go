package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/domain"
)

func TestOperatorSummary_Sequence(t *testing.T) {
	h := newHarness(t)
	expect := func(action domain.Action, readyAt uint64) domain.OperatorSummary {
		t.Helper()
		s, err := h.eng.OperatorSummary(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, action, s.Action)
		assert.Equal(t, readyAt, s.ReadyAt)
		return s
	}

	expect(domain.ActionCreateRace, startHeight)

	r, err := h.eng.CreateRace(h.ctx)
	require.NoError(t, err)
	s := expect(domain.ActionWait, startHeight+1)
	assert.Equal(t, "lineup entropy pending", s.Reason)
	assert.Equal(t, domain.StatusAwaitingOdds, s.Status)

	h.advanceTo(startHeight + 1)
	expect(domain.ActionFinalizeLineup, startHeight+1)

	_, err = h.eng.FinalizeLineup(h.ctx, r.ID)
	require.NoError(t, err)
	expect(domain.ActionPublishOdds, startHeight+1)

	board, err := h.eng.QuoteOdds(h.ctx, r.ID)
	require.NoError(t, err)
	r, err = h.eng.PublishOdds(h.ctx, oddsRole, r.ID, board)
	require.NoError(t, err)
	expect(domain.ActionWait, r.Schedule.SettlementPoint+1)

	h.closeBetting(r)
	expect(domain.ActionSettleRace, r.Schedule.SettlementPoint+1)

	settled, err := h.eng.SettleRace(h.ctx, r.ID)
	require.NoError(t, err)
	s = expect(domain.ActionWait, settled.Schedule.SettledAt+h.cfg.Cooldown)
	assert.Equal(t, "cooldown", s.Reason)

	h.advanceTo(settled.Schedule.SettledAt + h.cfg.Cooldown)
	expect(domain.ActionCreateRace, settled.Schedule.SettledAt+h.cfg.Cooldown)
}

func TestOperatorSummary_CancelAndQueue(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.EnterQueue(h.ctx, alice, 1)
	require.NoError(t, err)
	_, err = h.eng.EnterQueue(h.ctx, bob, 2)
	require.NoError(t, err)

	s, err := h.eng.OperatorSummary(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.QueueLen)

	r, err := h.eng.CreateRace(h.ctx)
	require.NoError(t, err)
	h.advanceTo(r.Schedule.OddsDeadline + 1)

	s, err = h.eng.OperatorSummary(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCancelRace, s.Action)
	assert.Equal(t, r.ID, s.RaceID)
	assert.Zero(t, s.QueueLen)

	_, err = h.eng.CancelRace(h.ctx, r.ID)
	require.NoError(t, err)

	s, err = h.eng.OperatorSummary(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreateRace, s.Action)
	assert.Equal(t, domain.StatusCancelled, s.Status)
	assert.Equal(t, 2, s.QueueLen)
}

func TestViews_UnknownRace(t *testing.T) {
	h := newHarness(t)

	_, err := h.eng.Race(h.ctx, 42)
	require.ErrorIs(t, err, domain.ErrRaceNotFound)
	_, err = h.eng.Lineup(h.ctx, 42)
	require.ErrorIs(t, err, domain.ErrRaceNotFound)
	_, err = h.eng.FinishOrder(h.ctx, 42)
	require.ErrorIs(t, err, domain.ErrRaceNotFound)
}

func TestViews_RaceProgress(t *testing.T) {
	h := newHarness(t)
	r := h.openRace()

	lanes, err := h.eng.Lineup(h.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Lanes, lanes)

	_, err = h.eng.FinishOrder(h.ctx, r.ID)
	require.ErrorIs(t, err, domain.ErrRaceNotSettled)

	l, err := h.eng.Ledger(h.ctx)
	require.NoError(t, err)
	assert.True(t, l.Initialized)
	assert.Equal(t, r.ID, l.LastRaceID)
	assert.Equal(t, r.ID+1, l.NextRaceID)
	assert.Equal(t, h.cfg.Odds.HouseEdgeBps, l.HouseEdgeBps)
}
