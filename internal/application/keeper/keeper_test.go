package keeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/application/keeper"
	"github.com/alejandrodnm/derby/internal/domain"
)

var identity = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// --- mocks ---

type mockOperator struct {
	summary     domain.OperatorSummary
	summaryErr  error
	actionErr   error
	calls       []string
	publishedBy common.Address
}

func (m *mockOperator) record(name string) (domain.Race, error) {
	m.calls = append(m.calls, name)
	if m.actionErr != nil {
		return domain.Race{}, m.actionErr
	}
	return domain.Race{ID: m.summary.RaceID}, nil
}

func (m *mockOperator) OperatorSummary(context.Context) (domain.OperatorSummary, error) {
	return m.summary, m.summaryErr
}

func (m *mockOperator) Race(context.Context, uint64) (domain.Race, error) {
	return domain.Race{ID: m.summary.RaceID}, nil
}

func (m *mockOperator) CreateRace(context.Context) (domain.Race, error) { return m.record("create") }

func (m *mockOperator) FinalizeLineup(context.Context, uint64) (domain.Race, error) {
	return m.record("finalize")
}

func (m *mockOperator) QuoteOdds(context.Context, uint64) (domain.OddsBoard, error) {
	m.calls = append(m.calls, "quote")
	return domain.OddsBoard{}, nil
}

func (m *mockOperator) PublishOdds(_ context.Context, caller common.Address, _ uint64, _ domain.OddsBoard) (domain.Race, error) {
	m.publishedBy = caller
	return m.record("publish")
}

func (m *mockOperator) SettleRace(context.Context, uint64) (domain.Race, error) { return m.record("settle") }

func (m *mockOperator) CancelRace(context.Context, uint64) (domain.Race, error) { return m.record("cancel") }

func (m *mockOperator) CancelStuckRace(context.Context, common.Address, uint64) (domain.Race, error) {
	return m.record("cancel_stuck")
}

type mockNotifier struct {
	summaries int
	races     []uint64
}

func (n *mockNotifier) NotifyRace(_ context.Context, r domain.Race) error {
	n.races = append(n.races, r.ID)
	return nil
}

func (n *mockNotifier) NotifySummary(context.Context, domain.OperatorSummary) error {
	n.summaries++
	return nil
}

// --- tests ---

func TestKeeper_RunOnce_Dispatch(t *testing.T) {
	tests := []struct {
		action domain.Action
		want   []string
	}{
		{domain.ActionWait, nil},
		{domain.ActionCreateRace, []string{"create"}},
		{domain.ActionFinalizeLineup, []string{"finalize"}},
		{domain.ActionPublishOdds, []string{"quote", "publish"}},
		{domain.ActionSettleRace, []string{"settle"}},
		{domain.ActionCancelRace, []string{"cancel"}},
		{domain.ActionCancelStuckRace, []string{"cancel_stuck"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			ops := &mockOperator{summary: domain.OperatorSummary{Action: tt.action, RaceID: 4}}
			n := &mockNotifier{}
			k := keeper.New(keeper.Config{Identity: identity, PublishOdds: true, CancelStuck: true}, ops, n)

			s, err := k.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.action, s.Action)
			assert.Equal(t, tt.want, ops.calls)
			assert.Equal(t, 1, n.summaries)
			if tt.want != nil {
				assert.Equal(t, []uint64{4}, n.races)
			} else {
				assert.Empty(t, n.races)
			}
		})
	}
}

func TestKeeper_RoleActionsDisabled(t *testing.T) {
	for _, action := range []domain.Action{domain.ActionPublishOdds, domain.ActionCancelStuckRace} {
		ops := &mockOperator{summary: domain.OperatorSummary{Action: action, RaceID: 1}}
		k := keeper.New(keeper.Config{Identity: identity}, ops)

		_, err := k.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ops.calls, "action %s", action)
	}
}

func TestKeeper_PublishesAsIdentity(t *testing.T) {
	ops := &mockOperator{summary: domain.OperatorSummary{Action: domain.ActionPublishOdds, RaceID: 2}}
	k := keeper.New(keeper.Config{Identity: identity, PublishOdds: true}, ops)

	_, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, identity, ops.publishedBy)
}

func TestKeeper_PreconditionLostIsNotAnError(t *testing.T) {
	ops := &mockOperator{
		summary:   domain.OperatorSummary{Action: domain.ActionSettleRace, RaceID: 3},
		actionErr: domain.ErrRaceSettled,
	}
	n := &mockNotifier{}
	k := keeper.New(keeper.Config{}, ops, n)

	_, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, n.races)
}

func TestKeeper_Unauthorized(t *testing.T) {
	ops := &mockOperator{
		summary:   domain.OperatorSummary{Action: domain.ActionPublishOdds, RaceID: 3},
		actionErr: domain.ErrUnauthorized,
	}
	k := keeper.New(keeper.Config{Identity: identity, PublishOdds: true}, ops)

	_, err := k.RunOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestKeeper_CollaboratorFailure(t *testing.T) {
	ops := &mockOperator{
		summary:   domain.OperatorSummary{Action: domain.ActionSettleRace, RaceID: 3},
		actionErr: domain.ErrEntropyUnavailable,
	}
	k := keeper.New(keeper.Config{}, ops)

	_, err := k.RunOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrEntropyUnavailable)
}

func TestKeeper_SummaryError(t *testing.T) {
	boom := errors.New("store closed")
	k := keeper.New(keeper.Config{}, &mockOperator{summaryErr: boom})

	_, err := k.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestKeeper_Run_DryRun(t *testing.T) {
	ops := &mockOperator{summary: domain.OperatorSummary{Action: domain.ActionCreateRace}}
	k := keeper.New(keeper.Config{Interval: time.Hour, DryRun: true}, ops)

	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, []string{"create"}, ops.calls)
}

func TestKeeper_Run_StopsOnCancel(t *testing.T) {
	ops := &mockOperator{summary: domain.OperatorSummary{Action: domain.ActionWait}}
	k := keeper.New(keeper.Config{Interval: time.Millisecond}, ops)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, k.Run(ctx))
}

func TestKeeper_RateLimitHonoursContext(t *testing.T) {
	ops := &mockOperator{summary: domain.OperatorSummary{Action: domain.ActionCreateRace}}
	k := keeper.New(keeper.Config{RatePerSecond: 0.001, Burst: 1}, ops)

	_, err := k.RunOnce(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = k.RunOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"create"}, ops.calls)
}
