package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/adapters/storage"
	"github.com/alejandrodnm/derby/internal/domain"
	"github.com/alejandrodnm/derby/internal/ports"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func stores(t *testing.T) map[string]ports.Store {
	t.Helper()
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]ports.Store{
		"memory": storage.NewMemoryStore(),
		"sqlite": db,
	}
}

func sampleRace() domain.Race {
	r := domain.Race{
		ID:              7,
		Schedule:        domain.Schedule{CreatedAt: 100, OddsDeadline: 110, BettingCloses: 130, SettlementPoint: 130},
		LineupFinalized: true,
		OddsSet:         true,
		Generation:      domain.GenerationTick,
		Model:           domain.ModelFixedOdds,
		HouseEdgeBps:    500,
		Scores:          domain.Scores{10, 9, 8, 7, 6, 5},
		Odds:            domain.FlatBoard(domain.DefaultOddsConfig()),
	}
	for lane := range r.Lanes {
		r.Lanes[lane] = domain.LaneAssignment{Competitor: uint64(lane + 1), Holder: alice, Filled: true}
	}
	r.Pools[domain.BetPlace][2] = 1500
	r.Outcome.Seed = common.HexToHash("0x01")
	r.Outcome.Positions[0] = domain.PositionGroup{Lanes: domain.LaneSet(0).With(2), DeadHeat: 1}
	r.Outcome.FinishOrder = [domain.LaneCount]uint8{2, 0, 1, 3, 4, 5}
	return r
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			race := sampleRace()
			wager := domain.Wager{RaceID: 7, Participant: bob, BetType: domain.BetPlace, Lane: 2, Stake: 1500, PlacedAt: 120}

			err := s.Update(ctx, func(tx ports.LedgerTx) error {
				l, err := tx.Ledger(ctx)
				require.NoError(t, err)
				assert.False(t, l.Initialized)

				require.NoError(t, tx.SaveLedger(ctx, domain.Ledger{Initialized: true, NextRaceID: 8, LastRaceID: 7, Liability: 42, HouseEdgeBps: 500}))
				require.NoError(t, tx.SaveRace(ctx, race))
				require.NoError(t, tx.SaveWager(ctx, wager))
				require.NoError(t, tx.AppendRaceHistory(ctx, bob, 5))
				require.NoError(t, tx.AppendRaceHistory(ctx, bob, 7))
				require.NoError(t, tx.SaveCursor(ctx, bob, 1))
				return nil
			})
			require.NoError(t, err)

			err = s.View(ctx, func(tx ports.LedgerTx) error {
				l, err := tx.Ledger(ctx)
				require.NoError(t, err)
				assert.Equal(t, domain.Ledger{Initialized: true, NextRaceID: 8, LastRaceID: 7, Liability: 42, HouseEdgeBps: 500}, l)

				got, err := tx.Race(ctx, 7)
				require.NoError(t, err)
				assert.Equal(t, race, got)

				w, ok, err := tx.Wager(ctx, wager.Key())
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, wager, w)

				_, ok, err = tx.Wager(ctx, domain.WagerKey{RaceID: 7, Participant: alice, BetType: domain.BetPlace})
				require.NoError(t, err)
				assert.False(t, ok)

				hist, err := tx.RaceHistory(ctx, bob)
				require.NoError(t, err)
				assert.Equal(t, []uint64{5, 7}, hist)

				cur, err := tx.Cursor(ctx, bob)
				require.NoError(t, err)
				assert.Equal(t, 1, cur)

				cur, err = tx.Cursor(ctx, alice)
				require.NoError(t, err)
				assert.Equal(t, 0, cur)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStore_RaceNotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.View(ctx, func(tx ports.LedgerTx) error {
				_, err := tx.Race(ctx, 99)
				return err
			})
			assert.ErrorIs(t, err, domain.ErrRaceNotFound)
		})
	}
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("bankroll down")
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(ctx, func(tx ports.LedgerTx) error {
				require.NoError(t, tx.SaveRace(ctx, sampleRace()))
				require.NoError(t, tx.SaveLedger(ctx, domain.Ledger{Initialized: true, NextRaceID: 2}))
				return boom
			})
			assert.ErrorIs(t, err, boom)

			err = s.View(ctx, func(tx ports.LedgerTx) error {
				l, err := tx.Ledger(ctx)
				require.NoError(t, err)
				assert.False(t, l.Initialized)
				_, err = tx.Race(ctx, 7)
				return err
			})
			assert.ErrorIs(t, err, domain.ErrRaceNotFound)
		})
	}
}

func TestStore_QueuesRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var q domain.Queues
			_, err := q.Enqueue(11, alice, 0)
			require.NoError(t, err)
			_, err = q.Enqueue(12, bob, 0)
			require.NoError(t, err)
			popped, _ := q.Pop()
			q.Restore([]domain.QueueEntry{popped})

			require.NoError(t, s.Update(ctx, func(tx ports.LedgerTx) error {
				return tx.SaveQueues(ctx, q)
			}))

			require.NoError(t, s.View(ctx, func(tx ports.LedgerTx) error {
				got, err := tx.Queues(ctx)
				require.NoError(t, err)
				assert.Equal(t, q.Live(), got.Live())
				assert.Equal(t, uint64(2), got.NextSeq)

				e, ok := got.Pop()
				require.True(t, ok)
				assert.Equal(t, uint64(11), e.Competitor)
				return nil
			}))
		})
	}
}

func TestStore_ViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.View(ctx, func(tx ports.LedgerTx) error {
				return tx.SaveCursor(ctx, alice, 3)
			})
			assert.Error(t, err)
		})
	}
}
