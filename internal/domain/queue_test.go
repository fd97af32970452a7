package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func addr(n int64) common.Address { return common.BigToAddress(big.NewInt(n)) }

func TestQueues_FIFO(t *testing.T) {
	var q Queues
	for i := int64(1); i <= 3; i++ {
		_, err := q.Enqueue(uint64(100+i), addr(i), 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 2, q.Position(addr(2)))

	for i := int64(1); i <= 3; i++ {
		e, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, uint64(100+i), e.Competitor)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Head)
}

func TestQueues_OneLiveEntryPerOwnerAndCompetitor(t *testing.T) {
	var q Queues
	_, err := q.Enqueue(1, addr(1), 0)
	require.NoError(t, err)

	_, err = q.Enqueue(2, addr(1), 0)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	_, err = q.Enqueue(1, addr(2), 0)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestQueues_Capacity(t *testing.T) {
	var q Queues
	_, err := q.Enqueue(1, addr(1), 1)
	require.NoError(t, err)
	_, err = q.Enqueue(2, addr(2), 1)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, KindCapacity, KindOf(err))
}

func TestQueues_PriorityFirstMostRecentFirst(t *testing.T) {
	var q Queues
	_, _ = q.Enqueue(10, addr(10), 0)

	restored := q.Restore([]QueueEntry{
		{Competitor: 1, Owner: addr(1)},
		{Competitor: 2, Owner: addr(2)},
	})
	require.Len(t, restored, 2)
	q.Restore([]QueueEntry{{Competitor: 3, Owner: addr(3)}})

	var got []uint64
	for {
		e, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, e.Competitor)
	}
	assert.Equal(t, []uint64{3, 1, 2, 10}, got)
}

func TestQueues_RestoreSkipsConflicts(t *testing.T) {
	var q Queues
	_, _ = q.Enqueue(5, addr(1), 0)

	restored := q.Restore([]QueueEntry{{Competitor: 7, Owner: addr(1)}, {Competitor: 8, Owner: addr(2)}})
	assert.Equal(t, []QueueEntry{{Competitor: 8, Owner: addr(2)}}, restored)
	assert.Equal(t, 1, q.Position(addr(2)))
}

func TestQueues_CloneIsIndependent(t *testing.T) {
	var q Queues
	_, _ = q.Enqueue(1, addr(1), 0)
	c := q.Clone()
	_, _ = c.Enqueue(2, addr(2), 0)
	c.Pop()

	assert.Equal(t, 1, q.Len())
	e, _ := q.Pop()
	assert.Equal(t, uint64(1), e.Competitor)
}

func TestQueues_OrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var q Queues
		var want []uint64
		next := uint64(1)
		ops := rapid.IntRange(1, 200).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			if rapid.Bool().Draw(t, "push") {
				if _, err := q.Enqueue(next, addr(int64(next)), 0); err != nil {
					t.Fatalf("enqueue: %v", err)
				}
				want = append(want, next)
				next++
				continue
			}
			e, ok := q.Pop()
			if ok != (len(want) > 0) {
				t.Fatalf("pop ok=%v with %d expected", ok, len(want))
			}
			if ok {
				if e.Competitor != want[0] {
					t.Fatalf("popped %d, want %d", e.Competitor, want[0])
				}
				want = want[1:]
			}
		}
		if q.Len() != len(want) {
			t.Fatalf("len %d, want %d", q.Len(), len(want))
		}
	})
}
