package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/domain"
)

func TestSimChain_EntropyWindow(t *testing.T) {
	ctx := context.Background()
	c := NewSimChain(common.HexToHash("0x01"), 100, 10)

	_, err := c.EntropyAt(ctx, 100)
	assert.ErrorIs(t, err, domain.ErrEntropyPending)

	h, err := c.EntropyAt(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, BlockEntropy(common.HexToHash("0x01"), 99), h)

	c.Advance(10)
	_, err = c.EntropyAt(ctx, 100)
	assert.NoError(t, err)
	_, err = c.EntropyAt(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrEntropyUnavailable)
	assert.Equal(t, domain.KindCollaborator, domain.KindOf(err))

	now, err := c.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), now)
}

func TestBlockEntropy_DependsOnGenesisAndPoint(t *testing.T) {
	g := common.HexToHash("0x01")
	assert.NotEqual(t, BlockEntropy(g, 1), BlockEntropy(g, 2))
	assert.NotEqual(t, BlockEntropy(g, 1), BlockEntropy(common.HexToHash("0x02"), 1))
	assert.Equal(t, BlockEntropy(g, 1), BlockEntropy(g, 1))
}

type fakeRPC struct {
	height   uint64
	failures int
	calls    int
}

func (f *fakeRPC) BlockNumber(context.Context) (uint64, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("connection reset")
	}
	return f.height, nil
}

func (f *fakeRPC) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).Set(n), Difficulty: big.NewInt(0)}, nil
}

func TestEthereum_EntropyAtUsesBlockHash(t *testing.T) {
	ctx := context.Background()
	rpc := &fakeRPC{height: 500}
	e := NewEthereum(rpc, 256, 1000)

	got, err := e.EntropyAt(ctx, 400)
	require.NoError(t, err)
	want := (&types.Header{Number: big.NewInt(400), Difficulty: big.NewInt(0)}).Hash()
	assert.Equal(t, want, got)

	_, err = e.EntropyAt(ctx, 200)
	assert.ErrorIs(t, err, domain.ErrEntropyUnavailable)
	_, err = e.EntropyAt(ctx, 500)
	assert.ErrorIs(t, err, domain.ErrEntropyPending)
}

func TestEthereum_RetriesTransientFailure(t *testing.T) {
	rpc := &fakeRPC{height: 42, failures: 1}
	e := NewEthereum(rpc, 0, 1000)

	h, err := e.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h)
	assert.Equal(t, 2, rpc.calls)
}
