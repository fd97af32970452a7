package treasury

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/domain"
)

func TestMemory_CollectAndPay(t *testing.T) {
	ctx := context.Background()
	who := common.HexToAddress("0x0a")
	m := NewMemory(1000)
	m.Deposit(who, 300)

	require.NoError(t, m.Collect(ctx, who, 200))
	bal, _ := m.AvailableBalance(ctx)
	assert.Equal(t, uint64(1200), bal)
	assert.Equal(t, uint64(100), m.BalanceOf(who))

	require.NoError(t, m.Pay(ctx, who, 700))
	bal, _ = m.AvailableBalance(ctx)
	assert.Equal(t, uint64(500), bal)
	assert.Equal(t, uint64(800), m.BalanceOf(who))
}

func TestMemory_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	who := common.HexToAddress("0x0a")
	m := NewMemory(10)

	err := m.Collect(ctx, who, 1)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, domain.KindCollaborator, domain.KindOf(err))

	assert.ErrorIs(t, m.Pay(ctx, who, 11), domain.ErrTransferFailed)
}
