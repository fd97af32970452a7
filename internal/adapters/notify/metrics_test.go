package notify_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/adapters/notify"
	"github.com/alejandrodnm/derby/internal/domain"
)

func TestMetrics_Publish(t *testing.T) {
	m := notify.NewMetrics()
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, []domain.Event{
		{Type: domain.EventRaceCreated, RaceID: 5},
		{Type: domain.EventWagerPlaced, RaceID: 5, BetType: "win", Amount: 300},
		{Type: domain.EventWagerPlaced, RaceID: 5, BetType: "win", Amount: 200},
		{Type: domain.EventPayoutClaimed, RaceID: 5, Amount: 1140},
	}))
	require.NoError(t, m.NotifySummary(ctx, domain.OperatorSummary{Action: domain.ActionWait, Liability: 2500, QueueLen: 3}))

	count, err := testutil.GatherAndCount(m.Registry(), "derby_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count) // una serie por tipo

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `derby_staked_total{bet_type="win"} 500`)
	assert.Contains(t, out, "derby_paid_out_total 1140")
	assert.Contains(t, out, "derby_liability 2500")
	assert.Contains(t, out, "derby_queue_length 3")
	assert.Contains(t, out, "derby_last_race_id 5")
	assert.Contains(t, out, `derby_operator_actions_total{action="wait"} 1`)
}
