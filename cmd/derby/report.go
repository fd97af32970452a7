package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/config"
	"github.com/alejandrodnm/derby/internal/adapters/notify"
)

// runReport imprime una carrera, el ledger y, si se pide, el estado de
// claims de un participante. Solo lectura.
func runReport(ctx context.Context, cfg *config.Config, raceID uint64, participant string, table bool) error {
	d, err := buildDeps(ctx, cfg, false)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	defer d.Close()

	console := notify.NewConsole(table)

	l, err := d.engine.Ledger(ctx)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	if raceID == 0 {
		raceID = l.LastRaceID
	}
	if raceID == 0 {
		fmt.Println("no races yet")
	} else {
		r, err := d.engine.Race(ctx, raceID)
		if err != nil {
			return fmt.Errorf("runReport: %w", err)
		}
		if err := console.NotifyRace(ctx, r); err != nil {
			return fmt.Errorf("runReport: %w", err)
		}
	}

	available, err := d.treasury.AvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	console.PrintLedger(l, available)

	summary, err := d.engine.OperatorSummary(ctx)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	if err := console.NotifySummary(ctx, summary); err != nil {
		return fmt.Errorf("runReport: %w", err)
	}

	if participant == "" {
		return nil
	}
	if !common.IsHexAddress(participant) {
		return fmt.Errorf("runReport: %q is not an address", participant)
	}
	p := common.HexToAddress(participant)
	st, err := d.engine.ClaimStatus(ctx, p)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	pos, length, err := d.engine.QueuePosition(ctx, p)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	fmt.Printf("participant %s: claimed %d/%d races", p.Hex(), st.Cursor, st.HistoryLen)
	if st.HasClaim {
		fmt.Printf(" | next: race #%d %s payout %d", st.NextRaceID, st.NextBetType, st.NextPayout)
		if st.NeedsSettlement {
			fmt.Print(" (settles on claim)")
		}
	}
	if pos > 0 {
		fmt.Printf(" | queue %d/%d", pos, length)
	}
	fmt.Println()
	return nil
}
