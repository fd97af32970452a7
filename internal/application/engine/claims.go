package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
)

type claimMode int

const (
	// claimFirst devuelve la primera apuesta resuelta, gane o pierda.
	claimFirst claimMode = iota
	// claimNextWin marca las pérdidas en silencio hasta el siguiente pago.
	claimNextWin
)

// Claim resuelve la siguiente apuesta pendiente del participante.
// Las pérdidas también se resuelven (con Payout 0).
func (e *Engine) Claim(ctx context.Context, participant common.Address) (domain.ClaimResult, error) {
	return e.claim(ctx, "Claim", participant, claimFirst)
}

// ClaimNextWinningPayout avanza sobre las pérdidas hasta el siguiente pago
// distinto de cero. Si solo había pérdidas devuelve un resultado vacío.
func (e *Engine) ClaimNextWinningPayout(ctx context.Context, participant common.Address) (domain.ClaimResult, error) {
	return e.claim(ctx, "ClaimNextWinningPayout", participant, claimNextWin)
}

func (e *Engine) claim(ctx context.Context, op string, participant common.Address, mode claimMode) (domain.ClaimResult, error) {
	var result domain.ClaimResult
	err := e.update(ctx, op, func(t *txn) error {
		history, err := t.RaceHistory(t.ctx, participant)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		cursor, err := t.Cursor(t.ctx, participant)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		start := cursor

		resolved := 0
		found := false
		for cursor < len(history) {
			r, err := e.loadRace(t, history[cursor])
			if err != nil {
				return err
			}
			if r.Active() {
				// Las carreras siguientes son posteriores: si esta no se puede
				// liquidar, ninguna de ellas tampoco.
				if !r.SettleableAt(t.now) {
					break
				}
				if err := e.settle(t, &r); err != nil {
					return err
				}
			}

			pending := 0
			for _, bt := range domain.BetTypes {
				w, ok, err := t.Wager(t.ctx, domain.WagerKey{RaceID: r.ID, Participant: participant, BetType: bt})
				if err != nil {
					return fmt.Errorf("load wager: %w", err)
				}
				if !ok || w.Claimed {
					continue
				}
				if found {
					pending++
					continue
				}

				res, err := e.resolve(t, &r, w)
				if err != nil {
					return err
				}
				resolved++
				if mode == claimFirst || res.Payout > 0 {
					result = res
					found = true
				}
			}
			if pending > 0 {
				break
			}
			cursor++
			if found {
				break
			}
		}

		if resolved == 0 {
			return domain.ErrNothingToClaim
		}
		if cursor != start {
			if err := t.SaveCursor(t.ctx, participant, cursor); err != nil {
				return fmt.Errorf("save cursor: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if result.Payout > 0 {
		slog.Info("payout claimed",
			"participant", participant.Hex(),
			"race_id", result.RaceID,
			"bet_type", result.BetType.String(),
			"payout", result.Payout,
		)
	}
	return result, nil
}

// resolve marca la apuesta como cobrada y, si corresponde, paga.
// El flag se guarda antes de la transferencia.
func (e *Engine) resolve(t *txn, r *domain.Race, w domain.Wager) (domain.ClaimResult, error) {
	payout := r.PayoutFor(w)
	w.Claimed = true
	if err := t.SaveWager(t.ctx, w); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("save wager: %w", err)
	}

	res := domain.ClaimResult{
		RaceID:  r.ID,
		BetType: w.BetType,
		Lane:    w.Lane,
		Stake:   w.Stake,
		Payout:  payout,
		Refund:  r.Cancelled,
	}
	if payout == 0 {
		return res, nil
	}

	if r.PaidOut+payout > r.Liability {
		return domain.ClaimResult{}, fmt.Errorf("race %d pays %d over liability %d: %w",
			r.ID, r.PaidOut+payout, r.Liability, domain.ErrLiabilityUnderflow)
	}
	l, err := e.ledger(t)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if l.Liability < payout {
		return domain.ClaimResult{}, fmt.Errorf("ledger liability %d < payout %d: %w",
			l.Liability, payout, domain.ErrLiabilityUnderflow)
	}
	l.Liability -= payout
	r.PaidOut += payout

	if err := t.SaveLedger(t.ctx, l); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("save ledger: %w", err)
	}
	if err := t.SaveRace(t.ctx, *r); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("save race %d: %w", r.ID, err)
	}
	if err := e.bankroll.Pay(t.ctx, w.Participant, payout); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("pay: %w", err)
	}

	t.emit(domain.Event{
		Type:        domain.EventPayoutClaimed,
		RaceID:      r.ID,
		Participant: w.Participant.Hex(),
		Lane:        int(w.Lane),
		BetType:     w.BetType.String(),
		Amount:      payout,
	})
	return res, nil
}

// ClaimStatus es la vista del cursor de claims: qué resolvería el siguiente
// Claim sin escribir nada.
func (e *Engine) ClaimStatus(ctx context.Context, participant common.Address) (domain.ClaimStatus, error) {
	st := domain.ClaimStatus{Participant: participant}
	err := e.view(ctx, "ClaimStatus", func(t *txn) error {
		history, err := t.RaceHistory(t.ctx, participant)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		cursor, err := t.Cursor(t.ctx, participant)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		st.Cursor, st.HistoryLen = cursor, len(history)

		for i := cursor; i < len(history); i++ {
			r, err := e.loadRace(t, history[i])
			if err != nil {
				return err
			}
			for _, bt := range domain.BetTypes {
				w, ok, err := t.Wager(t.ctx, domain.WagerKey{RaceID: r.ID, Participant: participant, BetType: bt})
				if err != nil {
					return fmt.Errorf("load wager: %w", err)
				}
				if !ok || w.Claimed {
					continue
				}
				st.NextRaceID = r.ID
				st.NextBetType = bt.String()
				if r.Active() {
					// El pago depende de una liquidación que aún no ocurrió.
					st.NeedsSettlement = r.SettleableAt(t.now)
					st.HasClaim = st.NeedsSettlement
					return nil
				}
				st.NextPayout = r.PayoutFor(w)
				st.HasClaim = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return domain.ClaimStatus{}, err
	}
	return st, nil
}
