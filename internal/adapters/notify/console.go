package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/derby/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyRace imprime el race card en el modo configurado.
func (c *Console) NotifyRace(_ context.Context, race domain.Race) error {
	if race.ID == 0 {
		fmt.Fprintln(c.out, "no races yet")
		return nil
	}
	if c.table {
		c.printCard(race)
	} else {
		c.printCompact(race)
	}
	return nil
}

// NotifySummary imprime la acción pendiente del operador en una línea.
func (c *Console) NotifySummary(_ context.Context, s domain.OperatorSummary) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s", s.Point, s.Action)
	if s.RaceID != 0 {
		fmt.Fprintf(&sb, " race=#%d (%s)", s.RaceID, s.Status)
	}
	if s.ReadyAt != 0 {
		fmt.Fprintf(&sb, " ready@%d", s.ReadyAt)
	}
	fmt.Fprintf(&sb, " queue=%d liability=%d", s.QueueLen, s.Liability)
	if s.Reason != "" {
		fmt.Fprintf(&sb, " | %s", s.Reason)
	}
	fmt.Fprintln(c.out, sb.String())
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(r domain.Race) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "race #%d %s pools W:%d P:%d S:%d",
		r.ID, r.Status(),
		r.TotalPool(domain.BetWin), r.TotalPool(domain.BetPlace), r.TotalPool(domain.BetShow))
	if r.Settled {
		fmt.Fprintf(&sb, " | %s | liability %d", podium(r.Outcome), r.Liability)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printCard imprime el lineup con cuotas y pools por mercado.
func (c *Console) printCard(r domain.Race) {
	fmt.Fprintf(c.out, "\nrace #%d: %s (%s, %s, edge %s%%)\n",
		r.ID, r.Status(), r.Model, r.Generation, pctBps(r.HouseEdgeBps))
	fmt.Fprintf(c.out, "  created@%d odds-deadline@%d closes@%d\n",
		r.Schedule.CreatedAt, r.Schedule.OddsDeadline, r.Schedule.BettingCloses)

	table := tablewriter.NewWriter(c.out)
	table.Header("Lane", "Competitor", "Score", "Win", "Place", "Show", "Pool W", "Pool P", "Pool S", "Finish")

	for lane, l := range r.Lanes {
		competitor := "-"
		if l.Filled {
			competitor = fmt.Sprintf("%d", l.Competitor)
			if l.House {
				competitor += " (house)"
			}
			if l.NoShow {
				competitor += " no-show"
			}
		}
		table.Append(
			fmt.Sprintf("%d", lane),
			competitor,
			scoreLabel(r, lane),
			oddsLabel(r, domain.BetWin, lane),
			oddsLabel(r, domain.BetPlace, lane),
			oddsLabel(r, domain.BetShow, lane),
			fmt.Sprintf("%d", r.Pools[domain.BetWin][lane]),
			fmt.Sprintf("%d", r.Pools[domain.BetPlace][lane]),
			fmt.Sprintf("%d", r.Pools[domain.BetShow][lane]),
			finishLabel(r, lane),
		)
	}
	table.Render()

	if r.Settled {
		fmt.Fprintf(c.out, "  %s | liability %d | paid %d\n", podium(r.Outcome), r.Liability, r.PaidOut)
	}
	if r.Cancelled {
		fmt.Fprintln(c.out, "  cancelled: stakes refundable")
	}
}

// PrintOutcome imprime una simulación suelta (modo simulate).
func (c *Console) PrintOutcome(scores domain.Scores, o domain.Outcome) {
	fmt.Fprintf(c.out, "\nseed %s, %d ticks\n", o.Seed.Hex(), o.Ticks)

	table := tablewriter.NewWriter(c.out)
	table.Header("Lane", "Score", "Time", "Distance", "Place")
	for lane := 0; lane < domain.LaneCount; lane++ {
		table.Append(
			fmt.Sprintf("%d", lane),
			fmt.Sprintf("%d", scores[lane]),
			ticksLabel(o.FinishTimes[lane]),
			fmt.Sprintf("%d", o.Distances[lane]),
			fmt.Sprintf("%d", o.FinishOrder[lane]+1),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  %s\n", podium(o))
}

// PrintLedger imprime el estado global.
func (c *Console) PrintLedger(l domain.Ledger, available uint64) {
	fmt.Fprintf(c.out, "races: %d | liability: %d | bankroll: %d | free: %d | edge: %s%%\n",
		l.LastRaceID, l.Liability, available, free(available, l.Liability), pctBps(l.HouseEdgeBps))
}

// PrintClaims imprime los claims resueltos de un participante.
func (c *Console) PrintClaims(results []domain.ClaimResult) {
	if len(results) == 0 {
		fmt.Fprintln(c.out, "nothing to claim")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Race", "Bet", "Lane", "Stake", "Payout", "Refund")
	var total uint64
	for _, r := range results {
		table.Append(
			fmt.Sprintf("%d", r.RaceID),
			r.BetType.String(),
			fmt.Sprintf("%d", r.Lane),
			fmt.Sprintf("%d", r.Stake),
			fmt.Sprintf("%d", r.Payout),
			fmt.Sprintf("%t", r.Refund),
		)
		total += r.Payout
	}
	table.Render()
	fmt.Fprintf(c.out, "  total paid: %d\n", total)
}

// --- helpers ---

func podium(o domain.Outcome) string {
	labels := [3]string{"1st", "2nd", "3rd"}
	parts := make([]string, 0, 3)
	for i, g := range o.Positions {
		if g.Empty() {
			continue
		}
		lanes := g.Lanes.Lanes()
		strs := make([]string, len(lanes))
		for j, l := range lanes {
			strs[j] = fmt.Sprintf("%d", l)
		}
		label := fmt.Sprintf("%s: %s", labels[i], strings.Join(strs, "="))
		if g.DeadHeat > 1 {
			label += " (dead heat)"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " | ")
}

func scoreLabel(r domain.Race, lane int) string {
	if !r.LineupFinalized {
		return "?"
	}
	return fmt.Sprintf("%d", r.Scores[lane])
}

func oddsLabel(r domain.Race, bt domain.BetType, lane int) string {
	if !r.OddsSet {
		return "-"
	}
	return domain.FormatBps(r.Odds[bt][lane]) + "x"
}

func finishLabel(r domain.Race, lane int) string {
	if !r.Settled {
		return ""
	}
	return fmt.Sprintf("%d (%s)", r.Outcome.FinishOrder[lane]+1, ticksLabel(r.Outcome.FinishTimes[lane]))
}

// ticksLabel muestra un tiempo escalado por Precision como ticks decimales.
func ticksLabel(t uint64) string {
	return decimal.New(int64(t), -3).StringFixed(3)
}

// pctBps: 500 → "5.00".
func pctBps(bps uint64) string {
	return decimal.New(int64(bps), -2).StringFixed(2)
}

func free(available, liability uint64) uint64 {
	if liability >= available {
		return 0
	}
	return available - liability
}
