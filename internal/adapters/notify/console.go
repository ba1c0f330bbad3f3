package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
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

// NotifyCycle prints one cycle in the configured mode.
func (c *Console) NotifyCycle(_ context.Context, rec domain.CycleRecord) error {
	if c.table && rec.Outcome == domain.OutcomeCompleted {
		c.printFull(rec)
		return nil
	}
	c.printCompact(rec)
	return nil
}

// printCompact prints the cycle on a single line.
func (c *Console) printCompact(rec domain.CycleRecord) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] ", clock(rec.FinishedAt))

	switch rec.Outcome {
	case domain.OutcomeCompleted:
		fmt.Fprintf(&sb, "roll %d → %s | pool %s SOL", rec.Roll, rec.Scenario, sol(rec.PoolAtStart))
		if rec.BuybackAmount.IsPositive() {
			fmt.Fprintf(&sb, " | buyback %s", sol(rec.BuybackAmount))
		}
		for _, w := range rec.Winners {
			fmt.Fprintf(&sb, " | %s %s", shortAddress(w.Recipient), sol(w.Amount))
		}
		if len(rec.Winners) == 0 {
			sb.WriteString(" | no winners")
		}
		if rec.FailedInstructions > 0 {
			fmt.Fprintf(&sb, " | failed:%d", rec.FailedInstructions)
		}
	default:
		fmt.Fprintf(&sb, "SKIP %s | pool %s SOL", skipLabel(rec.SkipReason), sol(rec.PoolAtStart))
	}

	if !rec.NextDrawAt.IsZero() {
		fmt.Fprintf(&sb, " | next %s", clock(rec.NextDrawAt))
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull prints the cycle header and a table of its payouts.
func (c *Console) printFull(rec domain.CycleRecord) {
	fmt.Fprintf(c.out, "\n[%s] cycle %s — roll %d, scenario %s\n",
		clock(rec.FinishedAt), shortID(rec.ID), rec.Roll, rec.Scenario)
	fmt.Fprintf(c.out, "  pool %s SOL | distributable %s SOL | buyback total %s SOL\n",
		sol(rec.PoolAtStart), sol(rec.Distributable), sol(rec.CumulativeBuyback))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Recipient", "SOL")
	row := 1
	if rec.BuybackAmount.IsPositive() {
		table.Append(fmt.Sprintf("%d", row), string(domain.PayoutBuyback), sol(rec.BuybackAmount))
		row++
	}
	for _, w := range rec.Winners {
		table.Append(fmt.Sprintf("%d", row), w.Recipient, sol(w.Amount))
		row++
	}
	table.Render()

	if rec.FailedInstructions > 0 {
		fmt.Fprintf(c.out, "  !! %d payout(s) failed, funds stay in the wallet\n", rec.FailedInstructions)
	}
	fmt.Fprintf(c.out, "  next draw: %s\n\n", rec.NextDrawAt.Format(time.RFC3339))
}

// PrintHistory prints stored cycles, newest first.
func (c *Console) PrintHistory(records []domain.CycleRecord) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "\n  No cycles recorded yet.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Started", "Outcome", "Roll", "Scn", "Pool SOL", "Buyback", "Winners", "Failed")

	completed := 0
	paid := decimal.Zero
	for _, r := range records {
		outcome := string(r.Outcome)
		if r.Outcome == domain.OutcomeSkipped {
			outcome = "SKIP " + skipLabel(r.SkipReason)
		} else {
			completed++
		}
		roll, scn := "-", "-"
		if r.Roll > 0 {
			roll = fmt.Sprintf("%d", r.Roll)
			scn = string(r.Scenario)
		}
		for _, w := range r.Winners {
			paid = paid.Add(w.Amount)
		}

		table.Append(
			r.StartedAt.Local().Format("01-02 15:04:05"),
			outcome,
			roll,
			scn,
			sol(r.PoolAtStart),
			sol(r.BuybackAmount),
			fmt.Sprintf("%d", len(r.Winners)),
			fmt.Sprintf("%d", r.FailedInstructions),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "\n  cycles: %d (%d completed) | paid to winners: %s SOL | cumulative buyback: %s SOL\n\n",
		len(records), completed, sol(paid), sol(records[0].CumulativeBuyback))
}

// --- helpers ---

func sol(lamports decimal.Decimal) string {
	return domain.LamportsToSOL(lamports).StringFixed(4)
}

func clock(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("15:04:05")
}

func skipLabel(r domain.SkipReason) string {
	if r == domain.SkipNone {
		return "unknown"
	}
	return string(r)
}

func shortAddress(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:4] + "…" + a[len(a)-4:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
