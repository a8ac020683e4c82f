package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/app"
	"TriggerBot/internal/config"
	"TriggerBot/internal/exchange"
	"TriggerBot/internal/fund"
	"TriggerBot/internal/lock"
	"TriggerBot/internal/notifier"
	"TriggerBot/internal/recorder"
	"TriggerBot/internal/state"
)

type cli struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer

	// exchange replaces the configured venue for the cycle command.
	exchange exchange.Exchange
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		return c.status()
	case "add-funds", "release":
		if len(args) != 1 {
			return fmt.Errorf("%s needs exactly one AMOUNT", cmd)
		}
		amount, err := decimal.NewFromString(args[0])
		if err != nil || !amount.IsPositive() {
			return fmt.Errorf("invalid amount %q", args[0])
		}
		return c.adjust(ctx, cmd, amount)
	case "cycle":
		return c.cycle(ctx)
	case "trades":
		fs := flag.NewFlagSet("trades", flag.ContinueOnError)
		n := fs.Int("n", 20, "number of trades")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return c.trades(*n)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) openLedger() (*fund.Ledger, error) {
	return fund.Open(c.cfg.Fund.StateFile, config.Amount(c.cfg.Fund.InitialFund), c.log)
}

func (c *cli) status() error {
	ledger, err := c.openLedger()
	if err != nil {
		return err
	}
	snap := ledger.Snapshot()
	st := state.NewStore(c.cfg.State.File, c.log).Load()

	table := tablewriter.NewWriter(c.out)
	table.Header("Key", "Value")
	table.Append("Available", snap.Available.StringFixed(2))
	table.Append("Reserved", snap.Reserved.StringFixed(2))
	table.Append("Total", snap.Total().StringFixed(2))
	table.Append("Watch reference", nullString(st.WatchReference))
	if t, ok := st.LastBuy(); ok {
		table.Append("Last buy", t.Format(time.DateTime))
	} else {
		table.Append("Last buy", "-")
	}
	table.Append("Last quote balance", nullString(st.LastQuoteBalance))
	table.Append("Last price alert", nullString(st.LastAlertPrice))
	table.Append("Last opportunity alert", nullString(st.LastBuyOpportunityAlert))
	if err := table.Render(); err != nil {
		return err
	}

	if len(st.Positions) == 0 {
		fmt.Fprintln(c.out, "no open positions")
		return nil
	}
	positions := tablewriter.NewWriter(c.out)
	positions.Header("ID", "Side", "Qty", "Price", "Opened")
	for _, p := range st.Positions {
		positions.Append(p.ID, string(p.Side), p.Qty.String(), p.Price.String(), time.Unix(p.Time, 0).Format(time.DateTime))
	}
	return positions.Render()
}

// adjust credits or releases funds under the cycle lock and journals the change.
func (c *cli) adjust(ctx context.Context, cmd string, amount decimal.Decimal) error {
	guard, err := lock.Acquire(ctx, c.cfg.Lock.File, c.cfg.Lock.Timeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	ledger, err := c.openLedger()
	if err != nil {
		return err
	}
	before := ledger.Snapshot()
	event := "MANUAL_ADD"
	if cmd == "release" {
		event = "MANUAL_RELEASE"
		ledger.Release(amount)
	} else {
		ledger.AddFunds(amount)
	}
	after := ledger.Snapshot()

	rec := c.openRecorder()
	defer rec.Close()
	if err := rec.RecordFundEvent(&recorder.FundEvent{
		Time:            time.Now(),
		EventType:       event,
		AvailableBefore: before.Available,
		AvailableAfter:  after.Available,
		ReservedBefore:  before.Reserved,
		ReservedAfter:   after.Reserved,
		Amount:          amount,
		Note:            "botctl " + cmd,
	}); err != nil {
		c.log.Warn("fund event not journaled", zap.Error(err))
	}

	fmt.Fprint(c.out, notifier.FormatFundStatus(after))
	return nil
}

// cycle runs one cycle wired exactly as the daemon wires it.
func (c *cli) cycle(ctx context.Context) error {
	a, err := app.Build(c.cfg, c.log, c.exchange)
	if err != nil {
		return err
	}
	defer a.Close()
	res := a.Coordinator.RunCycle(ctx)

	table := tablewriter.NewWriter(c.out)
	table.Header("Outcome", "Phase", "Reason", "Price", "Qty", "Cost")
	table.Append(string(res.Kind), string(res.Phase), res.Reason, res.Price.String(), res.Qty.String(), res.Cost.String())
	if err := table.Render(); err != nil {
		return err
	}
	if res.Kind.Failed() {
		return fmt.Errorf("cycle ended %s", res.Kind)
	}
	return nil
}

func (c *cli) trades(n int) error {
	rec := c.openRecorder()
	defer rec.Close()
	trades, err := rec.RecentTrades(n)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "no trades recorded")
		return nil
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Side", "Qty", "Price", "Cost", "Fee", "Order", "Reason")
	for _, t := range trades {
		table.Append(t.Time.Format(time.DateTime), t.Side, t.Qty.String(), t.Price.String(),
			t.Cost.StringFixed(2), t.Fee.StringFixed(2), t.OrderID, t.Reason)
	}
	return table.Render()
}

func (c *cli) openRecorder() recorder.Recorder {
	return app.OpenRecorder(c.cfg, c.log)
}

func nullString(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.String()
}
