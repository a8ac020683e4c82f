package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/exchange"
	"TriggerBot/internal/notifier"
	"TriggerBot/internal/recorder"
	"TriggerBot/internal/state"
	"TriggerBot/internal/trader"
)

// CycleRunner runs one trading cycle. *trader.Coordinator implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context) *trader.Result
}

// Settings configure the monitor job.
type Settings struct {
	Pair               string
	TriggerPct         decimal.Decimal
	PriceAlertPct      decimal.Decimal
	LowFunds           decimal.Decimal
	DepositDetection   bool
	DepositMinIncrease decimal.Decimal
	TopupAmount        decimal.Decimal // zero disables auto top-up
	TopupThreshold     decimal.Decimal
	LockPath           string
	LockTimeout        time.Duration
}

// Deps are the scheduler's collaborators. Recorder and Notifier may be nil.
type Deps struct {
	Cycle    CycleRunner
	Exchange exchange.Exchange
	Ledger   trader.Ledger
	Store    *state.Store
	Recorder recorder.Recorder
	Notifier notifier.Notifier
	Log      *zap.Logger
}

// Scheduler manages the cron jobs and chat commands.
type Scheduler struct {
	Cron *cron.Cron
	Ctx  context.Context

	set   Settings
	quote string
	Deps
	now func() time.Time
}

// NewScheduler creates a new Scheduler. ctx bounds every job it runs.
func NewScheduler(ctx context.Context, set Settings, d Deps) (*Scheduler, error) {
	_, quote, err := exchange.SplitPair(set.Pair)
	if err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.Log = d.Log.Named("scheduler")
	logger := cronLogger{d.Log.Sugar()}
	if d.Recorder == nil {
		d.Recorder = recorder.NewNoopRecorder()
	}
	if d.Notifier == nil {
		d.Notifier = notifier.Noop{}
	}
	return &Scheduler{
		// A panicking job is logged and the scheduler keeps going. A cycle still running when
		// the next tick fires is skipped, not queued.
		Cron: cron.New(cron.WithSeconds(), cron.WithLogger(logger), cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		Ctx:   ctx,
		set:   set,
		quote: quote,
		Deps:  d,
		now:   time.Now,
	}, nil
}

// cronLogger routes cron's own messages into zap.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// RegisterAll registers the trading cycle and the monitor job. An empty monitorCron disables
// the monitor.
func (s *Scheduler) RegisterAll(cycleCron, monitorCron string) error {
	if _, err := s.Cron.AddFunc(cycleCron, func() { s.RunCycleNow() }); err != nil {
		return fmt.Errorf("register cycle job: %w", err)
	}
	if monitorCron == "" {
		return nil
	}
	if _, err := s.Cron.AddFunc(monitorCron, func() {
		if err := s.Monitor(s.Ctx); err != nil {
			s.Log.Warn("monitor run skipped", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register monitor job: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunCycleNow executes one trading cycle immediately (manual trigger / run_on_start).
func (s *Scheduler) RunCycleNow() *trader.Result {
	return s.Cycle.RunCycle(s.Ctx)
}

// HandleCommand processes a chat command and returns a plain-text reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	// "/fund@MyBot" in group chats
	cmd, _, _ := strings.Cut(fields[0], "@")

	switch cmd {
	case "/fund":
		return notifier.FormatFundStatus(s.Ledger.Snapshot())
	case "/positions":
		return notifier.FormatPositions(s.Store.Load(), s.latestOrZero(ctx))
	case "/status":
		var b strings.Builder
		if price := s.latestOrZero(ctx); price.IsPositive() {
			fmt.Fprintf(&b, "%s: %s\n\n", s.set.Pair, price)
		}
		b.WriteString(notifier.FormatFundStatus(s.Ledger.Snapshot()))
		b.WriteString("\n")
		b.WriteString(notifier.FormatPositions(s.Store.Load(), decimal.Zero))
		return b.String()
	case "/trades":
		trades, err := s.Recorder.RecentTrades(10)
		if err != nil {
			return "journal unavailable: " + err.Error()
		}
		if len(trades) == 0 {
			return "no trades recorded"
		}
		var b strings.Builder
		for _, t := range trades {
			fmt.Fprintf(&b, "%s %-4s %s @ %s\n", t.Time.Format("01-02 15:04"), t.Side, t.Qty, t.Price)
		}
		return b.String()
	case "/cycle":
		res := s.Cycle.RunCycle(ctx)
		return fmt.Sprintf("Cycle: %s (%s)\n%s", res.Kind, res.Phase, res.Reason)
	default:
		return "Commands:\n/status\n/fund\n/positions\n/trades\n/cycle"
	}
}

func (s *Scheduler) latestOrZero(ctx context.Context) decimal.Decimal {
	price, err := s.Exchange.FetchLatestPrice(ctx, s.set.Pair)
	if err != nil {
		s.Log.Debug("price unavailable for command", zap.Error(err))
		return decimal.Zero
	}
	return price
}
