// Package app wires the bot's components from configuration. The daemon and botctl both build
// through it so a cycle behaves the same whichever binary runs it.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"TriggerBot/internal/collector"
	"TriggerBot/internal/config"
	"TriggerBot/internal/exchange"
	"TriggerBot/internal/fund"
	"TriggerBot/internal/metrics"
	"TriggerBot/internal/notifier"
	"TriggerBot/internal/recorder"
	"TriggerBot/internal/state"
	"TriggerBot/internal/trader"
	"TriggerBot/internal/trigger"
)

// App holds the wired components.
type App struct {
	Ledger      *fund.Ledger
	Store       *state.Store
	Exchange    exchange.Exchange
	Recorder    recorder.Recorder
	Notifier    notifier.Multi
	Telegram    *notifier.TelegramNotifier // nil when no bot token is configured
	Metrics     *metrics.Metrics
	Coordinator *trader.Coordinator
}

// Build opens the ledger, state and journal and wires the coordinator. venue replaces the
// configured exchange when non-nil; it is still wrapped by the rate-limit guard.
func Build(cfg *config.Config, log *zap.Logger, venue exchange.Exchange) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, p := range []string{cfg.Fund.StateFile, cfg.State.File, cfg.Lock.File, cfg.Database.SQLitePath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	ledger, err := fund.Open(cfg.Fund.StateFile, config.Amount(cfg.Fund.InitialFund), log)
	if err != nil {
		return nil, fmt.Errorf("open fund ledger: %w", err)
	}
	if venue == nil {
		venue = NewVenue(cfg, log)
	}

	a := &App{
		Ledger:   ledger,
		Store:    state.NewStore(cfg.State.File, log),
		Exchange: exchange.NewGuarded(venue, cfg.GuardOptions(), log),
		Recorder: OpenRecorder(cfg, log),
		Metrics:  metrics.New(),
	}
	if cfg.Telegram.BotToken != "" {
		a.Telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		a.Notifier = append(a.Notifier, a.Telegram)
	}
	if smtp, ok := cfg.SMTPConfig(); ok {
		a.Notifier = append(a.Notifier, notifier.NewEmailNotifier(smtp, log))
	}
	snap := ledger.Snapshot()
	a.Metrics.SetFund(snap.Available.InexactFloat64(), snap.Reserved.InexactFloat64())

	deps := trader.Deps{
		Exchange:  a.Exchange,
		Ledger:    ledger,
		Store:     a.Store,
		Evaluator: trigger.NewEvaluator(a.Store, cfg.TriggerParams(), log),
		Recorder:  a.Recorder,
		Notifier:  a.Notifier,
		Metrics:   a.Metrics,
		Log:       log,
	}
	if cfg.Breakout.Enabled {
		deps.Indicators = collector.NewCollector(a.Exchange, cfg.Pair, cfg.CollectorSettings(), log)
	}
	a.Coordinator = trader.New(cfg.TraderParams(), deps)
	return a, nil
}

// Close closes the trade journal.
func (a *App) Close() error {
	return a.Recorder.Close()
}

// NewVenue returns the paper exchange in dry runs (optionally quoted from the public bitbank
// feed) and the Binance adapter otherwise.
func NewVenue(cfg *config.Config, log *zap.Logger) exchange.Exchange {
	if !cfg.DryRun {
		return exchange.NewBinance(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Testnet, log)
	}
	var feed exchange.MarketData
	if cfg.Exchange.PriceFeed == "bitbank" {
		feed = exchange.NewBitbankFeed(cfg.Proxy)
	}
	paper := exchange.NewPaper(config.Amount(cfg.Exchange.DryRunPrice), feed)
	paper.SetFeeRate(config.Amount(cfg.Trading.FeeRate))
	return paper
}

// OpenRecorder opens the SQLite journal, falling back to the no-op recorder when none is
// configured or it cannot be opened.
func OpenRecorder(cfg *config.Config, log *zap.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Warn("sqlite journal unavailable, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	return rec
}
