package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"TriggerBot/internal/collector"
	"TriggerBot/internal/exchange"
	"TriggerBot/internal/notifier"
	"TriggerBot/internal/scheduler"
	"TriggerBot/internal/trader"
	"TriggerBot/internal/trigger"
)

// Config holds all application configuration.
type Config struct {
	Pair   string `yaml:"pair"`
	DryRun bool   `yaml:"dry_run"`

	Exchange struct {
		APIKey            string  `yaml:"api_key"`
		SecretKey         string  `yaml:"secret_key"`
		Testnet           bool    `yaml:"testnet"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxTries          uint    `yaml:"max_tries"`
		DryRunPrice       float64 `yaml:"dry_run_price"`
		// PriceFeed quotes the paper exchange from a public feed in dry runs: "bitbank" or "".
		PriceFeed string `yaml:"price_feed"`
	} `yaml:"exchange"`

	Trading struct {
		TriggerPct           float64       `yaml:"trigger_pct"`
		Cooldown             time.Duration `yaml:"cooldown"`
		MaxRiskPct           float64       `yaml:"max_risk_pct"`
		BalanceBuffer        float64       `yaml:"balance_buffer"`
		OrderBudget          float64       `yaml:"order_budget"`
		MinOrderQty          float64       `yaml:"min_order_qty"`
		QtyStep              float64       `yaml:"qty_step"`
		FeeRate              float64       `yaml:"fee_rate"`
		FeeFixed             float64       `yaml:"fee_fixed"`
		MaxSlippagePct       float64       `yaml:"max_slippage_pct"`
		AutoResize           bool          `yaml:"auto_resize"`
		AutoResizeMultiplier float64       `yaml:"auto_resize_multiplier"`
		ReinvestProceeds     bool          `yaml:"reinvest_proceeds"`
	} `yaml:"trading"`

	Breakout struct {
		Enabled      bool    `yaml:"enabled"`
		LookbackDays int     `yaml:"lookback_days"`
		Pct          float64 `yaml:"pct"`
		SMAShort     int     `yaml:"sma_short"`
		SMALong      int     `yaml:"sma_long"`
	} `yaml:"breakout"`

	Fund struct {
		StateFile      string  `yaml:"state_file"`
		InitialFund    float64 `yaml:"initial_fund"`
		TopupAmount    float64 `yaml:"topup_amount"`
		TopupThreshold float64 `yaml:"topup_threshold"`
	} `yaml:"fund"`

	State struct {
		File string `yaml:"file"`
	} `yaml:"state"`

	Lock struct {
		File    string        `yaml:"file"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"lock"`

	Alerts struct {
		PriceAlertPct      float64 `yaml:"price_alert_pct"`
		LowFunds           float64 `yaml:"low_funds"`
		DepositDetection   bool    `yaml:"deposit_detection"`
		DepositMinIncrease float64 `yaml:"deposit_min_increase"`
	} `yaml:"alerts"`

	Schedule struct {
		CycleCron   string `yaml:"cycle_cron"`
		MonitorCron string `yaml:"monitor_cron"`
		RunOnStart  bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		To       string `yaml:"to"` // comma separated
	} `yaml:"smtp"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"` // empty disables the journal
	} `yaml:"database"`

	Metrics struct {
		Listen string `yaml:"listen"` // empty disables the endpoint
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`

	Proxy string `yaml:"proxy"`
}

// Load reads .env (when present) and the YAML file at path, then applies environment variable
// overrides and defaults. A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	cfg.Trading.ReinvestProceeds = true
	cfg.Alerts.DepositDetection = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// envOverride applies one environment variable when set.
type envOverride struct {
	name  string
	apply func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func float(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			return fmt.Errorf("not a boolean: %q", v)
		}
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			// plain numbers are seconds
			secs, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return err
			}
			d = time.Duration(secs * float64(time.Second))
		}
		*dst = d
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func (c *Config) applyEnv() error {
	overrides := []envOverride{
		{"TRADING_PAIR", str(&c.Pair)},
		{"DRY_RUN", boolean(&c.DryRun)},
		{"API_KEY", str(&c.Exchange.APIKey)},
		{"SECRET_KEY", str(&c.Exchange.SecretKey)},
		{"DRY_RUN_PRICE", float(&c.Exchange.DryRunPrice)},
		{"TRADE_TRIGGER_PCT", float(&c.Trading.TriggerPct)},
		{"BUY_COOLDOWN", duration(&c.Trading.Cooldown)},
		{"MAX_RISK_PCT", float(&c.Trading.MaxRiskPct)},
		{"BALANCE_BUFFER", float(&c.Trading.BalanceBuffer)},
		{"ORDER_BUDGET", float(&c.Trading.OrderBudget)},
		{"MIN_ORDER_QTY", float(&c.Trading.MinOrderQty)},
		{"FEE_RATE", float(&c.Trading.FeeRate)},
		{"FEE_FIXED", float(&c.Trading.FeeFixed)},
		{"MAX_SLIPPAGE_PCT", float(&c.Trading.MaxSlippagePct)},
		{"AUTO_RESIZE", boolean(&c.Trading.AutoResize)},
		{"AUTO_RESIZE_MAX_MULTIPLIER", float(&c.Trading.AutoResizeMultiplier)},
		{"FUND_STATE_FILE", str(&c.Fund.StateFile)},
		{"INITIAL_FUND", float(&c.Fund.InitialFund)},
		{"DEPOSIT_AMOUNT", float(&c.Fund.TopupAmount)},
		{"MIN_BALANCE_THRESHOLD", float(&c.Fund.TopupThreshold)},
		{"BOT_STATE_FILE", str(&c.State.File)},
		{"ORDER_LOCKFILE", str(&c.Lock.File)},
		{"LOCK_TIMEOUT", duration(&c.Lock.Timeout)},
		{"PRICE_ALERT_PERCENT", float(&c.Alerts.PriceAlertPct)},
		{"LOW_FUNDS_ALERT", float(&c.Alerts.LowFunds)},
		{"DEPOSIT_DETECTION", boolean(&c.Alerts.DepositDetection)},
		{"CRON_CYCLE", str(&c.Schedule.CycleCron)},
		{"CRON_MONITOR", str(&c.Schedule.MonitorCron)},
		{"RUN_ON_START", boolean(&c.Schedule.RunOnStart)},
		{"TELEGRAM_BOT_TOKEN", str(&c.Telegram.BotToken)},
		{"TELEGRAM_CHAT_ID", str(&c.Telegram.ChatID)},
		{"SMTP_HOST", str(&c.SMTP.Host)},
		{"SMTP_PORT", integer(&c.SMTP.Port)},
		{"SMTP_USER", str(&c.SMTP.User)},
		{"SMTP_PASS", str(&c.SMTP.Password)},
		{"TO_EMAIL", str(&c.SMTP.To)},
		{"SQLITE_PATH", str(&c.Database.SQLitePath)},
		{"METRICS_LISTEN", str(&c.Metrics.Listen)},
		{"LOG_LEVEL", str(&c.Log.Level)},
		{"HTTPS_PROXY", str(&c.Proxy)},
	}
	for _, o := range overrides {
		v, ok := os.LookupEnv(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return fmt.Errorf("env %s: %w", o.name, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	setStr := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	setFloat := func(dst *float64, def float64) {
		if *dst == 0 {
			*dst = def
		}
	}
	setInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	setStr(&c.Pair, "BTC/JPY")
	setFloat(&c.Exchange.RequestsPerSecond, 5)
	setInt(&c.Exchange.Burst, 2)
	if c.Exchange.MaxTries == 0 {
		c.Exchange.MaxTries = 3
	}
	setFloat(&c.Exchange.DryRunPrice, 5000000)

	setFloat(&c.Trading.TriggerPct, 20)
	if c.Trading.Cooldown == 0 {
		c.Trading.Cooldown = time.Hour
	}
	setFloat(&c.Trading.MaxRiskPct, 100)
	setFloat(&c.Trading.BalanceBuffer, 1000)
	setFloat(&c.Trading.MinOrderQty, 0.0001)
	setFloat(&c.Trading.QtyStep, 0.0001)
	setFloat(&c.Trading.FeeRate, 0.001)
	setFloat(&c.Trading.MaxSlippagePct, 1)
	setFloat(&c.Trading.AutoResizeMultiplier, 1.5)

	setInt(&c.Breakout.LookbackDays, 20)
	setFloat(&c.Breakout.Pct, 0.5)
	setInt(&c.Breakout.SMAShort, 20)
	setInt(&c.Breakout.SMALong, 50)

	setStr(&c.Fund.StateFile, "data/funds_state.json")
	setFloat(&c.Fund.InitialFund, 20000)
	setFloat(&c.Fund.TopupThreshold, 5000)
	setStr(&c.State.File, "data/bot_state.json")
	setStr(&c.Lock.File, "data/order.lock")
	if c.Lock.Timeout == 0 {
		c.Lock.Timeout = 10 * time.Second
	}

	setFloat(&c.Alerts.PriceAlertPct, 20)
	setFloat(&c.Alerts.LowFunds, 2000)
	setFloat(&c.Alerts.DepositMinIncrease, 1000)

	setStr(&c.Schedule.CycleCron, "0 0 * * * *")
	setStr(&c.Schedule.MonitorCron, "0 */10 * * * *")
	setInt(&c.SMTP.Port, 587)
	setStr(&c.Log.Level, "info")
	setStr(&c.Log.Format, "json")
}

// Validate checks that all required fields are set and knobs are in range.
func (c *Config) Validate() error {
	if _, _, err := exchange.SplitPair(c.Pair); err != nil {
		return fmt.Errorf("pair: %w", err)
	}
	if !c.DryRun && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
		return fmt.Errorf("exchange.api_key and exchange.secret_key are required unless dry_run is set")
	}
	t := c.Trading
	switch {
	case t.TriggerPct <= 0 || t.TriggerPct >= 100:
		return fmt.Errorf("trading.trigger_pct must be in (0, 100)")
	case t.Cooldown < 0:
		return fmt.Errorf("trading.cooldown must not be negative")
	case t.MaxRiskPct <= 0 || t.MaxRiskPct > 100:
		return fmt.Errorf("trading.max_risk_pct must be in (0, 100]")
	case t.BalanceBuffer < 0 || t.OrderBudget < 0:
		return fmt.Errorf("trading.balance_buffer and trading.order_budget must not be negative")
	case t.MinOrderQty <= 0 || t.QtyStep < 0:
		return fmt.Errorf("trading.min_order_qty must be positive and trading.qty_step not negative")
	case t.FeeRate < 0 || t.FeeRate >= 1 || t.FeeFixed < 0:
		return fmt.Errorf("trading.fee_rate must be in [0, 1) and trading.fee_fixed not negative")
	case t.MaxSlippagePct <= 0:
		return fmt.Errorf("trading.max_slippage_pct must be positive")
	case t.AutoResize && t.AutoResizeMultiplier <= 1:
		return fmt.Errorf("trading.auto_resize_multiplier must exceed 1")
	}
	if c.Breakout.Enabled && (c.Breakout.LookbackDays <= 0 || c.Breakout.SMAShort <= 0 || c.Breakout.SMALong <= 0) {
		return fmt.Errorf("breakout windows must be positive")
	}
	if c.Lock.Timeout <= 0 {
		return fmt.Errorf("lock.timeout must be positive")
	}
	if c.Fund.InitialFund < 0 {
		return fmt.Errorf("fund.initial_fund must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Schedule.CycleCron == "" {
		return fmt.Errorf("schedule.cycle_cron is required")
	}
	return nil
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// TriggerParams returns the evaluator knobs.
func (c *Config) TriggerParams() trigger.Params {
	return trigger.Params{
		TriggerPct:     dec(c.Trading.TriggerPct),
		Cooldown:       c.Trading.Cooldown,
		MaxSlippagePct: dec(c.Trading.MaxSlippagePct),
		Breakout: trigger.BreakoutParams{
			Enabled:      c.Breakout.Enabled,
			LookbackDays: c.Breakout.LookbackDays,
			Pct:          dec(c.Breakout.Pct),
			SMAShort:     c.Breakout.SMAShort,
			SMALong:      c.Breakout.SMALong,
		},
	}
}

// TraderParams returns the coordinator knobs.
func (c *Config) TraderParams() trader.Params {
	return trader.Params{
		Pair:          c.Pair,
		OrderBudget:   dec(c.Trading.OrderBudget),
		MaxRiskPct:    dec(c.Trading.MaxRiskPct),
		BalanceBuffer: dec(c.Trading.BalanceBuffer),
		Sizing: trader.Sizing{
			MinQty:           dec(c.Trading.MinOrderQty),
			Step:             dec(c.Trading.QtyStep),
			Fees:             trader.Fees{Rate: dec(c.Trading.FeeRate), Fixed: dec(c.Trading.FeeFixed)},
			AutoResize:       c.Trading.AutoResize,
			ResizeMultiplier: dec(c.Trading.AutoResizeMultiplier),
		},
		LockPath:         c.Lock.File,
		LockTimeout:      c.Lock.Timeout,
		ReinvestProceeds: c.Trading.ReinvestProceeds,
	}
}

// CollectorSettings returns the indicator windows.
func (c *Config) CollectorSettings() collector.Settings {
	return collector.Settings{
		LookbackDays: c.Breakout.LookbackDays,
		SMAShort:     c.Breakout.SMAShort,
		SMALong:      c.Breakout.SMALong,
	}
}

// GuardOptions returns the exchange rate-limit and retry settings.
func (c *Config) GuardOptions() exchange.GuardOptions {
	o := exchange.DefaultGuardOptions()
	o.RequestsPerSecond = c.Exchange.RequestsPerSecond
	o.Burst = c.Exchange.Burst
	o.MaxTries = c.Exchange.MaxTries
	return o
}

// MonitorSettings returns the knobs of the between-cycle monitor job.
func (c *Config) MonitorSettings() scheduler.Settings {
	return scheduler.Settings{
		Pair:               c.Pair,
		TriggerPct:         dec(c.Trading.TriggerPct),
		PriceAlertPct:      dec(c.Alerts.PriceAlertPct),
		LowFunds:           dec(c.Alerts.LowFunds),
		DepositDetection:   c.Alerts.DepositDetection,
		DepositMinIncrease: dec(c.Alerts.DepositMinIncrease),
		TopupAmount:        dec(c.Fund.TopupAmount),
		TopupThreshold:     dec(c.Fund.TopupThreshold),
		LockPath:           c.Lock.File,
		LockTimeout:        c.Lock.Timeout,
	}
}

// SMTPConfig returns mail settings; ok is false when mail is not configured.
func (c *Config) SMTPConfig() (cfg notifier.SMTPConfig, ok bool) {
	if c.SMTP.Host == "" || c.SMTP.To == "" {
		return notifier.SMTPConfig{}, false
	}
	var to []string
	for _, addr := range strings.Split(c.SMTP.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return notifier.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		User:     c.SMTP.User,
		Password: c.SMTP.Password,
		To:       to,
	}, true
}

// Amount converts a configured money value.
func Amount(f float64) decimal.Decimal { return dec(f) }
