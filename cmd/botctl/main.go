// Command botctl inspects and adjusts the bot's files from the shell. Commands that change the
// ledger or run a cycle take the cycle lock, so they are safe while the bot is running.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"TriggerBot/internal/config"
	"TriggerBot/internal/logging"
)

const usage = `usage: botctl [-config path] <command> [args]

commands:
  status             fund ledger, open positions and bot state
  add-funds AMOUNT   credit AMOUNT to the ledger
  release AMOUNT     return AMOUNT of reserved funds to available
  cycle              run one trading cycle now
  trades [-n N]      most recent journaled trades
`

func main() {
	cfgPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New("warn", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{cfg: cfg, log: log, out: os.Stdout}
	if err := c.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
