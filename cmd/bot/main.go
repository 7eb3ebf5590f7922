package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Moe-and-Friends/Amazake/internal/app/botapp"
	"github.com/Moe-and-Friends/Amazake/internal/config"
	"github.com/Moe-and-Friends/Amazake/internal/domain/rules"
	"github.com/Moe-and-Friends/Amazake/internal/infra/logger"
)

func main() {
	app := &cli.App{
		Name:  "amazake",
		Usage: "discord roulette timeouts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the YAML config file",
				Value:   "configs/config.yaml",
				EnvVars: []string{"APP_CONFIG"},
			},
		},
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "connect to discord and start the roulette",
				Action: runBot,
			},
			{
				Name:   "check-config",
				Usage:  "validate the config file and print the interval table",
				Action: checkConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBot(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := botapp.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create bot app", zap.Error(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Error("bot app failed", zap.Error(err))
		return err
	}
	return nil
}

func checkConfig(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	intervals, err := cfg.Roulette.TimeoutIntervals()
	if err != nil {
		return err
	}

	total := 0
	for _, interval := range intervals {
		total += interval.Weight
	}

	out := cctx.App.Writer
	fmt.Fprintf(out, "config ok: %d channels, %d patterns, %d intervals\n",
		len(cfg.ACL.Channels), len(cfg.Roulette.MatchPatterns), len(intervals))
	for _, interval := range intervals {
		fmt.Fprintf(out, "  %-24s .. %-24s weight %d (%.1f%%)\n",
			rules.DurationLabel(interval.LowerMinutes),
			rules.DurationLabel(interval.UpperMinutes),
			interval.Weight,
			100*float64(interval.Weight)/float64(total),
		)
	}
	return nil
}
