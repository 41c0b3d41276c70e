package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/logger"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("TRADEBOT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "tradebot",
		Short:         "Backtest trading strategies against historical candles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return a.load()
		},
	}
	root.PersistentFlags().String("config", "", "YAML config file (defaults plus TRADEBOT_* env when empty)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newBacktestCmd(a), newRunsCmd(a), newImportCmd(a))
	return root
}

// load reads the config file (or the defaults) and builds the logger.
func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	if path := a.v.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lvl := a.v.GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	log, err := logger.NewZapLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}
