package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	cli "go.dedis.ch/smpcreg/cmd"
	"go.dedis.ch/smpcreg/config"
	"go.dedis.ch/smpcreg/httpserver"
	"go.dedis.ch/smpcreg/internal/dataset"
)

func main() {
	var confPath, level string

	command := &cobra.Command{
		Use:   "smpcreg",
		Short: "Encrypted multi-party linear regression",
	}
	command.PersistentFlags().StringVarP(&confPath, "config", "c", "", "YAML configuration file")
	command.PersistentFlags().StringVar(&level, "log-level", "", "Override the configured log level")

	loadConf := func() (config.Config, error) {
		conf := config.Default()
		if confPath != "" {
			var err error
			conf, err = config.Load(confPath)
			if err != nil {
				return conf, err
			}
		}
		if level != "" {
			conf.Log.Level = level
		}
		lvl, err := conf.LogLevel()
		if err != nil {
			return conf, err
		}
		zerolog.SetGlobalLevel(lvl)
		return conf, nil
	}

	addFitCmd(command, loadConf)
	addDemoCmd(command, loadConf)
	addServeCmd(command, loadConf)
	addInteractiveCmd(command, loadConf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := command.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// addFitCmd fits the CSV files of the data holders
func addFitCmd(command *cobra.Command, loadConf func() (config.Config, error)) {
	var target string
	var features []string
	var compare bool

	fitCmd := &cobra.Command{
		Use:   "fit [csv files]",
		Short: "Fit a regression on the CSV shards of the data holders",
		Long:  "Fit a regression on the CSV shards of the data holders, one file per holder, without pooling them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf()
			if err != nil {
				return err
			}
			if target != "" {
				conf.Data.Target = target
			}
			if len(features) > 0 {
				conf.Data.Features = features
			}
			_, err = cli.FitFiles(cmd.Context(), cmd.OutOrStdout(), conf, args, compare)
			return err
		},
	}

	fitCmd.Flags().StringVarP(&target, "target", "t", "", "Target column")
	fitCmd.Flags().StringSliceVarP(&features, "features", "f", nil, "Feature columns, all but the target by default")
	fitCmd.Flags().BoolVar(&compare, "compare", false, "Compare with a plaintext fit")

	command.AddCommand(fitCmd)
}

// addDemoCmd fits synthetic data
func addDemoCmd(command *cobra.Command, loadConf func() (config.Config, error)) {
	opts := dataset.DefaultSynthetic
	var compare bool

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Fit a regression on synthetic shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf()
			if err != nil {
				return err
			}
			_, err = cli.Demo(cmd.Context(), cmd.OutOrStdout(), conf, opts, compare)
			return err
		},
	}

	demoCmd.Flags().IntVar(&opts.Holders, "holders", opts.Holders, "Number of data holders")
	demoCmd.Flags().IntVar(&opts.Rows, "rows", opts.Rows, "Rows per holder")
	demoCmd.Flags().IntVar(&opts.Features, "features", opts.Features, "Number of features")
	demoCmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	demoCmd.Flags().BoolVar(&compare, "compare", true, "Compare with a plaintext fit")

	command.AddCommand(demoCmd)
}

// addServeCmd starts the HTTP front-end
func addServeCmd(command *cobra.Command, loadConf func() (config.Config, error)) {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf()
			if err != nil {
				return err
			}
			return httpserver.NewServer(conf).ListenAndServe(addr)
		},
	}

	serveCmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")

	command.AddCommand(serveCmd)
}

// addInteractiveCmd starts the interactive prompt
func addInteractiveCmd(command *cobra.Command, loadConf func() (config.Config, error)) {
	interactiveCmd := &cobra.Command{
		Use:   "interactive",
		Short: "Start the interactive prompt",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := loadConf()
			if err != nil {
				log.Error().Err(err).Msg("failed to load configuration")
				return
			}
			cli.StartCMD(conf)
		},
	}

	command.AddCommand(interactiveCmd)
}
