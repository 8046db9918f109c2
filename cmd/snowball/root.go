package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/config"
	"github.com/agenthands/snowball/internal/logger"
	"github.com/agenthands/snowball/internal/workdir"
)

// app is the state shared by every subcommand after the root pre-run.
type app struct {
	configPath string
	workDir    string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *zap.Logger
	wc  workdir.Context
}

func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "snowball",
		Short:         "Resumable snowball crawl of a coauthor network",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a TOML config file")
	flags.StringVar(&a.workDir, "workdir", "", "directory holding the crawl state and outputs")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error or none")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newCrawlCommand(a),
		newStatusCommand(a),
		newDupesCommand(a),
		newExportCommand(a),
		newServeCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.workDir != "" {
		cfg.Crawl.WorkDir = a.workDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	wc, err := workdir.New(cfg.Crawl.WorkDir)
	if err != nil {
		return err
	}

	a.cfg, a.log, a.wc = cfg, log, wc
	return nil
}
