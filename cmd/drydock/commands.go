package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Drydock/internal/executor"
	"github.com/CZERTAINLY/Drydock/internal/log"
	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/CZERTAINLY/Drydock/internal/service"
	"github.com/CZERTAINLY/Drydock/internal/store"
)

var (
	flagImage    string
	flagCommands []string
	flagSource   string
	flagName     string
	flagLimit    int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run executes all configured jobs once, or a single job given by flags",
	Example: `  drydock run
  drydock run --image golang:1.25 --command "go version" --command "go test ./..." --source .`,
	RunE: doRun,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve runs configured jobs by their schedules until interrupted",
	RunE:  doServe,
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "test checks the executor configuration by running a trivial command in an image",
	RunE:  doTest,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "validate checks the configuration file without running anything",
	RunE:  doValidate,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "history prints recent executions stored in service.db",
	RunE:  doHistory,
}

func init() {
	runCmd.Flags().StringVar(&flagImage, "image", "", "image of an ad hoc job, configured jobs are ignored")
	runCmd.Flags().StringArrayVar(&flagCommands, "command", nil, "command line of an ad hoc job, can be repeated")
	runCmd.Flags().StringVar(&flagSource, "source", "", "directory copied into the workspace of an ad hoc job")
	runCmd.Flags().StringVar(&flagName, "name", "adhoc", "name of an ad hoc job")

	testCmd.Flags().StringVar(&flagImage, "image", "", "image to test with")
	_ = testCmd.MarkFlagRequired("image")

	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum number of executions, 0 prints all")
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("drydock",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	cfg := config
	cfg.Service.Mode = model.ServiceModeManual
	if flagImage != "" {
		cfg.Jobs = []model.Job{{
			Name:     flagName,
			Image:    flagImage,
			Commands: flagCommands,
			Source:   flagSource,
		}}
	}

	ex, closeStore, err := newExecutor(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	supervisor, err := service.NewSupervisor(ctx, cfg, ex)
	if err != nil {
		return err
	}
	return supervisor.Do(ctx)
}

func doServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if config.Service.Mode != model.ServiceModeTimer {
		return fmt.Errorf("serve requires service.mode %q, got %q", model.ServiceModeTimer, config.Service.Mode)
	}
	attrs := slog.Group("drydock",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	ex, closeStore, err := newExecutor(cmd, config)
	if err != nil {
		return err
	}
	defer closeStore()

	supervisor, err := service.NewSupervisor(ctx, config, ex)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "serving", "jobs", len(config.Jobs), "capacity", ex.Capacity())
	return supervisor.Do(ctx)
}

func doTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("drydock",
		slog.String("cmd", "test"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	ex, err := executor.New(config.Executor, executor.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	result := ex.Test(ctx, model.TestProbe{Image: flagImage})

	enc := json.NewEncoder(cmd.OutOrStdout())
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.OK {
		return errors.New("test failed: " + result.Message)
	}
	return nil
}

func doValidate(cmd *cobra.Command, args []string) error {
	if _, err := executor.New(config.Executor); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: valid, %d job(s), mode %s\n", configPath, len(config.Jobs), config.Service.Mode)
	return err
}

func doHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if config.Service.DB == "" {
		return errors.New("execution history is disabled, set service.db")
	}
	s, err := store.Open(ctx, config.Service.DB)
	if err != nil {
		return fmt.Errorf("opening execution history: %w", err)
	}
	defer func() {
		_ = s.Close()
	}()

	rows, err := s.List(ctx, flagLimit)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), row.String()); err != nil {
			return err
		}
	}
	return nil
}

// newExecutor creates the executor, recording executions into service.db if
// configured. The returned function closes the store.
func newExecutor(cmd *cobra.Command, cfg model.Config) (*executor.Executor, func(), error) {
	opts := []executor.Option{executor.WithLogger(slog.Default())}
	closeStore := func() {}
	if cfg.Service.DB != "" {
		s, err := store.Open(cmd.Context(), cfg.Service.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("opening execution history: %w", err)
		}
		opts = append(opts, executor.WithRecorder(s))
		closeStore = func() {
			if err := s.Close(); err != nil {
				slog.Error("closing execution history", "error", err)
			}
		}
	}
	ex, err := executor.New(cfg.Executor, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return ex, closeStore, nil
}
