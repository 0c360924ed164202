package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autodrop/internal/app"
	"autodrop/internal/config"
	"autodrop/internal/logging"
	"autodrop/internal/snapshot"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "autodrop",
		Short:        "Item distribution service with per-consumer timers",
		SilenceUsage: true,
	}
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config/config.yaml"
	}
	rootCmd.PersistentFlags().String("config", defaultPath, "Path to the YAML config file (env CONFIG_PATH)")

	rootCmd.AddCommand(newServeCommand(), newInspectCommand())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API, timer scheduler and optional Kafka ingest",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateForServe(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			logging.Install(logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("shutdown", "err", err)
				}
			}()
			return a.Run(ctx)
		},
	}
	cmd.Flags().String("log-level", "", "Override log.level: debug|info|warn|error")
	return cmd
}

type inspectOutput struct {
	Backend     string                   `json:"backend"`
	SavedAt     string                   `json:"saved_at,omitempty"`
	Producers   []int64                  `json:"producers"`
	Consumers   []int64                  `json:"consumers"`
	QueueLength int                      `json:"queue_length"`
	Enabled     bool                     `json:"distribution_enabled"`
	Delivered   map[int64]int            `json:"delivered"`
	Timers      map[int64]snapshot.Timer `json:"timers"`
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print a summary of the persisted snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateState(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			p, closeFn, err := app.OpenPersister(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			snap, err := p.Load(ctx)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			out := inspectOutput{
				Backend:     cfg.State.Backend,
				Producers:   snap.Producers,
				Consumers:   snap.Consumers,
				QueueLength: len(snap.Queue),
				Enabled:     snap.Enabled,
				Delivered:   make(map[int64]int, len(snap.Distributed)),
				Timers:      snap.Timers,
			}
			if !snap.SavedAt.IsZero() {
				out.SavedAt = snap.SavedAt.Format(time.RFC3339)
			}
			sort.Slice(out.Producers, func(i, j int) bool { return out.Producers[i] < out.Producers[j] })
			sort.Slice(out.Consumers, func(i, j int) bool { return out.Consumers[i] < out.Consumers[j] })
			for id, items := range snap.Distributed {
				out.Delivered[id] = len(items)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
