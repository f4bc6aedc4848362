// Command vbk-watch queries a VeriBlock NodeCore node for the Bitcoin blocks
// anchoring its chain, and can watch the tip to record those anchors.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archon-research/vbk-watch/internal/adapters/outbound/telemetry"
	"github.com/archon-research/vbk-watch/internal/config"
	"github.com/archon-research/vbk-watch/internal/pkg/env"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries state shared by every subcommand once the root has loaded config.
type app struct {
	v          *viper.Viper
	configFile string

	cfg      *config.Config
	logger   *slog.Logger
	shutdown []func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "vbk-watch",
		Short:         "Track the Bitcoin blocks anchoring a VeriBlock NodeCore chain",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close(context.WithoutCancel(cmd.Context()))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("nodecore-url", "", "NodeCore JSON-RPC endpoint")
	flags.String("nodecore-username", "", "NodeCore basic auth username")
	flags.String("nodecore-password", "", "NodeCore basic auth password")
	_ = a.v.BindPFlag("nodecore.url", flags.Lookup("nodecore-url"))
	_ = a.v.BindPFlag("nodecore.username", flags.Lookup("nodecore-username"))
	_ = a.v.BindPFlag("nodecore.password", flags.Lookup("nodecore-password"))

	root.AddCommand(
		newExampleCmd(a),
		newLookupCmd(a),
		newInfoCmd(a),
		newWatchCmd(a),
		newTxConfirmSendCmd(a),
		newMigrateCmd(a),
		newArchiveCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(a.logger)

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if !cfg.Telemetry.Enabled {
		return nil
	}

	ctx := cmd.Context()
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		StdoutWriter: cmd.ErrOrStderr(),
		SampleRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	a.shutdown = append(a.shutdown, shutdownTracer)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.shutdown = append(a.shutdown, shutdownMetrics)

	a.logger.Debug("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
	return nil
}

func (a *app) close(ctx context.Context) error {
	var firstErr error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.shutdown = nil
	return firstErr
}
