package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/archon-research/vbk-watch/db/migrator"
	httpadapter "github.com/archon-research/vbk-watch/internal/adapters/inbound/http"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/nodecore"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/s3"
	"github.com/archon-research/vbk-watch/internal/application"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newExampleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Log the last Bitcoin block known at the node's last VeriBlock block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.newNodeCoreClient()
			if err != nil {
				return err
			}
			anchors, err := application.NewAnchorService(application.AnchorServiceConfig{Logger: a.logger}, client, nil, nil, nil)
			if err != nil {
				return err
			}

			lastBlock, err := client.GetLastBlock(ctx)
			if err != nil {
				return fmt.Errorf("getlastblock failed: %w", err)
			}
			return anchors.LogLastBitcoinBlock(ctx, lastBlock)
		},
	}
}

func newLookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <vbkHash>",
		Short: "Print the last Bitcoin block known at a VeriBlock block as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := a.buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svcs.Close()

			anchor, err := svcs.anchors.LookupAnchor(cmd.Context(), args[0])
			if nodecore.IsRPCError(err) {
				return fmt.Errorf("nodecore rejected the lookup: %w", err)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), anchor)
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the node's tip and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.newNodeCoreClient()
			if err != nil {
				return err
			}
			info, err := client.GetInfo(ctx)
			if err != nil {
				return err
			}
			state, err := client.GetStateInfo(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "tip height\t%d\n", info.LastBlock.Number)
			fmt.Fprintf(tw, "tip hash\t%s\n", info.LastBlock.Hash)
			fmt.Fprintf(tw, "blockchain state\t%s\n", state.BlockchainState.State)
			fmt.Fprintf(tw, "operating state\t%s\n", state.OperatingState.State)
			fmt.Fprintf(tw, "network state\t%s\n", state.NetworkState.State)
			fmt.Fprintf(tw, "network height\t%d\n", state.NetworkHeight)
			fmt.Fprintf(tw, "blocks behind\t%d\n", state.BlocksBehind())
			fmt.Fprintf(tw, "peers\t%d\n", state.ConnectedPeerCount)
			fmt.Fprintf(tw, "version\t%s\n", state.ProgramVersion)
			return tw.Flush()
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the VeriBlock tip, recording anchors and serving the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svcs, err := a.buildServices(ctx)
			if err != nil {
				return err
			}
			defer svcs.Close()

			watcher, err := application.NewWatcherService(application.WatcherConfig{
				PollInterval:  a.cfg.Watcher.PollInterval,
				HealthTimeout: a.cfg.Watcher.HealthTimeout,
				SearchLength:  a.cfg.Watcher.SearchLength,
				ArchiveBucket: a.cfg.AWS.ArchiveBucket,
				Metrics:       svcs.metrics,
				Logger:        a.logger,
			}, svcs.client, svcs.anchors, svcs.archive)
			if err != nil {
				return err
			}

			var shuttingDown atomic.Bool
			server := httpadapter.NewServer(httpadapter.ServerConfig{
				Addr:   a.cfg.HTTP.Addr,
				Logger: a.logger,
			}, watcher, &shuttingDown)
			server.Mount(httpadapter.NewHandler(svcs.anchors, a.logger).RegisterRoutes)
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start http server: %w", err)
			}

			if err := watcher.Start(ctx); err != nil {
				_ = server.Shutdown(a.cfg.HTTP.ShutdownTimeout)
				return err
			}
			a.logger.Info("watching VeriBlock tip", "nodecore", a.cfg.NodeCore.URL, "http", a.cfg.HTTP.Addr)

			workerDone := make(chan struct{})
			if svcs.queue != nil {
				worker, err := application.NewLookupWorker(application.LookupWorkerConfig{Logger: a.logger}, svcs.queue, svcs.anchors)
				if err != nil {
					_ = server.Shutdown(a.cfg.HTTP.ShutdownTimeout)
					_ = watcher.Stop()
					return err
				}
				go func() {
					defer close(workerDone)
					_ = worker.Run(ctx)
				}()
			} else {
				close(workerDone)
			}

			<-ctx.Done()
			a.logger.Info("shutting down")
			<-workerDone

			if err := server.Shutdown(a.cfg.HTTP.ShutdownTimeout); err != nil {
				a.logger.Error("http server shutdown failed", "error", err)
			}
			return watcher.Stop()
		},
	}
}

func newTxConfirmSendCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "tx-confirm-send",
		Short: "Fund a wallet from the faucet, send transactions and check they confirm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newNodeCoreClient()
			if err != nil {
				return err
			}
			faucetClient, err := a.newFaucetClient()
			if err != nil {
				return err
			}
			waiter, err := application.NewSyncWaiter(application.SyncWaiterConfig{Logger: a.logger}, client)
			if err != nil {
				return err
			}

			var bar *progressbar.ProgressBar
			if !quiet {
				bar = progressbar.NewOptions(a.cfg.TxConfirm.TxCount,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("sending transactions"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}

			runner, err := application.NewTxConfirmSendRunner(application.TxConfirmSendConfig{
				TxCount:         a.cfg.TxConfirm.TxCount,
				Amount:          a.cfg.TxConfirm.Amount,
				SendInterval:    a.cfg.TxConfirm.SendInterval,
				ScanConcurrency: a.cfg.TxConfirm.Concurrency,
				OnSent: func(sent, total int) {
					if bar != nil {
						_ = bar.Set(sent)
					}
				},
				Logger: a.logger,
			}, client, faucetClient, waiter)
			if err != nil {
				return err
			}

			report, err := runner.Run(cmd.Context())
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if len(report.Missing) > 0 {
				return fmt.Errorf("%d of %d transactions were not confirmed", len(report.Missing), len(report.Sent))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "disable the progress bar")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			m := migrator.New(pool, a.cfg.Postgres.MigrationsDir).WithLogger(a.logger)
			if status {
				applied, err := m.ListApplied(ctx)
				if err != nil {
					return fmt.Errorf("failed to list migrations: %w", err)
				}
				for _, name := range applied {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			applied, err := m.Apply(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "  "+name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list applied migrations instead of applying")
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived block replies",
	}

	reader := func(cmd *cobra.Command) (*s3.Reader, string, error) {
		bucket := a.cfg.AWS.ArchiveBucket
		if bucket == "" {
			return nil, "", fmt.Errorf("aws.archive_bucket is not configured")
		}
		awsCfg, err := a.loadAWSConfig(cmd.Context())
		if err != nil {
			return nil, "", err
		}
		return s3.NewReader(awsCfg, a.logger, a.s3Options()...), bucket, nil
	}

	var prefix string
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List archived blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, bucket, err := reader(cmd)
			if err != nil {
				return err
			}
			files, err := r.ListFiles(cmd.Context(), bucket, prefix)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Key, f.Size, f.LastModified.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return tw.Flush()
		},
	}
	ls.Flags().StringVar(&prefix, "prefix", "blocks/", "key prefix to list")

	cat := &cobra.Command{
		Use:   "cat <key>",
		Short: "Print an archived block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, bucket, err := reader(cmd)
			if err != nil {
				return err
			}
			rc, err := r.StreamFile(cmd.Context(), bucket, args[0])
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		},
	}

	cmd.AddCommand(ls, cat)
	return cmd
}
