package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mission-ledger/config"
	"mission-ledger/handlers"
	"mission-ledger/services"
	"mission-ledger/store"
	"mission-ledger/utils"
	"mission-ledger/workers"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runtime is what every command needs: config, logger and an open ledger.
type runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	store   store.Store
	ledger  *services.Ledger
	catalog *services.Catalog
}

func (r *runtime) Close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Warn("close store", zap.Error(err))
		}
	}
	_ = r.log.Sync()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ledger",
		Short:         "Mission rewards ledger",
		Long:          "Points, levels, achievements and reward redemption for the channel bot.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSeedCommand())
	cmd.AddCommand(newResetSeasonCommand())
	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return cmd
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := utils.NewLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log}

	rt.catalog, err = services.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		rt.Close()
		return nil, err
	}

	switch cfg.DBDriver {
	case "memory":
		rt.store = store.NewMemoryStore()
	default:
		s, err := store.Open(cfg.DBDriver, cfg.DatabaseURL, utils.GormLogLevel(cfg.LogLevel))
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.store = s
	}

	var archiver services.Archiver = utils.NewLocalArchiver(cfg.ArchiveDir)
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Archiver(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket)
		if err != nil {
			rt.Close()
			return nil, err
		}
		archiver = r2
	}

	rt.ledger, err = services.NewLedger(rt.store, rt.catalog.Levels, archiver, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	log.Info("ledger opened", zap.String("driver", cfg.DBDriver))
	return rt, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, log, l := rt.cfg, rt.log, rt.ledger
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	if _, err := l.Seed(ctx, rt.catalog); err != nil {
		return err
	}

	if cfg.SeasonResetCron != "" {
		sched, err := l.Seasons.StartSeasonScheduler(ctx, cfg.SeasonResetCron)
		if err != nil {
			return err
		}
		defer sched.Shutdown()
		log.Info("season reset scheduled", zap.String("cron", cfg.SeasonResetCron))
	}

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, nats.Name("mission-ledger"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer conn.Close()

		consumer := workers.NewEventConsumer(l, log.Named("nats"))
		if err := consumer.Start(conn); err != nil {
			return err
		}
		defer consumer.Stop()
	}

	if cfg.ProfileSyncURL != "" {
		syncWorker := workers.NewProfileSyncWorker(l.Users, log.Named("profile-sync"), cfg.ProfileSyncURL, cfg.SyncServiceToken)
		syncWorker.Start(ctx)
	}

	app := handlers.NewApp(handlers.AppConfig{
		GatewayToken:   cfg.GatewayToken,
		AdminID:        cfg.AdminID,
		AllowedOrigins: cfg.AllowedOrigins,
	}, l, log.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.HTTPAddr)
	}()
	log.Info("server running", zap.String("addr", cfg.HTTPAddr))

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply the reward and mission catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.ledger.Seed(cmd.Context(), rt.catalog)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newResetSeasonCommand() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "reset-season",
		Short: "Archive all users and start a new season",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.ledger.Seasons.ResetSeason(cmd.Context(), label)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "season label used for the archive key (default: timestamp)")
	return cmd
}

func newExportCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every user as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			users, err := rt.ledger.Users.ExportAllUsers(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return writeJSON(cmd.OutOrStdout(), users)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := writeJSON(f, users); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
