package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"agent_office/internal/clock"
	"agent_office/internal/config"
	"agent_office/internal/delivery"
	"agent_office/internal/domain"
	"agent_office/internal/generator"
	"agent_office/internal/httpapi"
	"agent_office/internal/office"
	"agent_office/internal/roster"
	"agent_office/internal/scheduler"
	sqlitestore "agent_office/internal/store/sqlite"
	"agent_office/internal/telegram"
)

type serveOptions struct {
	cfg    config.Config
	addr   string
	dbPath string
	token  string
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and WebSocket live channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := loadServeOptions(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), opts, log.Default())
		},
	}
	cmd.Flags().String("addr", "", "http listen address override")
	cmd.Flags().String("db", "", "delivery journal sqlite path override")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("db", cmd.Flags().Lookup("db"))
	return cmd
}

// loadServeOptions resolves flag > env > file > default.
func loadServeOptions(v *viper.Viper) (serveOptions, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return serveOptions{}, fmt.Errorf("load config: %w", err)
	}
	return serveOptions{
		cfg:    cfg,
		addr:   firstNonEmpty(v.GetString("addr"), cfg.Server.Addr, ":8080"),
		dbPath: filepath.Clean(firstNonEmpty(v.GetString("db"), cfg.Journal.DBPath, "data/office.db")),
		token:  firstNonEmpty(v.GetString("telegram_token"), cfg.Telegram.BotToken),
	}, nil
}

func runServe(ctx context.Context, opts serveOptions, logger *log.Logger) error {
	cfg := opts.cfg

	if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	journal, err := sqlitestore.Open(opts.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		_ = journal.Close()
	}()
	if err := journal.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}

	r := roster.Default()
	clk := clock.System{}
	gen, err := newGenerator(r, clk, cfg.Scheduler.Seed)
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}

	client := telegram.New(telegram.WithBaseURL(cfg.Telegram.APIBaseURL))
	adapter := delivery.New(client, r, durationMS(cfg.Telegram.TimeoutMS, 15*time.Second))

	svc := office.New(r, adapter, journal, clk, office.Config{
		StoreCapacity:   intOrDefault(cfg.Store.Capacity, 200),
		SnapshotSize:    intOrDefault(cfg.Store.SnapshotSize, 50),
		Token:           opts.token,
		DeliveryConfigs: deliveryConfigs(cfg.Personas),
	}, logger)

	sched := scheduler.New(gen, svc, clk, nil, scheduler.Config{
		InitialDelay:            durationMS(cfg.Scheduler.InitialDelayMS, 2*time.Second),
		MinInterval:             durationMS(cfg.Scheduler.MinIntervalMS, 3*time.Second),
		MaxInterval:             durationMS(cfg.Scheduler.MaxIntervalMS, 11*time.Second),
		MinCoordinationDelay:    durationMS(cfg.Scheduler.MinCoordinationDelayMS, 2*time.Second),
		MaxCoordinationDelay:    durationMS(cfg.Scheduler.MaxCoordinationDelayMS, 5*time.Second),
		CoordinationProbability: cfg.Scheduler.CoordinationProbability,
		BurstSize:               cfg.Scheduler.BurstSize,
	}, logger)

	api := httpapi.New(svc, cfg, logger)
	server := &http.Server{
		Addr:              opts.addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		api.CloseSubscribers()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	})

	logger.Printf(
		"agent_office started addr=%s db=%s personas=%d token_set=%t",
		opts.addr,
		opts.dbPath,
		len(r.Entries),
		opts.token != "",
	)

	err = g.Wait()
	svc.Wait()
	logger.Printf("agent_office stopped")
	return err
}

func newGenerator(r roster.Roster, clk clock.Clock, seed uint64) (*generator.Generator, error) {
	if seed != 0 {
		return generator.NewSeeded(r, clk, seed)
	}
	return generator.New(r, clk, rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func deliveryConfigs(personas map[string]config.PersonaConfig) map[string]domain.DeliveryConfig {
	out := make(map[string]domain.DeliveryConfig, len(personas))
	for id, p := range personas {
		out[id] = domain.DeliveryConfig{ChatID: p.TelegramID, AvatarURL: p.DPURL}
	}
	return out
}
