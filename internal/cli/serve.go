package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quartzmem/quartz/internal/config"
	"github.com/quartzmem/quartz/internal/engine"
	"github.com/quartzmem/quartz/internal/metrics"
	"github.com/quartzmem/quartz/internal/partition"
	"github.com/quartzmem/quartz/internal/server"
	"github.com/quartzmem/quartz/internal/store"
	"github.com/quartzmem/quartz/internal/tier"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func newLogger() zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).With().Timestamp().Logger()
}

func engineConfig(c config.EngineConfig) engine.Config {
	return engine.Config{
		CrystallizationThreshold: c.CrystallizationThreshold,
		ReclamationThreshold:     c.ReclamationThreshold,
		DecayRate:                c.DecayRate,
		DecayInterval:            time.Duration(c.DecayIntervalSecs) * time.Second,
		ClusterInterval:          time.Duration(c.ClusterIntervalSecs) * time.Second,
		RebalanceInterval:        time.Duration(c.RebalanceIntervalSecs) * time.Second,
		MinClusterSize:           c.MinClusterSize,
		ContentType:              c.ContentType,
		CacheSize:                c.CacheSize,
	}
}

func tierConfig(c config.TierConfig) tier.Config {
	return tier.Config{
		ActiveWindow:    time.Duration(c.ActiveWindowSecs) * time.Second,
		WarmWindow:      time.Duration(c.WarmWindowSecs) * time.Second,
		ColdWindow:      time.Duration(c.ColdWindowSecs) * time.Second,
		ImportanceBoost: c.ImportanceBoost,
		MaxActive:       c.MaxActive,
		MaxWarm:         c.MaxWarm,
		MaxCold:         c.MaxCold,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger()

	registry := partition.NewRegistry(cfg.Spiral.Dimensions, cfg.Spiral.Scale)

	var (
		adapter store.Adapter
		db      *store.DB
	)
	switch cfg.Database.Backend {
	case "", "sqlite":
		dbPath := cfg.Database.Path
		if dbPath == "" {
			dbPath, err = store.DefaultDBPath()
			if err != nil {
				return fmt.Errorf("resolve db path: %w", err)
			}
		}
		db, err = store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		adapter = db
	case "memory":
		adapter = store.NewMemory()
	default:
		return fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}

	eng, err := engine.New(registry, adapter, engineConfig(cfg.Engine), log)
	if err != nil {
		return err
	}

	if cfg.Tier.Enabled {
		policy, err := tier.NewPolicy(tierConfig(cfg.Tier))
		if err != nil {
			return err
		}
		eng.SetTierPolicy(policy)
	}
	mets := metrics.New()
	eng.SetMetrics(mets)

	if db != nil {
		recs, err := db.ListPartitions(cmd.Context())
		if err != nil {
			return err
		}
		if err := eng.Restore(cmd.Context(), recs); err != nil {
			return err
		}
		registry.SetOnCreate(func(rec partition.Record) {
			if err := db.SavePartition(context.Background(), rec); err != nil {
				log.Error().Err(err).Str("partition", rec.ID).Msg("persist partition failed")
			}
		})
	}

	eng.Start()
	defer eng.Stop()

	srv := server.New(eng, registry, mets, VersionString(), log)
	if db != nil {
		srv.SetDB(db)
	}

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", addr).Str("backend", cfg.Database.Backend).Msg("quartz serving")
		if db != nil {
			log.Info().Str("db", db.Path).Msg("database open")
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
