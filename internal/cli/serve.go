package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agendahealth/consulta/internal/cache"
	"github.com/agendahealth/consulta/internal/config"
	"github.com/agendahealth/consulta/internal/executor"
	"github.com/agendahealth/consulta/internal/server"
	"github.com/agendahealth/consulta/internal/skill"
	"github.com/agendahealth/consulta/internal/store"
)

// purgeInterval is how often expired session records are swept.
const purgeInterval = 10 * time.Minute

func newServeCmd() *cobra.Command {
	var (
		port   int
		bind   string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if dbPath != "" {
				cfg.Store.Path = dbPath
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			nluClient, err := buildNLU(cfg)
			if err != nil {
				return err
			}

			db, err := store.Open(cfg.Store.Path, log)
			if err != nil {
				return fmt.Errorf("opening session database: %w", err)
			}
			defer db.Close()

			sessions := store.NewSessionStore(db, store.SessionStoreOptions{
				TTL:              cfg.Store.TTL.Std(),
				InactivityWindow: cfg.Session.InactivityWindow.Std(),
				MaxRetries:       cfg.Session.MaxRetries,
			})
			log.Info().Str("path", cfg.Store.Path).Msg("using SQLite session store")

			conversationCache := cache.New(cache.Options{
				IdentityTTL: cfg.Cache.IdentityTTL.Std(),
				ResultsTTL:  cfg.Cache.ResultsTTL.Std(),
				MaxEntries:  cfg.Cache.MaxEntries,
			})

			appointments := skill.NewAppointmentSkill(skill.AppointmentDeps{
				Sessions:        sessions,
				Cache:           conversationCache,
				Source:          buildSource(cfg),
				Executor:        executor.NewSimulatedExecutor(log),
				NLU:             nluClient,
				Log:             log,
				NLUTimeout:      cfg.NLU.Timeout.Std(),
				UpstreamTimeout: cfg.Upstream.Timeout.Std(),
			})

			registry := skill.NewRegistry(log)
			if err := registry.Register(appointments); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Sweep hard-expired session records in the background.
			go func() {
				ticker := time.NewTicker(purgeInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if n, err := sessions.PurgeExpired(); err != nil {
							log.Warn().Err(err).Msg("session purge failed")
						} else if n > 0 {
							log.Debug().Int64("purged", n).Msg("expired sessions purged")
						}
					}
				}
			}()

			return server.New(cfg.Server, registry, log).Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind address")
	cmd.Flags().StringVar(&dbPath, "db", "", "override session database path")

	return cmd
}
