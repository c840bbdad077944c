package main

import (
	"MediSlot/database"
	"MediSlot/routes"
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run schema migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and seed roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.InitDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info().Msg("Migrations applied")
			return nil
		},
	}
}

func generateSlotsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "generate-slots",
		Short: "Generate slots for every doctor over the next days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.HorizonDays
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.daemon.GenerateHorizon(cmd.Context(), days)
			if err != nil {
				return err
			}
			log.Info().
				Int("days", days).
				Int("doctors", report.Doctors).
				Int("created", report.Created).
				Int("failures", report.Failures).
				Bool("skipped", report.Skipped).
				Msg("Slot generation complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "number of days to generate, starting today (default HORIZON_DAYS)")
	return cmd
}

func runServer(migrate bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if migrate {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
	}

	handler := routes.SetupRoutes(routes.Dependencies{
		Config:    cfg,
		Auth:      a.auth,
		Booking:   a.booking,
		Lifecycle: a.lifecycle,
		Identity:  a.directory,
		Doctors:   a.directory,
		Tokens:    a.tokens,
		Health:    database.HealthCheck{DB: a.db},
		Gatherer:  a.registry,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        handler,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
		IdleTimeout:    30 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		a.daemon.Start(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	log.Info().Msg("Shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	wg.Wait()
	select {
	case err := <-serveErr:
		return err
	default:
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

func logWarn(err error, msg string) {
	log.Warn().Err(err).Msg(msg)
}
