package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"curator/config"
	"curator/handlers"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "curator",
		Short:         "Featured content curation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = handlers.BackendVersion()

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default ./config.toml if present)")

	rootCmd.AddCommand(runServeCommand(&configPath))
	rootCmd.AddCommand(runRefreshCommand(&configPath))
	rootCmd.AddCommand(runVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSettings(path string) (*config.Settings, error) {
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := settings.ApplyLogConfig(handlers.BackendVersion()); err != nil {
		return nil, err
	}
	return settings, nil
}

func runServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and refresh scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			app, err := newApplication(settings)
			if err != nil {
				return err
			}
			defer app.close()
			return app.serve(cmd.Context())
		},
	}
}

func (app *application) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := app.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              app.settings.Server.Listen,
		Handler:           app.handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", handlers.BackendVersion()).Msg("[curator] listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		log.Info().Msgf("[curator] got signal %v, shutting down", sig)
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("[curator] server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("[curator] graceful http shutdown failed")
	}
	if err := app.scheduler.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("[curator] scheduler did not stop cleanly")
	}
	return serveErr
}

func runRefreshCommand(configPath *string) *cobra.Command {
	var timeout time.Duration
	command := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			app, err := newApplication(settings)
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := app.scheduler.RunOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: outcome=%s items=%d duration=%s\n",
				result.ID, result.Summary.Outcome, result.Summary.Items, result.Duration.Round(time.Millisecond))
			return err
		},
	}
	command.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "maximum time for the pass")
	return command
}

func runVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), handlers.BackendVersion())
		},
	}
}
