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

	"merchant-ledger/config"
	"merchant-ledger/internal/service"
	"merchant-ledger/pkg/logger"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "merchant-ledger",
		Short:         "Merchant transaction journal and wallet ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default ./config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), cfgPath)
			},
		},
		newIssueTokenCmd(&cfgPath),
		newResetIdentifiersCmd(&cfgPath),
	)
	return root
}

func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Starting merchant ledger")

	if cfg.Webhook.Secret == "" {
		log.Warn().Msg("webhook.secret is empty, webhook tokens are trivially forgeable")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.pool.RunDailyReset(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: a.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := a.notifier.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Status notifications aborted at shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

func newIssueTokenCmd(cfgPath *string) *cobra.Command {
	var slug string

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a webhook token for a bank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Webhook.Secret == "" {
				return errors.New("webhook.secret must be set to issue tokens")
			}

			tokens := service.NewJWTTokenService(cfg.Webhook.Secret, cfg.Webhook.Expiry, cfg.Webhook.Issuer)
			token, expiresAt, err := tokens.Generate(slug)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_at: %s\n", token, expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "bank slug the token is bound to")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func newResetIdentifiersCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-identifiers",
		Short: "Clear today's mirrored identifier usage counters in Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.Redis.Enabled {
				return errors.New("redis is disabled, identifier usage is process-local")
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

			rdb, err := newRedis(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rdb.client.Close()

			pool, err := newRotationPool(cfg, rdb.usage, log)
			if err != nil {
				return err
			}
			if err := pool.ResetDaily(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "identifier usage counters reset")
			return nil
		},
	}
}
