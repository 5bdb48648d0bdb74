// Command tasksync-engine runs the sync engine as a standalone
// process: it serves the admin HTTP surface and drives the outbox
// pump, inbox router, and maintenance scheduler in the background
// until it receives a termination signal. Grounded on gravity's
// cmd/gravity-api/main.go: a cobra root command with a PreRunE that
// loads configuration and a RunE that builds and runs the server,
// shutting down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tasksync/engine/internal/admin"
	"github.com/tasksync/engine/internal/bootstrap"
	"github.com/tasksync/engine/internal/config"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "tasksync-engine",
		Short: "Two-peer task sync engine",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initFlagOverrides(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("admin-host", "", "Admin HTTP listen host (overrides ADMIN_HOST)")
	cmd.PersistentFlags().String("admin-port", "", "Admin HTTP listen port (overrides ADMIN_PORT)")
	cmd.PersistentFlags().String("environment", "", "Runtime environment (overrides ENVIRONMENT)")
	cmd.PersistentFlags().String("database-dsn", "", "Store DSN (overrides DATABASE_DSN)")
	cmd.PersistentFlags().String("redis-host", "", "Bus Redis host (overrides REDIS_HOST)")
	cmd.PersistentFlags().String("peer-label-local", "", "This node's peer label (overrides PEER_LABEL_LOCAL)")
	cmd.PersistentFlags().String("peer-label-peer", "", "The remote node's peer label (overrides PEER_LABEL_PEER)")

	_ = viper.BindPFlag("admin.host", cmd.PersistentFlags().Lookup("admin-host"))
	_ = viper.BindPFlag("admin.port", cmd.PersistentFlags().Lookup("admin-port"))
	_ = viper.BindPFlag("environment", cmd.PersistentFlags().Lookup("environment"))
	_ = viper.BindPFlag("database.dsn", cmd.PersistentFlags().Lookup("database-dsn"))
	_ = viper.BindPFlag("redis.host", cmd.PersistentFlags().Lookup("redis-host"))
	_ = viper.BindPFlag("sync.peer_label_local", cmd.PersistentFlags().Lookup("peer-label-local"))
	_ = viper.BindPFlag("sync.peer_label_peer", cmd.PersistentFlags().Lookup("peer-label-peer"))
}

// initFlagOverrides reads an optional config file into viper, then
// re-exports any value a flag or config file set into the environment
// variable config.LoadConfig reads, so a single LoadConfig call stays
// the one source of truth for defaults and validation.
func initFlagOverrides(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
	}

	overrides := map[string]string{
		"admin.host":            "ADMIN_HOST",
		"admin.port":            "ADMIN_PORT",
		"environment":           "ENVIRONMENT",
		"database.dsn":          "DATABASE_DSN",
		"redis.host":            "REDIS_HOST",
		"sync.peer_label_local": "PEER_LABEL_LOCAL",
		"sync.peer_label_peer":  "PEER_LABEL_PEER",
	}
	for key, envVar := range overrides {
		if value := viper.GetString(key); value != "" {
			os.Setenv(envVar, value)
		}
	}
	return nil
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	engine, err := bootstrap.New(cfg, log)
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine.Start(signalCtx)

	httpServer := &http.Server{
		Addr:         cfg.GetAdminAddr(),
		Handler:      admin.NewRouter(*engine.Admin),
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
		IdleTimeout:  cfg.Admin.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin surface starting", zap.String("address", cfg.GetAdminAddr()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return engine.Stop()
	case err := <-errCh:
		return err
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
