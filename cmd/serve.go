package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/server"
	"github.com/sells-group/barrio-cli/internal/store"
)

var (
	servePort     int
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve map layers and chart data over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := loadDashboard(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: server.NewRouter(env.Dashboard, server.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				RequestTimeout: time.Duration(cfg.Backend.TimeoutSecs+5) * time.Second,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go maintain(ctx, env, serveInterval)

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// maintain refreshes the dashboard and prunes expired snapshots every
// interval until ctx is done. interval <= 0 disables it.
func maintain(ctx context.Context, env *appEnv, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx, env.Dashboard.Refresh, env.Store)
		}
	}
}

func tick(ctx context.Context, refresh func(context.Context) error, st store.Store) {
	if err := refresh(ctx); err != nil {
		zap.L().Warn("periodic refresh failed", zap.Error(err))
	}
	n, err := st.DeleteExpiredSnapshots(ctx)
	if err != nil {
		zap.L().Warn("prune snapshots failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("pruned expired snapshots", zap.Int("deleted", n))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveInterval, "refresh", 10*time.Minute, "background refresh interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
