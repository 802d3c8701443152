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

	"github.com/sells-group/rectify-cli/internal/monitoring"
	"github.com/sells-group/rectify-cli/internal/rectify"
	"github.com/sells-group/rectify-cli/internal/server"
	"github.com/sells-group/rectify-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rectification API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		engine, err := initEngine()
		if err != nil {
			return err
		}

		// Run history is optional unless runs are saved.
		var st store.Store
		st, err = openStore(ctx)
		if err != nil {
			if cfg.Engine.SaveRuns {
				return err
			}
			zap.L().Warn("run store unavailable, /v1/runs disabled", zap.Error(err))
			st = nil
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		if cfg.Monitoring.Enabled && st != nil {
			checker := monitoring.NewChecker(monitoring.NewCollector(st), alerter, cfg.Monitoring)
			go checker.Run(ctx)
		}

		api := server.New(engine, st, server.Options{
			AllowedOrigins:       cfg.Server.AllowedOrigins,
			RequestTimeout:       time.Duration(cfg.Server.RequestTimeout) * time.Second,
			SaveRuns:             cfg.Engine.SaveRuns,
			DefaultProfile:       rectify.Profile(cfg.Rectify.Profile),
			HighPrecision:        highPrecision(),
			MetricsLookbackHours: cfg.Monitoring.LookbackWindowHours,
			Alerter:              alerter,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("profile", cfg.Rectify.Profile),
			zap.Bool("save_runs", cfg.Engine.SaveRuns),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
