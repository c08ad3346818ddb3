package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/api"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
	"github.com/ngmaloney/weather-terminal/internal/scheduler"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		session := refresh.NewSession(env.orch)
		defer session.Wait()

		if _, restored, err := session.Restore(ctx); err != nil {
			zap.L().Warn("restore last viewed", zap.Error(err))
		} else if restored {
			zap.L().Info("restored last viewed", zap.String("place", session.State().Place.String()))
		}

		auto := scheduler.New(session, cfg.Refresh.AutoInterval, cfg.Refresh.AutoEnabled)
		if err := auto.Start(); err != nil {
			return err
		}
		defer auto.Stop()

		app := api.NewApp(api.NewServer(session, env.favs, auto))
		if env.notice != "" {
			zap.L().Warn(env.notice)
		}

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("server starting", zap.String("addr", addr))
			errCh <- app.Listen(addr)
		}()

		select {
		case err := <-errCh:
			return eris.Wrap(err, "serve: listen")
		case <-ctx.Done():
		}

		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return eris.Wrap(err, "serve: shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
