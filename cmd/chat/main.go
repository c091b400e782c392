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

	"github.com/spf13/cobra"

	"workhub/server/chat/app"
	"workhub/server/chat/repository"
	"workhub/server/common/infra/db"
	commonlog "workhub/server/common/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		commonlog.Errorf("event=command status=failed error=%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workhub",
		Short:         "Team chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server, err := app.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize server: %w", err)
			}
			server.Start(ctx)

			errCh := make(chan error, 1)
			go func() {
				commonlog.Infof("event=server_start status=ok port=%s env=%s", cfg.Port, cfg.Env)
				if err := server.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return fmt.Errorf("run http server: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				commonlog.Warnf("event=server_shutdown status=failed error=%v", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := db.NewPool(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			if err := repository.Migrate(ctx, pool); err != nil {
				return err
			}
			commonlog.Infof("event=migrate status=ok")
			return nil
		},
	}
}
