package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/app"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/db"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/migrate"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/notify"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/server"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Apply(cmd.Context(), conn)
			if err != nil {
				return err
			}
			current, latest, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"applied": applied, "version": current, "latest": latest})
			}
			for _, name := range applied {
				fmt.Println("applied", name)
			}
			fmt.Printf("schema version %d of %d\n", current, latest)
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if addr != "" {
				settings.Addr = addr
			}
			if basePath != "" {
				settings.BasePath = basePath
			}
			if err := settings.RequireServe(); err != nil {
				return err
			}
			logger := app.NewLogger(settings)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.Open(ctx, viper.GetString("workspace"), settings, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Engine.CheckMatrices(ctx); err != nil {
				return fmt.Errorf("permission matrices: %w", err)
			}
			if rt.Minio != nil {
				if err := rt.Minio.EnsureBucket(ctx); err != nil {
					return err
				}
			}

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: settings.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: settings.JWTSecret,
					DevAuth:   settings.DevAuth,
				},
				Logger:          logger,
				Ready:           rt.Ready,
				RateLimit:       settings.RateLimit,
				RateLimitWindow: settings.RateLimitWindow,
				Production:      settings.IsProduction(),
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(ctx, rt.Engine.Repo, rt.Config.Webhooks, logger)

			srv := &http.Server{
				Addr:              settings.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("shutdown", slog.Any("error", err))
				}
			}()
			logger.Info("serving API",
				slog.String("addr", settings.Addr),
				slog.String("base_path", settings.BasePath),
				slog.Bool("queue", settings.QueueEnabled()),
				slog.Bool("dev_auth", settings.DevAuth),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default FSH_ADDR)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default FSH_BASE_PATH)")
	return cmd
}

func workerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Send queued notification emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if !settings.QueueEnabled() {
				return errors.New("FSH_REDIS_ADDR is required for the worker")
			}
			logger := app.NewLogger(settings)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w := notify.NewWorker(notify.WorkerConfig{
				RedisOpts:   app.RedisOpt(settings),
				Logger:      logger,
				Mailer:      notify.LogMailer{Logger: logger},
				From:        settings.MailFrom,
				Concurrency: concurrency,
			})
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "parallel deliveries")
	return cmd
}
