// Command airbase-server runs the trusted data endpoint and offers a small
// client for it.
//
//	airbase-server serve --config airbase.yaml
//	airbase-server query flights --select 'id, aircraft:aircraft(registration)' --eq status=scheduled
//	airbase-server insert aircraft --data '{"registration": "N101AB"}' --returning id
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

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	_ "modernc.org/sqlite"

	"github.com/coregx/airbase/internal/cache"
	"github.com/coregx/airbase/internal/config"
	"github.com/coregx/airbase/internal/core"
	"github.com/coregx/airbase/internal/logger"
	"github.com/coregx/airbase/internal/security"
	"github.com/coregx/airbase/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.Command{
		Name:  "airbase-server",
		Usage: "fluent data endpoint over a SQL database",
		Commands: []*cli.Command{
			serveCommand(),
			queryCommand(),
			insertCommand(),
			updateCommand(),
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the data endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "airbase.yaml",
				Usage:   "configuration file",
				Sources: cli.EnvVars("AIRBASE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "listen address, overrides the file",
				Sources: cli.EnvVars("AIRBASE_LISTEN"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			if listen := cmd.String("listen"); listen != "" {
				cfg.Listen = listen
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	level, _ := cfg.Level()
	log := logger.NewSlogAdapter(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := append(cfg.ExecutorOptions(), core.WithLogger(log))
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rc := cache.NewRedisResultCache(rdb, cache.WithPrefix(cfg.Redis.Prefix))
		opts = append(opts, core.WithResultCache(rc, cfg.Redis.TTL))
	}

	exec, err := core.OpenLocal(cfg.Database.Driver, cfg.Database.DSN, opts...)
	if err != nil {
		return err
	}
	defer exec.Close()

	if err := exec.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	handler := server.New(exec,
		server.WithLogger(log),
		server.WithValidator(cfg.Validator()),
		server.WithAuditor(security.NewAuditor(log, cfg.AuditLevel())),
		server.WithMaxBodyBytes(cfg.Security.MaxBodyBytes),
	)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Listen, "driver", cfg.Database.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
