package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/sessionfetch/internal/config"
	"github.com/MrEthical07/sessionfetch/membership"
	"github.com/MrEthical07/sessionfetch/server"
	"github.com/MrEthical07/sessionfetch/token"
)

var serveDemoUsers []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the token, repair and demo API server",
	Long: `Serve runs the session server:

  POST /auth/v1/token?grant_type=refresh_token
  POST /api/auth/repair-session
  POST /admin/v1/sessions        (requires server.service_key)
  GET  /api/me                   (bearer protected)
  GET  /healthz
  GET  /metrics

Sessions live in Redis (redis.addr) or, when no address is configured, in an
embedded in-memory Redis. Workspace memberships come from Postgres
(database.dsn) or from generated demo data.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringSliceVar(&serveDemoUsers, "demo-user", nil, "user ids that get database.demo_workspaces generated memberships")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	members, closeDB, err := openMemberships(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	issuerCfg, err := cfg.IssuerConfig()
	if err != nil {
		return err
	}
	issuer, err := token.NewIssuer(issuerCfg)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	svc, err := server.NewService(cfg.ServiceConfig(), rdb, issuer, members,
		server.WithLogger(logger),
		server.WithAuditSink(cfg.AuditSink(logger)),
	)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewHandler(svc, nil),
		ReadHeaderTimeout: 10 * time.Second,
		// Large enough for oversized tokens to reach the repair route.
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sessionfetch: listening", "addr", cfg.Server.Addr, "backend_url", cfg.Server.BackendURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("sessionfetch: shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openRedis(cfg *config.AppConfig, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.Redis.Addr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = mr.Addr()
		logger.Warn("sessionfetch: using embedded in-memory redis; sessions are lost on exit")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cleanup := func() {
		_ = rdb.Close()
		if mr != nil {
			mr.Close()
		}
	}
	return rdb, cleanup, nil
}

func openMemberships(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (membership.Source, func(), error) {
	db, err := membership.Connect(ctx, cfg.DBConfig())
	if err != nil {
		return nil, nil, err
	}
	if db != nil {
		repo := membership.NewRepo(db)
		if cfg.Database.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		if err := seedDemo(ctx, repo, cfg.Database.DemoWorkspaces); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, closeDB(db), nil
	}

	static := membership.NewStatic()
	for _, user := range serveDemoUsers {
		if err := static.Generate(user, cfg.Database.DemoWorkspaces); err != nil {
			return nil, nil, err
		}
	}
	logger.Info("sessionfetch: using in-memory memberships", "demo_users", len(serveDemoUsers), "workspaces", cfg.Database.DemoWorkspaces)
	return static, func() {}, nil
}

func seedDemo(ctx context.Context, repo *membership.Repo, n int) error {
	for _, user := range serveDemoUsers {
		for i := 0; i < n; i++ {
			m := membership.Membership{WorkspaceID: fmt.Sprintf("ws-%04d", i), Role: membership.RoleViewer}
			if err := repo.Upsert(ctx, user, m); err != nil {
				return fmt.Errorf("seed memberships for %s: %w", user, err)
			}
		}
	}
	return nil
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}
