package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/procdocs/sopgen/internal/scheduler"
	"github.com/procdocs/sopgen/internal/server"
	"github.com/procdocs/sopgen/internal/sessions"
	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/internal/validation"
	"github.com/procdocs/sopgen/pkg/mcp"
)

func runServe(args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", cfg.ListenAddr, "TCP listen address")
	dbPath := fs.String("db-path", cfg.DBPath, "database path")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	cfg.ListenAddr = *listenAddr
	cfg.DBPath = *dbPath
	cfg.LogLevel = *logLevel

	logger := newLogger(cfg.LogLevel)

	st, revisions, sessionMgr, validator, err := buildDeps(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(logger)
	mustAddJob := func(name, expr string, job scheduler.JobFunc) {
		if err := sched.AddJob(name, expr, job); err != nil {
			logger.Error("invalid maintenance schedule",
				slog.String("job", name), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	mustAddJob("session-purge", cfg.SweepCron, scheduler.SessionPurgeJob(st, logger))
	mustAddJob("preview-sweep", cfg.SweepCron, func(context.Context) error {
		sessionMgr.Sweep()
		return nil
	})
	mustAddJob("vacuum", cfg.VacuumCron, scheduler.VacuumJob(st))

	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sched.Stop()

	api := server.NewServer(server.Deps{
		Store:     st,
		Revisions: revisions,
		Sessions:  sessionMgr,
		Validator: validator,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("sopgen server listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("db", cfg.DBPath),
	)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("sopgen server stopped")
}

func runMCP(args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	dbPath := fs.String("db-path", cfg.DBPath, "database path")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	cfg.DBPath = *dbPath
	cfg.LogLevel = *logLevel

	// Stdout carries the MCP transport; the logger already writes to stderr.
	logger := newLogger(cfg.LogLevel)

	st, revisions, _, validator, err := buildDeps(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewSOPServer(mcp.SOPServerDeps{
		Store:     st,
		Revisions: revisions,
		Validator: validator,
		Logger:    logger,
	})

	logger.Info("sopgen mcp server on stdio", slog.String("db", cfg.DBPath))
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildDeps opens and migrates the store and constructs the shared services.
func buildDeps(cfg Config, logger *slog.Logger) (*store.LibSQLStore, *store.RevisionLog, *sessions.Manager, *validation.DocumentValidator, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, nil, nil, nil, fmt.Errorf("migrate store: %w", err)
	}

	validator, err := validation.NewDocumentValidator()
	if err != nil {
		st.Close()
		return nil, nil, nil, nil, fmt.Errorf("compile metadata schema: %w", err)
	}

	ttl := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	sessionMgr := sessions.NewManager(st, ttl, logger)

	return st, store.NewRevisionLog(st), sessionMgr, validator, nil
}
