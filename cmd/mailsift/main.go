package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mailsift/mailsift/internal/api"
	"github.com/mailsift/mailsift/internal/classify"
	"github.com/mailsift/mailsift/internal/metrics"
	"github.com/mailsift/mailsift/internal/model"
	"github.com/mailsift/mailsift/internal/store"
	"github.com/mailsift/mailsift/internal/sync"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/mailsift/config.yaml)")
	debug := flag.Bool("debug", false, "enable debug logging")
	setPassword := flag.String("set-password", "", "store the IMAP password for the given account id in the system keyring (read from stdin) and exit")
	deletePassword := flag.String("delete-password", "", "remove the stored IMAP password for the given account id and exit")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *setPassword != "" || *deletePassword != "" {
		if err := manageCredentials(*setPassword, *deletePassword, os.Stdin); err != nil {
			logger.Error("managing credentials", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Accounts) == 0 {
		logger.Warn("no accounts configured, serving queries only")
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)

	supervisor := sync.NewSupervisor(
		cfg.Sync,
		st,
		classify.NewKeywordClassifier(),
		syncMetrics,
		logger,
	)
	supervisor.Start(ctx, cfg.Accounts)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(st, registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		stop()
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	supervisor.Wait()
	logger.Info("all workers stopped")
	return nil
}
