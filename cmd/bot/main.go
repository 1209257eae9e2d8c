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

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/auth"
	"github.com/Spok95/inventory-bot/internal/bot"
	"github.com/Spok95/inventory-bot/internal/config"
	"github.com/Spok95/inventory-bot/internal/dialog"
	"github.com/Spok95/inventory-bot/internal/infra/db"
	httpx "github.com/Spok95/inventory-bot/internal/infra/http"
	"github.com/Spok95/inventory-bot/internal/infra/logger"
	"github.com/Spok95/inventory-bot/internal/inventory"
	"github.com/Spok95/inventory-bot/internal/session"
)

func main() {
	cfgPath := flag.String("config", "config/example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)
	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		kv     session.KV
		states dialog.Store
	)
	switch cfg.Session.Storage {
	case config.StoragePostgres:
		if err := db.Migrate(cfg.Postgres.DSN, cfg.Postgres.Migrations); err != nil {
			return err
		}
		log.Info("migrations applied")

		pool, err := db.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("db connected")

		kv = session.NewPgKV(pool)
		states = dialog.NewRepo(pool)
	default:
		log.Warn("in-memory session storage: sessions are lost on restart")
		kv = session.NewMemoryKV()
		states = dialog.NewMemoryRepo()
	}

	sealer, err := session.NewSealer(cfg.Session.Secret)
	if err != nil {
		return err
	}
	if sealer == nil {
		log.Warn("session.secret is empty: tokens are stored unencrypted")
	}
	store := session.NewStore(kv, sealer)

	client, err := api.New(api.Options{
		BaseURL:   cfg.API.BaseURL,
		LoginPath: cfg.API.LoginPath,
		Timeout:   cfg.API.Timeout,
	}, store, log)
	if err != nil {
		return err
	}
	authCtl := auth.New(client, store, log)
	board := inventory.NewBoard(client, log)

	tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	tg.Debug = cfg.Telegram.Debug
	log.Info("telegram authorized", "username", tg.Self.UserName, "api", cfg.API.BaseURL)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	b := bot.New(tg, log, states, authCtl, client, board)
	if err := b.Run(ctx, cfg.Telegram.TimeoutSec); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
