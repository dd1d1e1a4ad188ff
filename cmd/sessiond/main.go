package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/sessionkeeper/internal/config"
	"github.com/pscheid92/sessionkeeper/internal/crypto"
	"github.com/pscheid92/sessionkeeper/internal/identity"
	"github.com/pscheid92/sessionkeeper/internal/platform/logging"
	"github.com/pscheid92/sessionkeeper/internal/session"
	"github.com/pscheid92/sessionkeeper/internal/store"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupCrypto(cfg *config.Config) crypto.Service {
	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, persisting session unencrypted")
		return crypto.NoopService{}
	}

	svc, err := crypto.NewAesGcmCryptoService(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	return svc
}

func setupStore(cfg *config.Config, crypter crypto.Service) store.Store {
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to parse REDIS_URL", "error", err)
			os.Exit(1)
		}
		slog.Info("Using Redis session store")
		return store.NewRedisStore(goredis.NewClient(opts), "default", crypter)
	}

	slog.Info("Using file session store", "path", cfg.SessionFile)
	return store.NewFileStore(cfg.SessionFile, crypter)
}

func watchChanges(ctx context.Context, manager *session.Manager) {
	changes, cancel := manager.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			if change.Session.Account != nil {
				slog.Info("Session state changed", "status", change.Status.String(), "email", change.Session.Account.Email)
			} else {
				slog.Info("Session state changed", "status", change.Status.String())
			}
		}
	}
}

func main() {
	cfg := setupConfig()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	crypter := setupCrypto(cfg)
	sessionStore := setupStore(cfg, crypter)
	client := identity.NewClient(cfg.IdentityAPIURL, nil)

	manager := session.NewManager(client, sessionStore,
		session.WithRenewThreshold(cfg.RenewThreshold),
		session.WithCheckInterval(cfg.CheckInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchChanges(ctx, manager)

	manager.Rehydrate(ctx)
	_, status := manager.Current()
	slog.Info("Session keeper started", "status", status.String(), "check_interval", cfg.CheckInterval, "renew_threshold", cfg.RenewThreshold)

	manager.KeepFresh(ctx)

	slog.Info("Shutdown signal received, cleaning up...")
	manager.Wait()
}
