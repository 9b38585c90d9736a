package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-tuneroom/internal/api"
	"github.com/npezzotti/go-tuneroom/internal/config"
	"github.com/npezzotti/go-tuneroom/internal/provider"
	"github.com/npezzotti/go-tuneroom/internal/server"
	"github.com/npezzotti/go-tuneroom/internal/stats"
	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/sirupsen/logrus"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	redisAddr      string
	signingKey     string
	clientId       string
	clientSecret   string
	redirectURL    string
	allowedOrigins stringSliceFlag
)

func main() {
	// Missing .env is fine, flags and real env still apply.
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("TUNEROOM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&redisAddr, "redis-addr", envOr("TUNEROOM_REDIS_ADDR", "localhost:6379"), "redis address")
	flag.StringVar(&signingKey, "signing-key", envOr("TUNEROOM_SIGNING_KEY", ""), "base64 encoded signing key")
	flag.StringVar(&clientId, "client-id", envOr("TUNEROOM_CLIENT_ID", ""), "music provider client id")
	flag.StringVar(&clientSecret, "client-secret", envOr("TUNEROOM_CLIENT_SECRET", ""), "music provider client secret")
	flag.StringVar(&redirectURL, "redirect-url", envOr("TUNEROOM_REDIRECT_URL", "http://localhost:8000/authorize"), "OAuth redirect URL")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.NewConfig(addr, redisAddr, signingKey, clientId, clientSecret, redirectURL, allowedOrigins)
	if err != nil {
		logger.WithError(err).Fatal("config")
	}

	db, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		logger.WithError(err).Fatal("store open")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("store close")
		}
	}()

	statsMux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(statsMux, logger)

	player := provider.NewClient(cfg.ProviderClientId, cfg.ProviderClientSecret, db, logger)

	roomServer := server.NewRoomServer(db, player, server.NewClock(), statsUpdater, logger)

	srv := api.NewServer(logger, roomServer, db, player, cfg, statsMux)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.WithField("signal", sig.String()).Info("received signal")
	case err := <-errCh:
		logger.WithError(err).Error("server")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.WithError(err).Fatal("HTTP server shutdown")
	}

	logger.Info("shutting down room server")
	roomServer.Shutdown()

	logger.Info("shutdown complete")
}
