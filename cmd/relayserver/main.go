// Package main runs the rendezvous relay: a WebSocket endpoint that pairs
// game hosts with clients and forwards traffic between them.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/config"
	"github.com/cory-johannsen/relay/internal/frontend/handlers"
	"github.com/cory-johannsen/relay/internal/frontend/websocket"
	"github.com/cory-johannsen/relay/internal/observability"
	"github.com/cory-johannsen/relay/internal/relay"
	"github.com/cory-johannsen/relay/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (optional)")
	envFile := flag.String("env", ".env", "path to dotenv file (optional)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	instanceID := uuid.NewString()
	logger, err := observability.NewLogger(cfg.Logging, instanceID)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("reap_interval", cfg.Relay.ReapInterval),
		zap.Duration("stale_room_age", cfg.Relay.StaleRoomAge),
		zap.Duration("probe_interval", cfg.Relay.ProbeInterval),
	)

	rly := relay.New(logger)
	status := handlers.NewStatusHandler(rly, instanceID, logger)
	acceptor := websocket.NewAcceptor(cfg.Server, rly, logger, status)
	reaper := relay.NewReaper(rly, cfg.Relay.ReapInterval, cfg.Relay.StaleRoomAge, logger)
	liveness := relay.NewLivenessProbe(rly, cfg.Relay.ProbeInterval, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})
	lifecycle.Add("reaper", reaper)
	lifecycle.Add("liveness", liveness)

	logger.Info("relay initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
