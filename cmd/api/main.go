package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"crm-backend/internal/bootstrap"
	"crm-backend/internal/shared/config"
	"crm-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Feed relay events into the websocket hub for the life of the process.
	go func() {
		if err := app.RelaySub.Subscribe(ctx, app.Hub.HandleEnvelope); err != nil && ctx.Err() == nil {
			log.Printf("relay subscription ended: %v", err)
		}
	}()

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
