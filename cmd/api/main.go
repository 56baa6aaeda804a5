package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quhan/chatdeck/internal/config"
	"github.com/quhan/chatdeck/internal/handler"
	"github.com/quhan/chatdeck/internal/input"
	"github.com/quhan/chatdeck/internal/model/persona"
	"github.com/quhan/chatdeck/internal/service/ai"
	"github.com/quhan/chatdeck/internal/service/chat"
	"github.com/quhan/chatdeck/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	chatService := chat.NewService()
	stagedInput := input.NewStore()

	// The AI provider is optional: without credentials the gateway still
	// serves conversations, staging, and preferences.
	var provider session.Provider
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, personaStore, chatService, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without streaming - check the Ark model environment variables")
		} else {
			provider = aiService
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, skipping AI initialization")
	}

	coordinator := session.NewCoordinator(provider, stagedInput, chatService, personaStore)

	router := handler.NewRouter(personaStore, chatService, stagedInput, coordinator, cfg.Cache.Dir, provider != nil)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chatdeck gateway listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
