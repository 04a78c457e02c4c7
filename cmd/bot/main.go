package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/shubh-37/postpilot/config"
	"github.com/shubh-37/postpilot/internal/conversation"
	"github.com/shubh-37/postpilot/internal/generation"
	"github.com/shubh-37/postpilot/internal/pipeline"
	"github.com/shubh-37/postpilot/internal/service"
	slackpkg "github.com/shubh-37/postpilot/internal/slack"
	"github.com/shubh-37/postpilot/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.Println("🚀 PostPilot Bot Starting...")

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()

	// Open the session/run store
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	log.Printf("✅ Store ready (driver: %s)", cfg.StoreDriver)

	// Generation capability
	gen, err := generation.NewAnthropicClient(cfg.AnthropicKey, cfg.GenTimeout)
	if err != nil {
		log.Fatalf("Failed to create generation client: %v", err)
	}

	// Conversation machine
	machine := conversation.NewMachine(gen, conversation.Config{
		MinQuestions: cfg.MinQuestions,
		MinCoverage:  cfg.MinCoverage,
		MaxTurns:     cfg.MaxTurns,
		MaxRetries:   cfg.GenMaxRetries,
		RetryBackoff: cfg.GenRetryBackoff,
	})

	// Initialize Slack client first: the orchestrator's progress hook posts
	// into the originating thread.
	slackClient := slackpkg.NewClient(cfg.SlackToken)
	progress := slackpkg.NewProgressNotifier(slackClient)

	orch := pipeline.NewOrchestrator(gen, pipeline.Config{
		MaxRetries:   cfg.GenMaxRetries,
		RetryBackoff: cfg.GenRetryBackoff,
		OnStage:      progress.Notify,
	})

	svc := service.New(st, machine, orch)

	approvalHandler := slackpkg.NewApprovalHandler(slackClient, svc)
	messageHandler := slackpkg.NewMessageHandler(slackClient, svc, progress, approvalHandler)
	slackServer := slackpkg.NewServer(slackClient, messageHandler, approvalHandler, cfg.SlackSigningSecret)

	// Start Slack server in a goroutine
	go func() {
		if err := slackServer.Start("3000"); err != nil {
			log.Fatalf("Failed to start Slack server: %v", err)
		}
	}()

	log.Println("✅ System initialized successfully")
	log.Println("🧠 Conversation machine: ready")
	log.Println("🔀 Pipeline: Brainstorm → Hook → Structure → Content Writing")
	log.Println("💬 Slack: Connected and listening")
	log.Println("")
	log.Println("Bot is running. Press Ctrl+C to stop...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gracefully...")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), nil

	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return store.NewRedisStore(client, 0), nil

	default:
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.CreateTables(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	}
}
