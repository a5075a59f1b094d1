package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"compliance-copilot/internal/auditlog"
	"compliance-copilot/internal/compliance"
	"compliance-copilot/internal/config"
	"compliance-copilot/internal/llm"
	"compliance-copilot/internal/orchestrator"
	"compliance-copilot/internal/scheduler"
	"compliance-copilot/internal/server"
	"compliance-copilot/internal/session"
	"compliance-copilot/internal/toolbox"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	db, err := compliance.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	queries := compliance.NewService(db)

	durable, err := session.NewSQLite(db)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}
	sessions := session.NewLayered(durable)
	defer sessions.Close()

	var recorder auditlog.Recorder
	if cfg.AuditLogFilePath != "" {
		fr, err := auditlog.NewFileRecorder(cfg.AuditLogFilePath)
		if err != nil {
			log.Printf("failed to init audit log: %v", err)
		} else {
			recorder = fr
		}
	}

	llmClient := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel,
		cfg.OpenRouterReferrer, cfg.OpenRouterTitle)

	dispatcher := toolbox.NewDispatcher(queries)
	orch := orchestrator.New(llmClient, sessions, dispatcher, readSystemPrompt(cfg.SystemPromptPath), recorder)

	if cfg.SnapshotCronEnabled {
		sched := scheduler.New()
		sched.SetSnapshotFunction(func(ctx context.Context) error {
			return queries.RecordSnapshots(ctx, time.Now())
		})
		if err := sched.Start(); err != nil {
			log.Printf("failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	h := server.NewHandler(orch, recorder)
	e := h.Router()
	log.Printf("🚀 compliance assistant listening on %s", cfg.ListenAddr)
	if err := e.Start(cfg.ListenAddr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func readSystemPrompt(path string) string {
	if path == "" {
		return defaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return defaultSystemPrompt
	}
	return string(data)
}
