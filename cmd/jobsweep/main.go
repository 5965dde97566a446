package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"modelibr/internal/config"
	"modelibr/internal/database"
	"modelibr/internal/domain/thumbnail"
)

// jobsweep returns render jobs abandoned by crashed workers to the pending
// state. The API server sweeps on its own; this binary exists for cron-style
// recovery when no server is running.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	queue := thumbnail.NewQueue(db, cfg.StuckJobAfter, cfg.QueuePollInterval)
	n, err := queue.RequeueStuck(context.Background())
	if err != nil {
		log.Fatalf("requeue stuck jobs failed: %v", err)
	}
	log.Printf("job sweep completed: requeued=%d", n)
}
