package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classtrack/internal/attendance"
	"classtrack/internal/config"
	"classtrack/internal/metrics"
	"classtrack/internal/queue"
	"classtrack/internal/session"
	"classtrack/internal/store"
)

// Worker consumes session-end messages and finalizes open attendance
// windows. Finalization is idempotent, so re-delivered messages are safe.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:sessions")
	}

	sessions := session.NewSQLStore(db.Client)
	records := attendance.NewSQLStore(db.Client)
	accumulator := attendance.NewAccumulator(records, sessions)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeSessionEnd {
			continue
		}

		id := string(msg.Body)
		sess, err := sessions.GetByID(ctx, id)
		if err != nil {
			log.Printf("fetch session %s failed: %v", id, err)
			continue
		}
		if sess == nil || sess.EndedAt == nil {
			log.Printf("session %s not ended yet, skipping", id)
			continue
		}

		n, err := accumulator.OnSessionEnd(ctx, *sess)
		if err != nil {
			log.Printf("finalize session %s failed: %v", id, err)
			continue
		}
		metrics.RecordsFinalized.Add(float64(n))
		log.Printf("session %s finalized, %d records closed", id, n)
	}

	log.Println("worker stopped")
}
