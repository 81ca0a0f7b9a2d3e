package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/biosig/biosigner/cardano"
	"github.com/biosig/biosigner/config"
	"github.com/biosig/biosigner/internal/logging"
	"github.com/biosig/biosigner/internal/tasks"
	"github.com/biosig/biosigner/internal/types"
)

var ledger *cardano.Client

func main() {
	cfg, err := config.ReadConfig("config")
	if err != nil {
		log.Fatalf("fail to read config, err: %v", err)
	}
	redisAddr := cfg.Redis.Host + ":" + cfg.Redis.Port

	ledger = cardano.NewClient(cfg.Ledger.Endpoint, cfg.Ledger.MetadataLabel)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Username: cfg.Redis.User,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)

	logging.Logger.WithFields(logrus.Fields{
		"redis": redisAddr,
	}).Info("Starting worker")

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeMetadataSubmit, HandleMetadataSubmit)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}

// HandleMetadataSubmit posts an enrollment envelope to the ledger endpoint.
// Transient submission failures are retried by asynq; malformed payloads are
// not.
func HandleMetadataSubmit(ctx context.Context, t *asynq.Task) error {
	var p types.MetadataSubmission
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	logging.Logger.WithFields(logrus.Fields{
		"submission_id": p.SubmissionID,
		"did":           p.Did,
		"network":       p.Network,
	}).Info("Submitting enrollment metadata")

	txHash, err := ledger.SubmitMetadataWithRetry(ctx, p.Metadata, 3)
	if err != nil {
		return fmt.Errorf("fail to submit metadata for %s: %w", p.Did, err)
	}
	logging.Logger.WithFields(logrus.Fields{
		"did":     p.Did,
		"tx_hash": txHash,
	}).Info("Enrollment metadata submitted")
	return nil
}
