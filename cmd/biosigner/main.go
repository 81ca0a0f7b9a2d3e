package main

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/biosig/biosigner/api"
	"github.com/biosig/biosigner/cardano"
	"github.com/biosig/biosigner/config"
	"github.com/biosig/biosigner/service"
	"github.com/biosig/biosigner/storage"
	"github.com/biosig/biosigner/storage/postgres"
)

func main() {
	logger := logrus.WithField("service", "biosigner").Logger

	cfg, err := config.ReadConfig("config")
	if err != nil {
		logger.Fatalf("fail to read config, err: %v", err)
	}

	redis, err := storage.NewRedisStorage(cfg)
	if err != nil {
		logger.Fatalf("fail to connect to redis, err: %v", err)
	}
	defer func() {
		if err := redis.Close(); err != nil {
			logger.Errorf("fail to close redis, err: %v", err)
		}
	}()

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Errorf("fail to close asynq client, err: %v", err)
		}
	}()

	sdClient, err := statsd.New("127.0.0.1:8125")
	if err != nil {
		logger.Fatalf("fail to create statsd client, err: %v", err)
	}

	db, err := postgres.NewPostgresBackend(cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("fail to connect to database, err: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorf("fail to close database, err: %v", err)
		}
	}()

	var helperStore storage.HelperStore
	if cfg.BlockStorage.Bucket != "" {
		helperStore, err = storage.NewBlockStorage(cfg)
		if err != nil {
			logger.Fatalf("fail to create block storage, err: %v", err)
		}
	} else {
		helperStore, err = storage.NewLocalStore(cfg.Server.HelpersFilePath)
		if err != nil {
			logger.Fatalf("fail to create local helper store, err: %v", err)
		}
	}

	var ledger *cardano.Client
	if cfg.Ledger.Endpoint != "" {
		ledger = cardano.NewClient(cfg.Ledger.Endpoint, cfg.Ledger.MetadataLabel)
	}

	identity := service.NewIdentity(cfg, helperStore, db, redis, ledger, client)

	server := api.NewServer(cfg, redis, sdClient, db, identity)
	if err := server.StartServer(); err != nil {
		logger.Fatalf("fail to start server, err: %v", err)
	}
}
