package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcmn/ordertrack/config"
	"github.com/dcmn/ordertrack/internal/broker/kafka"
	"github.com/dcmn/ordertrack/internal/cache/rediscache"
	"github.com/dcmn/ordertrack/internal/integrations/zoho"
	zohofake "github.com/dcmn/ordertrack/internal/integrations/zoho/fake"
	"github.com/dcmn/ordertrack/internal/integrations/zoho/zohohttp"
	"github.com/dcmn/ordertrack/internal/services/notifier"
	"github.com/dcmn/ordertrack/internal/services/writeback"
	"github.com/dcmn/ordertrack/internal/storage/pgtrack"
)

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo writeback.Repository, closeFn func(), err error)
	newCRMClient   func(cfg *config.Config) zoho.Client
	newRateLimiter func(cfg *config.Config) writeback.RateLimiter
	newConsumer    func(cfg *config.Config, topic, group string) kafkaConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (writeback.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgtrack.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newCRMClient: func(cfg *config.Config) zoho.Client {
			if cfg.Zoho.Mode == "fake" || cfg.Zoho.RefreshToken == "" {
				return zohofake.New()
			}
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			tokenTTL := time.Duration(cfg.Zoho.TokenTTLSeconds) * time.Second
			tokens := zohohttp.NewTokenProvider(
				cfg.Zoho.AccountsURL,
				cfg.Zoho.ClientID,
				cfg.Zoho.ClientSecret,
				cfg.Zoho.RefreshToken,
				rediscache.New(redisAddr),
				tokenTTL,
			)
			return zohohttp.New(cfg.Zoho.APIURL, tokens)
		},
		newRateLimiter: func(cfg *config.Config) writeback.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newConsumer: func(cfg *config.Config, topic, group string) kafkaConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.StageChangedTopicName
	if topic == "" {
		topic = "tracking.stage_changed"
	}
	group := cfg.OrderTrack.KafkaConsumerGroup
	if group == "" {
		group = "track-worker"
	}

	pollInterval := time.Duration(cfg.OrderTrack.WorkerPollIntervalSeconds) * time.Second
	batchSize := cfg.OrderTrack.WorkerBatchSize
	concurrency := cfg.OrderTrack.WorkerConcurrency
	lease := time.Duration(cfg.OrderTrack.WorkerLeaseSeconds) * time.Second
	maxAttempts := int32(cfg.OrderTrack.WorkerMaxAttempts)
	rlPerMin := int64(cfg.OrderTrack.WorkerRateLimitPerMinute)

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	crm := f.newCRMClient(cfg)
	rl := f.newRateLimiter(cfg)

	w := writeback.New(repo, crm, rl).
		WithSettings(pollInterval, batchSize, concurrency, lease, maxAttempts, rlPerMin).
		WithPlanner(writeback.PlannerConfig{
			Backoff1: time.Duration(cfg.OrderTrack.WorkerBackoff1Seconds) * time.Second,
			Backoff2: time.Duration(cfg.OrderTrack.WorkerBackoff2Seconds) * time.Second,
			Backoff3: time.Duration(cfg.OrderTrack.WorkerBackoff3Seconds) * time.Second,
			Backoff4: time.Duration(cfg.OrderTrack.WorkerBackoff4Seconds) * time.Second,
		})

	consumer := f.newConsumer(cfg, topic, group)
	defer func() { _ = consumer.Close() }()

	n := notifier.New(nil)
	go func() {
		slog.Info("kafka consumer started", "topic", topic, "group", group)
		if err := consumer.Consume(ctx, n.Handle); err != nil && ctx.Err() == nil {
			slog.Error("kafka consumer stopped", "error", err.Error())
		}
	}()

	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.OrderTrack.WorkerHTTPAddr,
			worker:   w,
			cfg:      cfg,
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("worker http server stopped", "error", err.Error())
		}
	}()

	return w.Run(ctx)
}
