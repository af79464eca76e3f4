package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dcmn/ordertrack/config"
	"github.com/dcmn/ordertrack/internal/api/trackhttp"
	"github.com/dcmn/ordertrack/internal/broker/kafka"
	"github.com/dcmn/ordertrack/internal/cache/rediscache"
	"github.com/dcmn/ordertrack/internal/integrations/zoho"
	zohofake "github.com/dcmn/ordertrack/internal/integrations/zoho/fake"
	"github.com/dcmn/ordertrack/internal/integrations/zoho/zohohttp"
	"github.com/dcmn/ordertrack/internal/services/tracking"
	"github.com/dcmn/ordertrack/internal/storage/pgtrack"
)

type trackAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   trackAPIOpts
	api    *trackhttp.API

	closeDB       func()
	closeProducer func() error
}

func mustBootstrapTrackAPI() *trackAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	if cfg.OrderTrack.WebhookToken == "" {
		panic("ordertrack.webhook_token is required")
	}

	httpAddr := cfg.OrderTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.StageChangedTopicName
	if topic == "" {
		topic = "tracking.stage_changed"
	}
	publicTTL := time.Duration(cfg.OrderTrack.PublicViewTTLSeconds) * time.Second
	if publicTTL <= 0 {
		publicTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	crm := newCRMClient(cfg, rc)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	svc := tracking.New(st, crm, producer, rc, topic, publicTTL)
	api := trackhttp.New(svc, cfg.OrderTrack.WebhookToken)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &trackAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: trackAPIOpts{
			httpAddr: httpAddr,
		},
		api:           api,
		closeDB:       st.Close,
		closeProducer: producer.Close,
	}
}

// newCRMClient выбирает реализацию Zoho: настоящий HTTP-клиент с
// OAuth-токенами либо in-memory заглушка для стенда без CRM.
func newCRMClient(cfg *config.Config, rc *rediscache.RedisCache) zoho.Client {
	if cfg.Zoho.Mode == "fake" || cfg.Zoho.RefreshToken == "" {
		return zohofake.New()
	}
	tokenTTL := time.Duration(cfg.Zoho.TokenTTLSeconds) * time.Second
	tokens := zohohttp.NewTokenProvider(
		cfg.Zoho.AccountsURL,
		cfg.Zoho.ClientID,
		cfg.Zoho.ClientSecret,
		cfg.Zoho.RefreshToken,
		rc,
		tokenTTL,
	)
	return zohohttp.New(cfg.Zoho.APIURL, tokens)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgtrack.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgtrack.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *trackAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.closeProducer != nil {
		_ = a.closeProducer()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *trackAPIApp) Run() error {
	return runTrackAPI(a.ctx, a.opts, a.api)
}
