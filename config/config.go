package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Zoho       ZohoConfig       `yaml:"zoho"`
	OrderTrack OrderTrackConfig `yaml:"ordertrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	StageChangedTopicName string `yaml:"stage_changed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ZohoConfig struct {
	AccountsURL  string `yaml:"accounts_url"`
	APIURL       string `yaml:"api_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`

	TokenTTLSeconds int `yaml:"token_ttl_seconds"`

	// Пустой режим — для локального стенда без реальной CRM.
	Mode string `yaml:"mode"` // "http" | "fake"
}

type OrderTrackConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// Shared secret для CRM-вебхуков (заголовок X-Zoho-Token).
	WebhookToken string `yaml:"webhook_token"`

	KafkaConsumerGroup   string `yaml:"kafka_consumer_group"`
	PublicViewTTLSeconds int    `yaml:"public_view_ttl_seconds"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int    `yaml:"worker_lease_seconds"`
	WorkerMaxAttempts         int    `yaml:"worker_max_attempts"`
	WorkerRateLimitPerMinute  int    `yaml:"worker_rate_limit_per_minute"`

	WorkerBackoff1Seconds int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds int `yaml:"worker_backoff_4_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
