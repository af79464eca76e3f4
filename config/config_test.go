package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  stage_changed_topic_name: "tracking.stage_changed"
redis:
  host: "localhost"
  port: 6379
zoho:
  accounts_url: "https://accounts.zoho.com"
  api_url: "https://www.zohoapis.com"
  client_id: "cid"
  client_secret: "cs"
  refresh_token: "rt"
  mode: "http"
ordertrack:
  http_addr: ":8080"
  webhook_token: "s3cret"
  kafka_consumer_group: "track-worker"
  public_view_ttl_seconds: 600
  worker_max_attempts: 8
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "tracking.stage_changed", cfg.Kafka.StageChangedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "https://accounts.zoho.com", cfg.Zoho.AccountsURL)
	require.Equal(t, "http", cfg.Zoho.Mode)
	require.Equal(t, ":8080", cfg.OrderTrack.HTTPAddr)
	require.Equal(t, "s3cret", cfg.OrderTrack.WebhookToken)
	require.Equal(t, 8, cfg.OrderTrack.WorkerMaxAttempts)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
