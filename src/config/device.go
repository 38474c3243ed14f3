package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DeviceConfig configures a check-in device. Variables use the OLYMPIA_ prefix.
type DeviceConfig struct {
	APIBaseURL     string        `envconfig:"API_BASE_URL" default:"http://localhost:9090"`
	Token          string        `envconfig:"TOKEN" required:"true"`
	OperatorID     uint          `envconfig:"OPERATOR_ID" required:"true"`
	EventID        uint          `envconfig:"EVENT_ID"`
	StorePath      string        `envconfig:"STORE_PATH" default:"olympia-offline.db"`
	LogPath        string        `envconfig:"LOG_PATH" default:"logs/device.log"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	SyncInterval   time.Duration `envconfig:"SYNC_INTERVAL" default:"5m"`
	RetryDelay     time.Duration `envconfig:"RETRY_DELAY" default:"30s"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
	Concurrency    int           `envconfig:"SYNC_CONCURRENCY" default:"4"`
	ProbeInterval  time.Duration `envconfig:"PROBE_INTERVAL" default:"15s"`
	// MetricsAddr serves /metrics when set, e.g. ":9102".
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

func LoadDeviceConfig() (*DeviceConfig, error) {
	var cfg DeviceConfig
	if err := envconfig.Process("olympia", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
