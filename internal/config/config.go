package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is loaded from the environment; per-invocation values (candidate
// identifiers, mode overrides) come from flags in the cmd binaries.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"dev"`
	DBPath  string `envconfig:"BILLWATCH_DB" default:"billwatch.db"`
	BaseURL string `envconfig:"BILLWATCH_BASE_URL" default:"https://malegislature.gov"`
	Session string `envconfig:"BILLWATCH_SESSION" default:"194th"`

	Mode             string  `envconfig:"BILLWATCH_MODE" default:"topical"`
	BatchSize        int     `envconfig:"BILLWATCH_BATCH_SIZE" default:"5"`
	FetchRPS         float64 `envconfig:"BILLWATCH_FETCH_RPS" default:"2"`
	MarkSeenOnAccept bool    `envconfig:"BILLWATCH_MARK_SEEN_ON_ACCEPT" default:"true"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
