// Package config loads service configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every collaborator-supplied knob. Nothing here is
// hard-coded in the pipeline itself.
type Config struct {
	// Store
	DBPath      string        `envconfig:"DB_PATH" default:"database/options.db"`
	BusyTimeout time.Duration `envconfig:"BUSY_TIMEOUT" default:"30s"`

	// Ingestion
	IncomingDir    string        `envconfig:"INCOMING_DIR" default:"data"`
	IngestInterval time.Duration `envconfig:"INGEST_INTERVAL" default:"30s"`

	// Lifetime archiver
	ArchiveInterval  time.Duration `envconfig:"ARCHIVE_INTERVAL" default:"60s"`
	ArchiveBatchSize int           `envconfig:"ARCHIVE_BATCH_SIZE" default:"500"`
	MinHistory       int           `envconfig:"MIN_HISTORY" default:"5"`

	// Permutation generator
	ExpandInterval  time.Duration `envconfig:"EXPAND_INTERVAL" default:"60s"`
	ExpandBatchSize int           `envconfig:"EXPAND_BATCH_SIZE" default:"50"`

	// Per-key move retries
	MaxMoveAttempts int           `envconfig:"MAX_MOVE_ATTEMPTS" default:"5"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" default:"100ms"`

	// Supervisor
	HTTPAddr    string        `envconfig:"HTTP_ADDR" default:":8000"`
	StopTimeout time.Duration `envconfig:"STOP_TIMEOUT" default:"10s"`
}

// Load fills Config from OPTION_-prefixed environment variables.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("option", &cfg)
	return cfg, err
}
