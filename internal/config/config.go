package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// AppConfig carries everything the aggregation server needs at startup.
type AppConfig struct {
	// Port the data protocol listens on. Overridable by the first CLI
	// argument, matching the original deployment scripts.
	Port int `validate:"min=1,max=65535"`

	// CheckpointFile is the JSON snapshot path.
	CheckpointFile string `validate:"required"`

	// CheckpointInterval controls how often state is persisted.
	CheckpointInterval time.Duration `validate:"required"`

	// ProducerExpiry hides observations whose producer has been silent
	// longer than this.
	ProducerExpiry time.Duration `validate:"required"`

	// QueueSize bounds the accept-to-worker hand-off queue.
	QueueSize int `validate:"min=1"`

	// StatusPort serves the operator HTTP API when non-empty.
	StatusPort string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	port, err := getenvInt("PORT", 4567)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	cfg.Port = port

	cfg.CheckpointFile = getenvDefault("CHECKPOINT_FILE", "data.json")

	interval, err := getenvDuration("CHECKPOINT_INTERVAL", "15s")
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKPOINT_INTERVAL: %w", err)
	}
	cfg.CheckpointInterval = interval

	expiry, err := getenvDuration("PRODUCER_EXPIRY", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid PRODUCER_EXPIRY: %w", err)
	}
	cfg.ProducerExpiry = expiry

	queueSize, err := getenvInt("REQUEST_QUEUE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_QUEUE_SIZE: %w", err)
	}
	cfg.QueueSize = queueSize

	cfg.StatusPort = os.Getenv("STATUS_PORT")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func getenvDuration(key, def string) (time.Duration, error) {
	return time.ParseDuration(getenvDefault(key, def))
}
