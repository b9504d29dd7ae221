package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MBTA    MBTAConfig    `yaml:"mbta" validate:"required"`
	Display DisplayConfig `yaml:"display" validate:"required"`
	Logging LoggingConfig `yaml:"logging" validate:"required"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// MBTAConfig selects the route, stops, and direction the collector watches.
type MBTAConfig struct {
	APIKey              string `yaml:"-"`
	RouteID             string `yaml:"route_id" validate:"required"`
	BoardingStopID      string `yaml:"boarding_stop_id" validate:"required"`
	TerminalStopID      string `yaml:"terminal_stop_id" validate:"required"`
	DirectionID         int    `yaml:"direction_id" validate:"gte=0,lte=1"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" validate:"gt=0"`
}

type DisplayConfig struct {
	Width          int `yaml:"width" validate:"gt=0"`
	Height         int `yaml:"height" validate:"gt=0"`
	Brightness     int `yaml:"brightness" validate:"gte=0,lte=100"`
	ScrollSpeedFPS int `yaml:"scroll_speed_fps" validate:"gt=0"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" validate:"required"`
	LogDir   string `yaml:"log_dir" validate:"required"`
	FilePath string `yaml:"file_path"`
}

// AlertsConfig is optional; an empty webhook URL disables alerting.
type AlertsConfig struct {
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
}

// Load reads the YAML config file, pulls the API key from the environment
// (.env is loaded if present), and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.MBTA.APIKey = os.Getenv("MBTA_API_KEY")
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil && interval > 0 {
			cfg.MBTA.PollIntervalSeconds = interval
		}
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = "route109.log"
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// PollInterval returns the poll interval as a duration.
func (c *MBTAConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
