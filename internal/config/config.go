package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Client side.
	BaseURL        string        `envconfig:"GENERATOR_URL" default:"http://localhost:3000/api/recipe-generator"`
	UploadURL      string        `envconfig:"UPLOAD_URL" default:"http://localhost:3000/api/upload"`
	CrudURL        string        `envconfig:"CRUD_URL" default:"http://localhost:3000/api/v1/rest"`
	UploadTimeout  time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"60s"`
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"15s"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"120s"`

	DBPath   string `envconfig:"DB_PATH" default:"fridgechef.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:""`

	// Development backend.
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":3000"`
	VisionBackend   string        `envconfig:"VISION_BACKEND" default:"ollama"`
	OllamaHost      string        `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	OllamaModel     string        `envconfig:"OLLAMA_MODEL" default:"llava"`
	ClaudeAPIKey    string        `envconfig:"CLAUDE_API_KEY" default:""`
	ClaudeModel     string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-5"`
	PhotoPath       string        `envconfig:"PHOTO_LOCAL_PATH" default:"data/photos"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"5m"`
	EventsBackend   string        `envconfig:"EVENTS_BACKEND" default:"memory"`
	EventsTTL       time.Duration `envconfig:"EVENTS_TTL" default:"10m"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
}

// Load reads the configuration from the environment, applying defaults for
// unset variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &cfg, nil
}
