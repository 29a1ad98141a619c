package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  string        `env:"CORS_ORIGINS"`
	MetricsToken string        `env:"METRICS_TOKEN"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`

	// /api/aai/upload replaces the read and write deadlines above with
	// UploadTimeout.
	UploadTimeout  time.Duration `env:"HTTP_UPLOAD_TIMEOUT" envDefault:"30m"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"524288000"`

	// Provider secrets are optional at startup; handlers answer 500 when the
	// one they need is missing.
	AssemblyAIKey         string        `env:"ASSEMBLYAI_API_KEY"`
	AssemblyAIBaseURL     string        `env:"ASSEMBLYAI_BASE_URL" envDefault:"https://api.assemblyai.com"`
	AssemblyAISpeechModel string        `env:"ASSEMBLYAI_SPEECH_MODEL" envDefault:"universal"`
	AssemblyAITimeout     time.Duration `env:"ASSEMBLYAI_TIMEOUT" envDefault:"5m"`
	PollMaxAttempts       int           `env:"POLL_MAX_ATTEMPTS" envDefault:"60"`

	WompiPrivateKey      string `env:"WOMPI_PRIVATE_KEY"`
	WompiIntegritySecret string `env:"WOMPI_INTEGRITY_SECRET"`
	WompiAPIURL          string `env:"WOMPI_API_URL" envDefault:"https://sandbox.wompi.co/v1"`

	ClerkSecretKey     string `env:"CLERK_SECRET_KEY"`
	ClerkWebhookSecret string `env:"CLERK_WEBHOOK_SECRET"`

	PackagesFile string `env:"PACKAGES_FILE"`
	RedisURL     string `env:"REDIS_URL"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"scribe-engine"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"scribe"`

	AudioDir     string `env:"AUDIO_DIR" envDefault:"./audio"`
	AudioArchive bool   `env:"AUDIO_ARCHIVE" envDefault:"true"`

	S3 S3Config
}

// S3Config configures the optional S3-compatible audio archive.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`
}

// Enabled reports whether an S3 bucket has been configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// CORSOriginList splits CORS_ORIGINS on commas. Empty means allow all.
func (c *Config) CORSOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile      string
	HTTPAddr     string
	LogLevel     string
	DatabaseURL  string
	PackagesFile string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.PackagesFile != "" {
		cfg.PackagesFile = overrides.PackagesFile
	}

	return cfg, nil
}
