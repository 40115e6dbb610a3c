// Package config loads service settings from the environment, command-line
// flags and an optional config file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
)

type Config struct {
	Server  ServerConfig
	Scoring ScoringConfig
	Storage StorageConfig
	ASR     ASRConfig
	Kafka   KafkaConfig
}

type ServerConfig struct {
	Port string
}

type ScoringConfig struct {
	HesitationSeconds float64
	AbsoluteThreshold float64
	ZScoreCutoff      float64
	DefaultConfidence string
	MinAudioBytes     int
}

type StorageConfig struct {
	DBPath   string
	AudioDir string

	// ImportPath is an optional xlsx workbook of attempts loaded at startup.
	ImportPath string
}

type ASRConfig struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
	Mock     bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// Load reads the environment, falling back to defaults for unset or
// unparsable values.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: envOrDefault("PORT", "8080"),
		},
		Scoring: ScoringConfig{
			HesitationSeconds: envOrDefaultFloat("HESITATION_SECONDS", 5),
			AbsoluteThreshold: envOrDefaultFloat("ABSOLUTE_THRESHOLD", 70),
			ZScoreCutoff:      envOrDefaultFloat("ZSCORE_CUTOFF", -1),
			DefaultConfidence: envOrDefault("DEFAULT_CONFIDENCE", "medium"),
			MinAudioBytes:     envOrDefaultInt("MIN_AUDIO_BYTES", 1024),
		},
		Storage: StorageConfig{
			DBPath:     envOrDefault("DB_PATH", "fluency.sqlite"),
			AudioDir:   envOrDefault("AUDIO_DIR", "audio"),
			ImportPath: os.Getenv("DATASET_PATH"),
		},
		ASR: ASRConfig{
			URL:      os.Getenv("TRANSCRIBE_URL"),
			APIKey:   os.Getenv("TRANSCRIBE_API_KEY"),
			Model:    envOrDefault("TRANSCRIBE_MODEL", "whisper-1"),
			Language: envOrDefault("TRANSCRIBE_LANGUAGE", "en"),
			Timeout:  envOrDefaultDuration("TRANSCRIBE_TIMEOUT", 25*time.Second),
			Mock:     envOrDefaultBool("USE_MOCK_TRANSCRIBE", false),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOrDefault("KAFKA_TOPIC", "reading-attempts"),
			Enabled: envOrDefaultBool("KAFKA_ENABLED", false),
		},
	}
}

// Parse starts from Load and applies flags, FLUENCY_-prefixed environment
// variables and an optional -config file, in ff's precedence order.
func Parse(args []string) (*Config, error) {
	cfg := Load()
	fs := flag.NewFlagSet("fluency-api", flag.ContinueOnError)
	var brokers string
	_ = fs.String("config", "", "config file (optional)")
	fs.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "http listen port")
	fs.Float64Var(&cfg.Scoring.HesitationSeconds, "hesitation-seconds", cfg.Scoring.HesitationSeconds, "delay before first speech that counts as hesitation")
	fs.Float64Var(&cfg.Scoring.AbsoluteThreshold, "absolute-threshold", cfg.Scoring.AbsoluteThreshold, "minimum accuracy percentage per domain")
	fs.Float64Var(&cfg.Scoring.ZScoreCutoff, "zscore-cutoff", cfg.Scoring.ZScoreCutoff, "lowest z-score against the cohort that still passes")
	fs.StringVar(&cfg.Scoring.DefaultConfidence, "default-confidence", cfg.Scoring.DefaultConfidence, "confidence label when the ASR gives none")
	fs.IntVar(&cfg.Scoring.MinAudioBytes, "min-audio-bytes", cfg.Scoring.MinAudioBytes, "recordings shorter than this are rejected")
	fs.StringVar(&cfg.Storage.DBPath, "db", cfg.Storage.DBPath, "sqlite database path")
	fs.StringVar(&cfg.Storage.AudioDir, "audio-dir", cfg.Storage.AudioDir, "directory for uploaded recordings")
	fs.StringVar(&cfg.Storage.ImportPath, "import", cfg.Storage.ImportPath, "xlsx workbook of attempts to import at startup")
	fs.StringVar(&cfg.ASR.URL, "transcribe-url", cfg.ASR.URL, "base url of the transcription api")
	fs.StringVar(&cfg.ASR.APIKey, "transcribe-api-key", cfg.ASR.APIKey, "transcription api key")
	fs.StringVar(&cfg.ASR.Model, "transcribe-model", cfg.ASR.Model, "transcription model")
	fs.StringVar(&cfg.ASR.Language, "transcribe-language", cfg.ASR.Language, "transcription language")
	fs.DurationVar(&cfg.ASR.Timeout, "transcribe-timeout", cfg.ASR.Timeout, "per-request transcription timeout")
	fs.BoolVar(&cfg.ASR.Mock, "mock-transcribe", cfg.ASR.Mock, "return a canned transcription")
	fs.StringVar(&brokers, "kafka-brokers", strings.Join(cfg.Kafka.Brokers, ","), "comma separated kafka brokers")
	fs.StringVar(&cfg.Kafka.Topic, "kafka-topic", cfg.Kafka.Topic, "topic for scored attempts")
	fs.BoolVar(&cfg.Kafka.Enabled, "kafka-enabled", cfg.Kafka.Enabled, "publish scored attempts to kafka")

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("FLUENCY"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return nil, err
	}
	cfg.Kafka.Brokers = splitList(brokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the scoring pipeline cannot use.
func (c *Config) Validate() error {
	if c.Scoring.HesitationSeconds <= 0 {
		return fmt.Errorf("hesitation seconds must be positive, got %v", c.Scoring.HesitationSeconds)
	}
	if c.Scoring.MinAudioBytes < 0 {
		return fmt.Errorf("min audio bytes must not be negative, got %d", c.Scoring.MinAudioBytes)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
