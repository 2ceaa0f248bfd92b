package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`
	AuthMode       string   `mapstructure:"AUTH_MODE"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	DataDir              string `mapstructure:"DATA_DIR"`
	MetricDictionaryPath string `mapstructure:"METRIC_DICTIONARY_PATH"`

	GenAIAPIKey        string        `mapstructure:"GENAI_API_KEY"`
	GenAIModel         string        `mapstructure:"GENAI_MODEL"`
	AnalysisTimeout    time.Duration `mapstructure:"ANALYSIS_TIMEOUT"`
	AnalysisRetries    int           `mapstructure:"ANALYSIS_RETRIES"`
	AnalysisSampleRows int           `mapstructure:"ANALYSIS_SAMPLE_ROWS"`

	UploadLimit    string        `mapstructure:"UPLOAD_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"AUTH_MODE", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS",
	"STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DATA_DIR", "METRIC_DICTIONARY_PATH",
	"GENAI_API_KEY", "GENAI_MODEL", "ANALYSIS_TIMEOUT", "ANALYSIS_RETRIES", "ANALYSIS_SAMPLE_ROWS",
	"UPLOAD_LIMIT", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV when empty
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("SQLITE_PATH", "data/oncotracker.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("GENAI_MODEL", "gemini-2.5-flash")
	v.SetDefault("ANALYSIS_TIMEOUT", "60s")
	v.SetDefault("ANALYSIS_RETRIES", 1)
	v.SetDefault("ANALYSIS_SAMPLE_ROWS", 3)
	v.SetDefault("UPLOAD_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", "120s")

	// Bind explicitly so Unmarshal sees env-only keys.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" in a
// development environment and "jwt" everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// OracleEnabled reports whether uploads without a mapping may be sent to the
// column analysis model.
func (c *Config) OracleEnabled() bool {
	return c.GenAIAPIKey != ""
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is \"postgres\"")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is \"sqlite\"")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be \"postgres\" or \"sqlite\", got %q", c.StoreDriver)
	}

	mode := c.ResolvedAuthMode()
	switch mode {
	case "development":
	case "jwt":
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY must be set when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive, got %s", c.AnalysisTimeout)
	}
	if c.AnalysisRetries < 0 {
		return fmt.Errorf("ANALYSIS_RETRIES must not be negative, got %d", c.AnalysisRetries)
	}
	if c.AnalysisSampleRows < 1 {
		return fmt.Errorf("ANALYSIS_SAMPLE_ROWS must be at least 1, got %d", c.AnalysisSampleRows)
	}
	return nil
}
