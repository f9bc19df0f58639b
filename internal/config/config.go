package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Environment variables with defaults
type Environment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=info"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=60s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBodySize    int64         `env:"MAX_REQUEST_BODY_SIZE,default=12582912"`

	// database settings
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// authority SOAP service
	SefazEnvironment        string `env:"SEFAZ_ENVIRONMENT,default=production"`
	SefazConsultaURL        string `env:"SEFAZ_CONSULTA_URL"`
	SefazInsecureSkipVerify bool   `env:"SEFAZ_INSECURE_SKIP_VERIFY,default=true"`
	SefazCABundlePath       string `env:"SEFAZ_CA_BUNDLE_PATH"`

	// portal
	PortalBaseURL        string `env:"PORTAL_BASE_URL,default=https://cfe.sefaz.ce.gov.br:8443/portalcfews"`
	PortalSearchPageSize int    `env:"PORTAL_SEARCH_PAGE_SIZE,default=100"`
	PortalSearchMaxPages int    `env:"PORTAL_SEARCH_MAX_PAGES,default=50"`

	// download sessions
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT,default=30s"`
	PeriodMaxDays   int           `env:"PERIOD_MAX_DAYS,default=31"`
	KeyRateLimitRPS float64       `env:"KEY_RATE_LIMIT_RPS,default=0"`
	BlobDir         string        `env:"BLOB_DIR,default=./data"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validSefazEnvs = map[string]bool{
	"production": true,
	"staging":    true,
}

// NewServerConfig loads environment variables for nfce-server (DATABASE_URL is required)
func NewServerConfig() (*Environment, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// NewCLIConfig loads environment variables for nfce-cli
func NewCLIConfig() (*Environment, error) {
	return load()
}

// load reads the optional dotenv file named by ENV_FILE (default .env) and then the process
// environment. Variables already set in the process are not overridden by the file.
func load() (*Environment, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	var cfg Environment
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() error {
	path, explicit := os.LookupEnv("ENV_FILE")
	if !explicit || path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read ENV_FILE %s: %w", path, err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// validateConfig checks the env variables that have a restricted range
func validateConfig(cfg *Environment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if !validSefazEnvs[cfg.SefazEnvironment] {
		return fmt.Errorf("SEFAZ_ENVIRONMENT must be production or staging, got %s", cfg.SefazEnvironment)
	}
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if cfg.PortalBaseURL == "" {
		return fmt.Errorf("PORTAL_BASE_URL is required")
	}
	if cfg.PortalSearchPageSize < 1 || cfg.PortalSearchPageSize > 1000 {
		return fmt.Errorf("PORTAL_SEARCH_PAGE_SIZE must be between 1 and 1000, got %d", cfg.PortalSearchPageSize)
	}
	if cfg.PortalSearchMaxPages < 1 {
		return fmt.Errorf("PORTAL_SEARCH_MAX_PAGES must be at least 1")
	}
	if cfg.PeriodMaxDays < 0 {
		return fmt.Errorf("PERIOD_MAX_DAYS must be 0 (no limit) or greater")
	}
	if cfg.KeyRateLimitRPS < 0 {
		return fmt.Errorf("KEY_RATE_LIMIT_RPS must be 0 (no limit) or greater")
	}
	if cfg.MaxRequestBodySize < 1 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be positive")
	}
	if cfg.BlobDir == "" {
		return fmt.Errorf("BLOB_DIR is required")
	}

	return nil
}
