package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the indexer service.
type Config struct {
	// Database Configuration
	DatabaseURL         string
	DBMaxOpenConns      int
	DBMaxIdleConns      int
	DBConnMaxIdleTime   time.Duration
	DBConnMaxLifetime   time.Duration

	// Chain RPC Configuration
	ChainRPCURL     string
	ChainRPCTimeout time.Duration

	// Programs of interest (§1's "small set of known on-chain programs")
	BubblegumProgramID     string
	TokenProgramID         string
	MplCoreProgramID       string
	TokenMetadataProgramID string

	// Message Bus Configuration
	AccountStreamURL string
	TxStreamURL      string
	AckBufferSize    int
	AckFlushInterval time.Duration

	// Ingestion worker pool
	AccountWorkerCount int
	TxWorkerCount      int

	// Tree Backfiller Configuration
	GapChannelSize       int
	GapWorkerCount       int
	SignaturePageSize    int
	DiscoveryInterval    time.Duration
	TreeAuthorityPrefix  byte

	// Metadata-JSON Worker Configuration
	MetadataWorkerCount   int
	MetadataQueueSize     int
	MetadataFetchTimeout  time.Duration
	MetadataMaxAttempts   int
	MetadataLockDuration  time.Duration

	// Operational
	HealthAddr string
	LogLevel   string
}

// fileOverrides is the optional static settings tree read from
// CONFIG_FILE, mirroring pkg/config/anchor_config.go's YAML layer in
// the teacher: a settings file for what rarely changes between
// deploys, layered underneath env vars so an operator can still
// override any single field without editing the file. Every field is
// a pointer so an absent key in the file leaves the env-var default
// untouched.
type fileOverrides struct {
	DatabaseURL            *string `yaml:"database_url"`
	ChainRPCURL            *string `yaml:"chain_rpc_url"`
	BubblegumProgramID     *string `yaml:"bubblegum_program_id"`
	TokenProgramID         *string `yaml:"token_program_id"`
	MplCoreProgramID       *string `yaml:"mpl_core_program_id"`
	TokenMetadataProgramID *string `yaml:"token_metadata_program_id"`
	AccountStreamURL       *string `yaml:"account_stream_url"`
	TxStreamURL            *string `yaml:"tx_stream_url"`
	AccountWorkerCount     *int    `yaml:"account_worker_count"`
	TxWorkerCount          *int    `yaml:"tx_worker_count"`
	GapWorkerCount         *int    `yaml:"gap_worker_count"`
	MetadataWorkerCount    *int    `yaml:"metadata_worker_count"`
	LogLevel               *string `yaml:"log_level"`
}

// Load reads configuration from environment variables, then, if
// CONFIG_FILE is set, layers its YAML settings onto whichever fields no
// env var already set. Call Validate() afterwards to ensure all
// required configuration is present.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),

		ChainRPCURL:     getEnv("CHAIN_RPC_URL", ""),
		ChainRPCTimeout: getEnvDuration("CHAIN_RPC_TIMEOUT", 10*time.Second),

		BubblegumProgramID:     getEnv("BUBBLEGUM_PROGRAM_ID", ""),
		TokenProgramID:         getEnv("TOKEN_PROGRAM_ID", ""),
		MplCoreProgramID:       getEnv("MPL_CORE_PROGRAM_ID", ""),
		TokenMetadataProgramID: getEnv("TOKEN_METADATA_PROGRAM_ID", ""),

		AccountStreamURL: getEnv("ACCOUNT_STREAM_URL", ""),
		TxStreamURL:      getEnv("TX_STREAM_URL", ""),
		AckBufferSize:    getEnvInt("ACK_BUFFER_SIZE", 500),
		AckFlushInterval: getEnvDuration("ACK_FLUSH_INTERVAL", 100*time.Millisecond),

		AccountWorkerCount: getEnvInt("ACCOUNT_WORKER_COUNT", 8),
		TxWorkerCount:      getEnvInt("TX_WORKER_COUNT", 8),

		GapChannelSize:      getEnvInt("GAP_CHANNEL_SIZE", 1000),
		GapWorkerCount:      getEnvInt("GAP_WORKER_COUNT", 25),
		SignaturePageSize:   getEnvInt("SIGNATURE_PAGE_SIZE", 1000),
		DiscoveryInterval:   getEnvDuration("DISCOVERY_INTERVAL", 5*time.Minute),
		TreeAuthorityPrefix: byte(getEnvInt("TREE_AUTHORITY_PREFIX", 0)),

		MetadataWorkerCount:  getEnvInt("METADATA_WORKER_COUNT", 10),
		MetadataQueueSize:    getEnvInt("METADATA_QUEUE_SIZE", 2000),
		MetadataFetchTimeout: getEnvDuration("METADATA_FETCH_TIMEOUT", 1000*time.Millisecond),
		MetadataMaxAttempts:  getEnvInt("METADATA_MAX_ATTEMPTS", 5),
		MetadataLockDuration: getEnvDuration("METADATA_LOCK_DURATION", 5*time.Second),

		HealthAddr: getEnv("HEALTH_ADDR", ":8086"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFileOverrides(cfg, path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	return cfg, nil
}

// applyFileOverrides reads a YAML settings file and applies each
// present key to cfg, but only where the corresponding env var was not
// itself set — env vars are the more specific, per-deploy override and
// always win over the shared file.
func applyFileOverrides(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var ov fileOverrides
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	setStr := func(env string, dst *string, v *string) {
		if v != nil && os.Getenv(env) == "" {
			*dst = *v
		}
	}
	setInt := func(env string, dst *int, v *int) {
		if v != nil && os.Getenv(env) == "" {
			*dst = *v
		}
	}

	setStr("DATABASE_URL", &cfg.DatabaseURL, ov.DatabaseURL)
	setStr("CHAIN_RPC_URL", &cfg.ChainRPCURL, ov.ChainRPCURL)
	setStr("BUBBLEGUM_PROGRAM_ID", &cfg.BubblegumProgramID, ov.BubblegumProgramID)
	setStr("TOKEN_PROGRAM_ID", &cfg.TokenProgramID, ov.TokenProgramID)
	setStr("MPL_CORE_PROGRAM_ID", &cfg.MplCoreProgramID, ov.MplCoreProgramID)
	setStr("TOKEN_METADATA_PROGRAM_ID", &cfg.TokenMetadataProgramID, ov.TokenMetadataProgramID)
	setStr("ACCOUNT_STREAM_URL", &cfg.AccountStreamURL, ov.AccountStreamURL)
	setStr("TX_STREAM_URL", &cfg.TxStreamURL, ov.TxStreamURL)
	setInt("ACCOUNT_WORKER_COUNT", &cfg.AccountWorkerCount, ov.AccountWorkerCount)
	setInt("TX_WORKER_COUNT", &cfg.TxWorkerCount, ov.TxWorkerCount)
	setInt("GAP_WORKER_COUNT", &cfg.GapWorkerCount, ov.GapWorkerCount)
	setInt("METADATA_WORKER_COUNT", &cfg.MetadataWorkerCount, ov.MetadataWorkerCount)
	setStr("LOG_LEVEL", &cfg.LogLevel, ov.LogLevel)

	return nil
}

// Validate checks that all required fields are present and that the
// concurrency knobs are internally consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.ChainRPCURL == "" {
		errs = append(errs, "CHAIN_RPC_URL is required")
	}
	if c.AccountStreamURL == "" {
		errs = append(errs, "ACCOUNT_STREAM_URL is required")
	}
	if c.TxStreamURL == "" {
		errs = append(errs, "TX_STREAM_URL is required")
	}

	programIDs := map[string]string{
		"BUBBLEGUM_PROGRAM_ID":      c.BubblegumProgramID,
		"TOKEN_PROGRAM_ID":          c.TokenProgramID,
		"MPL_CORE_PROGRAM_ID":       c.MplCoreProgramID,
		"TOKEN_METADATA_PROGRAM_ID": c.TokenMetadataProgramID,
	}
	seen := make(map[string]string, len(programIDs))
	for env, id := range programIDs {
		if id == "" {
			errs = append(errs, env+" is required")
			continue
		}
		if other, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("%s and %s must not share the same program id %q", other, env, id))
			continue
		}
		seen[id] = env
	}

	totalWorkers := c.AccountWorkerCount + c.TxWorkerCount + c.GapWorkerCount + c.MetadataWorkerCount
	minConns := totalWorkers * 5
	if c.DBMaxOpenConns < minConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_OPEN_CONNS (%d) must be at least 5x the sum of worker counts (%d workers, need >= %d)", c.DBMaxOpenConns, totalWorkers, minConns))
	}

	if c.MetadataLockDuration < 5*time.Second {
		errs = append(errs, "METADATA_LOCK_DURATION must be at least 5s so two workers never claim the same task")
	}

	if c.GapWorkerCount <= 0 {
		errs = append(errs, "GAP_WORKER_COUNT must be positive")
	}
	if c.GapChannelSize <= 0 {
		errs = append(errs, "GAP_CHANNEL_SIZE must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
