// Package config loads votectl configuration from defaults, a YAML file, an
// optional .env file and the environment, in that order of precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/voting_client/internal/chain"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// DefaultPath is where Load looks when no path is given.
var DefaultPath = filepath.Join("config", "votectl.yaml")

// Journal drivers.
const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"
)

// Config is the full votectl configuration.
type Config struct {
	Chain   ChainConfig          `yaml:"chain"`
	Wallet  WalletConfig         `yaml:"wallet"`
	HTTP    HTTPConfig           `yaml:"http"`
	Journal JournalConfig        `yaml:"journal"`
	Sweeper SweeperConfig        `yaml:"sweeper"`
	Logging logger.LoggingConfig `yaml:"logging"`
}

// ChainConfig configures the RPC node and the voting program.
type ChainConfig struct {
	RPCURL            string        `yaml:"rpc_url" env:"VOTE_RPC_URL"`
	ProgramID         string        `yaml:"program_id" env:"VOTE_PROGRAM_ID"`
	Cluster           string        `yaml:"cluster" env:"VOTE_CLUSTER"`
	Commitment        string        `yaml:"commitment" env:"VOTE_COMMITMENT"`
	Timeout           time.Duration `yaml:"timeout" env:"VOTE_RPC_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"VOTE_RPC_RPS"`
	Burst             int           `yaml:"burst" env:"VOTE_RPC_BURST"`
	ConfirmTimeout    time.Duration `yaml:"confirm_timeout" env:"VOTE_CONFIRM_TIMEOUT"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"VOTE_POLL_INTERVAL"`
}

// WalletConfig locates the signing keypair. An empty path means read-only.
type WalletConfig struct {
	KeypairPath string `yaml:"keypair_path" env:"VOTE_KEYPAIR_PATH"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Address   string  `yaml:"address" env:"VOTE_HTTP_ADDRESS"`
	RateLimit float64 `yaml:"rate_limit" env:"VOTE_HTTP_RATE_LIMIT"`
	Burst     int     `yaml:"burst" env:"VOTE_HTTP_BURST"`

	// AllowedOrigins enables CORS for browser front ends. Empty disables it.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// JournalConfig selects the operation journal backend.
type JournalConfig struct {
	Driver string `yaml:"driver" env:"VOTE_JOURNAL_DRIVER"`
	DSN    string `yaml:"dsn" env:"VOTE_JOURNAL_DSN"`
}

// SweeperConfig configures the expired-session sweeper.
type SweeperConfig struct {
	Enabled  bool   `yaml:"enabled" env:"VOTE_SWEEPER_ENABLED"`
	Schedule string `yaml:"schedule" env:"VOTE_SWEEPER_SCHEDULE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			RPCURL:         "https://api.devnet.solana.com",
			ProgramID:      chain.DefaultProgramID,
			Cluster:        "devnet",
			Commitment:     chain.CommitmentConfirmed,
			Timeout:        30 * time.Second,
			Burst:          1,
			ConfirmTimeout: chain.DefaultConfirmTimeout,
			PollInterval:   chain.DefaultPollInterval,
		},
		HTTP: HTTPConfig{
			Address:   ":8080",
			RateLimit: 20,
			Burst:     40,
		},
		Journal: JournalConfig{Driver: JournalMemory},
		Sweeper: SweeperConfig{Schedule: "@every 10m"},
		Logging: logger.LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from path. A missing file is not an error when
// path is empty; the defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case explicit || !stderrors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := envdecode.Decode(cfg); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path or falls back to the defaults.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// loadDotEnv loads .env from the working directory, if present. Variables
// already set in the environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if _, err := chain.ParseAddress(c.Chain.ProgramID); err != nil {
		return fmt.Errorf("chain.program_id: %w", err)
	}
	switch c.Chain.Commitment {
	case chain.CommitmentProcessed, chain.CommitmentConfirmed, chain.CommitmentFinalized:
	default:
		return fmt.Errorf("chain.commitment %q is not one of processed, confirmed, finalized", c.Chain.Commitment)
	}
	if c.Chain.ConfirmTimeout <= 0 {
		return fmt.Errorf("chain.confirm_timeout must be positive")
	}
	if c.Chain.PollInterval <= 0 {
		return fmt.Errorf("chain.poll_interval must be positive")
	}
	if c.Chain.RequestsPerSecond < 0 || c.HTTP.RateLimit < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}

	switch c.Journal.Driver {
	case JournalMemory:
	case JournalPostgres:
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("journal.driver %q is not one of memory, postgres", c.Journal.Driver)
	}

	if c.Sweeper.Enabled && strings.TrimSpace(c.Sweeper.Schedule) == "" {
		return fmt.Errorf("sweeper.schedule is required when the sweeper is enabled")
	}
	return nil
}

// ChainClientConfig maps the chain section onto chain.Config.
func (c *Config) ChainClientConfig(log *logger.Logger) chain.Config {
	return chain.Config{
		RPCURL:            c.Chain.RPCURL,
		Commitment:        c.Chain.Commitment,
		Timeout:           c.Chain.Timeout,
		RequestsPerSecond: c.Chain.RequestsPerSecond,
		Burst:             c.Chain.Burst,
		ConfirmTimeout:    c.Chain.ConfirmTimeout,
		PollInterval:      c.Chain.PollInterval,
		Logger:            log,
	}
}
