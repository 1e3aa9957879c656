package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the agent system
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Market     MarketConfig     `mapstructure:"market"`
	Research   ResearchConfig   `mapstructure:"research"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RiskPolicy RiskPolicyConfig `mapstructure:"risk_policy"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address          string `mapstructure:"address"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	SchedulerEnabled bool   `mapstructure:"scheduler_enabled"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	JWTSecret         string        `mapstructure:"jwt_secret"` // JWT secret for auth
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, openrouter, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string   `mapstructure:"name"`
	APIName         string   `mapstructure:"api_name"`
	MaxTokens       int      `mapstructure:"max_tokens"`
	Temperature     float64  `mapstructure:"temperature"`
	CostPer1K       float64  `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64  `mapstructure:"cost_per_1k_output"`
	Capabilities    []string `mapstructure:"capabilities"` // classification, explanation, research, etc.
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Classification string `mapstructure:"classification"` // Use for intent classification
	Explanation    string `mapstructure:"explanation"`    // Use for plan explanations
	Research       string `mapstructure:"research"`       // Use for market research
	Fallback       string `mapstructure:"fallback"`       // Fallback model
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	LogFile      string `mapstructure:"log_file"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// CapabilityConfig controls the agent-card registry behaviour.
type CapabilityConfig struct {
	SigningSecret  string   `mapstructure:"signing_secret"`
	RequiredAgents []string `mapstructure:"required_agents"`
}

// AgentsConfig contains agent-specific settings
type AgentsConfig struct {
	MaxConcurrentPlans  int           `mapstructure:"max_concurrent_plans"`
	AgentTimeout        time.Duration `mapstructure:"agent_timeout"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
}

// ChainConfig describes the single EVM endpoint the execution layer talks to.
type ChainConfig struct {
	Name            string        `mapstructure:"name"`
	RPCURL          string        `mapstructure:"rpc_url"`
	WSURL           string        `mapstructure:"ws_url"`
	ChainID         int64         `mapstructure:"chain_id"`
	BoundaryAddress string        `mapstructure:"boundary_address"` // on-chain execution proxy
	ExplorerBaseURL string        `mapstructure:"explorer_base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (c ChainConfig) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return nil // chain access is optional; agents fall back to fixture data
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be > 0 when rpc_url is set")
	}
	return nil
}

// MarketConfig contains token price source settings
type MarketConfig struct {
	PriceAPIURL string        `mapstructure:"price_api_url"`
	PriceAPIKey string        `mapstructure:"price_api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// ResearchConfig contains market research agent settings
type ResearchConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxChars     int           `mapstructure:"max_chars"`
	IndexPath    string        `mapstructure:"index_path"` // empty = in-memory bleve index
	LiveFetch    bool          `mapstructure:"live_fetch"`
}

// Normalize applies defaults for unset research values.
func (c ResearchConfig) Normalize() ResearchConfig {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.MaxChars <= 0 {
		c.MaxChars = 8000
	}
	return c
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	File     FileConfig     `mapstructure:"file"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" && strings.TrimSpace(r.Port) == "" {
		return nil // redis is optional; caches stay in-process
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required when port is set")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return nil // postgres is optional; the store falls back to memory
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when host is provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when host is provided")
	}
	return nil
}

// DSN renders the connection string golang-migrate and lib/pq expect.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

// FileConfig contains file storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
	LogDir  string `mapstructure:"log_dir"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("server.address", ":10001")
	viper.SetDefault("server.scheduler_enabled", true)
	viper.SetDefault("agents.max_concurrent_plans", 8)
	viper.SetDefault("agents.agent_timeout", "60s")
	viper.SetDefault("agents.confidence_threshold", 0.5)
	viper.SetDefault("research.cache_ttl", "5m")
	viper.SetDefault("research.fetch_timeout", "20s")
	viper.SetDefault("research.max_chars", 8000)
	viper.SetDefault("guardrails.max_value_per_intent", 50000)
	viper.SetDefault("guardrails.daily_value_cap", 250000)
	viper.SetDefault("guardrails.approval_threshold", 10000)
	viper.SetDefault("risk_policy.enabled", true)

	if path == "" {
		viper.AddConfigPath("./app/config") // path to look for the config file in
		viper.AddConfigPath("./config")     // path to look for the config file in
		viper.AddConfigPath(".")            // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("STEWARD")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (STEWARD_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// unmarshal config
	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Research = config.Research.Normalize()
	config.RiskPolicy = config.RiskPolicy.Normalize()
	config.Guardrails = config.Guardrails.Normalize()

	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Chain.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.RiskPolicy.Validate(); err != nil {
		panic(err)
	}
	if err := config.Guardrails.Validate(); err != nil {
		panic(err)
	}
	return &config
}
