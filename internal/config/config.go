package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Graph  GraphConfig  `mapstructure:"graph"`
	IMAP   IMAPConfig   `mapstructure:"imap"`
	Store  StoreConfig  `mapstructure:"store"`
	Audit  AuditConfig  `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds the identity endpoint configuration used for token
// acquisition. TokenURL overrides the Azure AD endpoint derived from Tenant,
// which is only useful for tests.
type AuthConfig struct {
	Tenant   string `mapstructure:"tenant"`
	ClientID string `mapstructure:"client_id"`
	Scope    string `mapstructure:"scope"`
	TokenURL string `mapstructure:"token_url"`
}

// GraphConfig holds Microsoft Graph API configuration
type GraphConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// IMAPConfig holds the optional IMAP mailbox access configuration
type IMAPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Limit   int    `mapstructure:"limit"`
}

// StoreConfig holds credential store configuration
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// AuditConfig holds the optional audit log sink configuration
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("auth.tenant", "consumers")
	viper.SetDefault("auth.scope", "https://graph.microsoft.com/.default")

	viper.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	viper.SetDefault("graph.page_size", 200)
	viper.SetDefault("graph.timeout", "15s")

	viper.SetDefault("imap.enabled", false)
	viper.SetDefault("imap.host", "outlook.office365.com")
	viper.SetDefault("imap.port", 993)
	viper.SetDefault("imap.limit", 200)

	viper.SetDefault("store.data_dir", "./data")

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.db_path", "./data/audit.db")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Logging
	viper.BindEnv("log.level", "LOG_LEVEL")

	// Auth
	viper.BindEnv("auth.tenant", "AZURE_TENANT")
	viper.BindEnv("auth.client_id", "AZURE_CLIENT_ID")
	viper.BindEnv("auth.scope", "AZURE_SCOPE")
	viper.BindEnv("auth.token_url", "AZURE_TOKEN_URL")

	// Graph
	viper.BindEnv("graph.base_url", "GRAPH_BASE_URL")
	viper.BindEnv("graph.page_size", "GRAPH_PAGE_SIZE")
	viper.BindEnv("graph.timeout", "GRAPH_TIMEOUT")

	// IMAP
	viper.BindEnv("imap.enabled", "IMAP_ENABLED")
	viper.BindEnv("imap.host", "IMAP_HOST")
	viper.BindEnv("imap.port", "IMAP_PORT")
	viper.BindEnv("imap.limit", "IMAP_LIMIT")

	// Store
	viper.BindEnv("store.data_dir", "STORE_DATA_DIR")

	// Audit
	viper.BindEnv("audit.enabled", "AUDIT_ENABLED")
	viper.BindEnv("audit.db_path", "AUDIT_DB_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Store.DataDir == "" {
		return fmt.Errorf("store data_dir is required")
	}

	if c.Auth.Tenant == "" && c.Auth.TokenURL == "" {
		return fmt.Errorf("auth tenant is required")
	}

	if c.Graph.PageSize <= 0 {
		return fmt.Errorf("graph page_size must be greater than 0")
	}

	if c.IMAP.Enabled {
		if c.IMAP.Host == "" || c.IMAP.Port <= 0 {
			return fmt.Errorf("IMAP host and port are required when IMAP is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.DBPath == "" {
		return fmt.Errorf("audit db_path is required when audit logging is enabled")
	}

	return nil
}
