package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for ChatGalaxy
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	AI        AIConfig        `mapstructure:"ai"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`
	StaticDir string `mapstructure:"static_dir"`
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig holds JWT and password hashing configuration
type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	AccessTokenMinutes int    `mapstructure:"access_token_minutes"`
	RefreshTokenDays   int    `mapstructure:"refresh_token_days"`
	BcryptCost         int    `mapstructure:"bcrypt_cost"`
}

// AIConfig holds the upstream model provider configuration
type AIConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// WebSocketConfig holds realtime transport configuration
type WebSocketConfig struct {
	HeartbeatInterval int      `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  int      `mapstructure:"heartbeat_timeout"`
	WriteWait         int      `mapstructure:"write_wait"`
	MaxMessageBytes   int64    `mapstructure:"max_message_bytes"`
	MaxConnections    int      `mapstructure:"max_connections"`
	ReadBufferSize    int      `mapstructure:"read_buffer_size"`
	WriteBufferSize   int      `mapstructure:"write_buffer_size"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
}

// CORSConfig holds cross-origin configuration for the HTTP API
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("CHATGALAXY")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.static_dir", "./static")

	v.SetDefault("admin.api_key", "")

	v.SetDefault("database.path", "./data/chatgalaxy.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_minutes", 30)
	v.SetDefault("auth.refresh_token_days", 7)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("ai.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "qwen-turbo")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.max_tokens", 2000)
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.max_retries", 3)

	v.SetDefault("websocket.heartbeat_interval", 30)
	v.SetDefault("websocket.heartbeat_timeout", 60)
	v.SetDefault("websocket.write_wait", 10)
	v.SetDefault("websocket.max_message_bytes", 65536)
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
}

// Validate checks invariants that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("websocket.heartbeat_interval must be positive")
	}
	// A connection must survive one slow cycle; eviction only after two
	// full intervals without a liveness update.
	if c.WebSocket.HeartbeatTimeout < 2*c.WebSocket.HeartbeatInterval {
		return fmt.Errorf("websocket.heartbeat_timeout (%ds) must be at least twice websocket.heartbeat_interval (%ds)",
			c.WebSocket.HeartbeatTimeout, c.WebSocket.HeartbeatInterval)
	}
	if c.AI.BaseURL == "" {
		return fmt.Errorf("ai.base_url is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AccessTokenTTL returns the access token lifetime.
func (c *AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime.
func (c *AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

// Interval returns the heartbeat sweep period.
func (c *WebSocketConfig) Interval() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// Timeout returns the liveness deadline for a connection.
func (c *WebSocketConfig) Timeout() time.Duration {
	return time.Duration(c.HeartbeatTimeout) * time.Second
}

// WriteDeadline returns the per-send write deadline.
func (c *WebSocketConfig) WriteDeadline() time.Duration {
	return time.Duration(c.WriteWait) * time.Second
}

// Timeout returns the upstream request timeout.
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
