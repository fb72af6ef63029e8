// Package config is the system-wide settings layer. Precedence follows the
// teacher of all deployments: explicit file, then environment (including any
// .env file in the working directory), then built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Chat      *ChatConfig      `json:"chat"`
	Logger    *LoggerConfig    `json:"logger"`
}

// HTTPConfig configures the HTTP server hosting the WebSocket endpoint, the
// API, and the static client.
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	StaticDir    string        `json:"static_dir"`
}

// WebSocketConfig configures per-connection transport behavior.
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	SendBufferSize int           `json:"send_buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
}

// ChatConfig configures hub behavior.
type ChatConfig struct {
	HistoryLimit int `json:"history_limit"`
}

// LoggerConfig configures log construction in pkg/logger.
type LoggerConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // "console" or "json"
	Output     string `json:"output"` // "stdout" or "file"
	FilePath   string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// DefaultConfig returns production-ready defaults: HTTP on 8080, 30s ping
// heartbeat with 60s read deadline, 50-message history.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			StaticDir:    "./web",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			SendBufferSize: 256,
			MaxMessageSize: 64 * 1024,
		},
		Chat: &ChatConfig{
			HistoryLimit: 50,
		},
		Logger: &LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http write timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("websocket send buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket max message size must be positive")
	}

	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history limit must be positive")
	}

	if c.Logger == nil {
		return fmt.Errorf("logger configuration is required")
	}
	if c.Logger.Output == "file" && c.Logger.FilePath == "" {
		return fmt.Errorf("logger file path is required for file output")
	}

	return nil
}

// LoadFromEnv builds a configuration from CHATHUB_* environment variables on
// top of the defaults. A .env file in the working directory is honored first.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	config := DefaultConfig()

	if host := os.Getenv("CHATHUB_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("CHATHUB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if staticDir := os.Getenv("CHATHUB_STATIC_DIR"); staticDir != "" {
		config.HTTP.StaticDir = staticDir
	}
	if readTimeout := os.Getenv("CHATHUB_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("CHATHUB_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if pingInterval := os.Getenv("CHATHUB_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if readTimeout := os.Getenv("CHATHUB_WEBSOCKET_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("CHATHUB_WEBSOCKET_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("CHATHUB_WEBSOCKET_SEND_BUFFER"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.SendBufferSize = size
		}
	}
	if maxSize := os.Getenv("CHATHUB_WEBSOCKET_MAX_MESSAGE_SIZE"); maxSize != "" {
		if size, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			config.WebSocket.MaxMessageSize = size
		}
	}

	if historyLimit := os.Getenv("CHATHUB_HISTORY_LIMIT"); historyLimit != "" {
		if limit, err := strconv.Atoi(historyLimit); err == nil {
			config.Chat.HistoryLimit = limit
		}
	}

	if level := os.Getenv("CHATHUB_LOG_LEVEL"); level != "" {
		config.Logger.Level = level
	}
	if format := os.Getenv("CHATHUB_LOG_FORMAT"); format != "" {
		config.Logger.Format = format
	}
	if output := os.Getenv("CHATHUB_LOG_OUTPUT"); output != "" {
		config.Logger.Output = output
	}
	if filePath := os.Getenv("CHATHUB_LOG_FILE"); filePath != "" {
		config.Logger.FilePath = filePath
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration. Durations
// are strings ("30s", "1m") so config files stay readable.
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Chat      *ChatConfig          `json:"chat"`
	Logger    *LoggerConfig        `json:"logger"`
}

type HTTPConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	StaticDir    string `json:"static_dir"`
}

type WebSocketConfigFile struct {
	PingInterval   string `json:"ping_interval"`
	ReadTimeout    string `json:"read_timeout"`
	WriteTimeout   string `json:"write_timeout"`
	SendBufferSize int    `json:"send_buffer_size"`
	MaxMessageSize int64  `json:"max_message_size"`
}

// LoadFromFile reads a JSON configuration file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.HTTP != nil {
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.StaticDir != "" {
			config.HTTP.StaticDir = configFile.HTTP.StaticDir
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.SendBufferSize > 0 {
			config.WebSocket.SendBufferSize = configFile.WebSocket.SendBufferSize
		}
		if configFile.WebSocket.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = configFile.WebSocket.MaxMessageSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.Chat != nil {
		if configFile.Chat.HistoryLimit > 0 {
			config.Chat.HistoryLimit = configFile.Chat.HistoryLimit
		}
	}

	if configFile.Logger != nil {
		config.Logger = configFile.Logger
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves the effective configuration:
// file > environment > defaults. File errors fall back silently to the
// environment result so a missing file never blocks startup.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
