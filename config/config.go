package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ngenohkevin/procdeck/internal/process"
)

// Config holds all configuration for the agent
type Config struct {
	// Server settings
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Security
	AllowedOrigins []string
	RateLimitRPS   int

	// Logging
	LogLevel string

	// Process supervision
	Shell       string
	WorkDir     string
	PtyCols     int
	PtyRows     int
	StopTimeout time.Duration
	LogCapacity int

	// Persistence
	DataDir      string
	StoreFile    string
	SaveDebounce time.Duration

	EnvFile string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	envFile := getEnvFile()

	// Load .env file if it exists
	_ = godotenv.Load(envFile)

	cfg := &Config{
		Port:           getEnvInt("PORT", 8092),
		Host:           getEnv("HOST", "127.0.0.1"),
		ReadTimeout:    time.Duration(getEnvInt("READ_TIMEOUT_SECONDS", 30)) * time.Second,
		WriteTimeout:   time.Duration(getEnvInt("WRITE_TIMEOUT_SECONDS", 0)) * time.Second,
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 100),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Shell:          getEnv("SHELL_PATH", "bash"),
		WorkDir:        getEnv("WORK_DIR", ""),
		PtyCols:        getEnvInt("PTY_COLS", 80),
		PtyRows:        getEnvInt("PTY_ROWS", 30),
		StopTimeout:    time.Duration(getEnvInt("STOP_TIMEOUT_SECONDS", 5)) * time.Second,
		LogCapacity:    getEnvInt("LOG_CAPACITY", 500),
		DataDir:        getEnv("DATA_DIR", defaultDataDir()),
		StoreFile:      getEnv("STORE_FILE", "processes.json"),
		SaveDebounce:   time.Duration(getEnvInt("SAVE_DEBOUNCE_MS", 300)) * time.Millisecond,
		EnvFile:        envFile,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads config with defaults for testing
func LoadWithDefaults() *Config {
	return &Config{
		Port:           8092,
		Host:           "127.0.0.1",
		ReadTimeout:    30 * time.Second,
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   100,
		LogLevel:       "info",
		Shell:          "sh",
		PtyCols:        80,
		PtyRows:        30,
		StopTimeout:    5 * time.Second,
		LogCapacity:    500,
		DataDir:        os.TempDir(),
		StoreFile:      "procdeck-test.json",
		SaveDebounce:   300 * time.Millisecond,
	}
}

// Validate rejects settings the supervisor cannot run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.PtyCols <= 0 || c.PtyCols > 65535 || c.PtyRows <= 0 || c.PtyRows > 65535 {
		return fmt.Errorf("invalid terminal size %dx%d", c.PtyCols, c.PtyRows)
	}
	if c.LogCapacity <= 0 {
		return fmt.Errorf("LOG_CAPACITY must be positive, got %d", c.LogCapacity)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("STOP_TIMEOUT_SECONDS must be positive")
	}
	if c.StoreFile == "" {
		return fmt.Errorf("STORE_FILE is required")
	}
	return nil
}

// Addr returns the server address string
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorePath returns the file process definitions are persisted to
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.StoreFile) {
		return c.StoreFile
	}
	return filepath.Join(c.DataDir, c.StoreFile)
}

// ProcessOptions returns the supervisor settings
func (c *Config) ProcessOptions() process.Options {
	opts := process.DefaultOptions()
	opts.Shell = c.Shell
	opts.WorkDir = c.WorkDir
	opts.Cols = uint16(c.PtyCols)
	opts.Rows = uint16(c.PtyRows)
	opts.StopTimeout = c.StopTimeout
	opts.LogCapacity = c.LogCapacity
	return opts
}

// Debug reports whether verbose logging is enabled
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// getEnvFile returns the path to the .env file
func getEnvFile() string {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return envFile
	}

	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}

	// Fall back to the directory of the executable
	exe, err := os.Executable()
	if err == nil {
		envPath := filepath.Join(filepath.Dir(exe), ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	return ".env"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "procdeck")
	}
	return ".procdeck"
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
