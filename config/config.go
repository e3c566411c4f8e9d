// Package config - vault configuration loading
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/alwitt/legacyvault/db"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database drivers
const (
	DatabaseDriverSqlite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// DatabaseConfig persistence layer settings
type DatabaseConfig struct {
	// Driver database driver
	Driver string `yaml:"driver" validate:"required,oneof=sqlite postgres"`
	// DSN sqlite file path, or postgres connection string
	DSN string `yaml:"dsn" validate:"required"`
	// SQLLogLevel gorm SQL log level
	SQLLogLevel string `yaml:"sql_log_level" validate:"required,oneof=silent error warn info"`
	// AutoMigrate create missing tables at start up
	AutoMigrate bool `yaml:"auto_migrate"`
	// MaxOpenConns connection pool cap, zero for the driver default
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`
}

// KeyReleaseConfig key release settings
type KeyReleaseConfig struct {
	// MinRSAKeyBits smallest ephemeral RSA key accepted from callers
	MinRSAKeyBits int `yaml:"min_rsa_key_bits" validate:"gte=2048"`
}

// SweepConfig condition sweep settings, consumed by the scheduler driving the sweep
type SweepConfig struct {
	// Interval time between two sweeps
	Interval time.Duration `yaml:"interval" validate:"gte=1m"`
}

// VaultConfig vault configuration
type VaultConfig struct {
	// Database persistence layer settings
	Database DatabaseConfig `yaml:"database"`
	// KeyRelease key release settings
	KeyRelease KeyReleaseConfig `yaml:"key_release"`
	// Sweep condition sweep settings
	Sweep SweepConfig `yaml:"sweep"`
}

// Default the default configuration, used as the base before loading a config file
func Default() *VaultConfig {
	return &VaultConfig{
		Database: DatabaseConfig{
			Driver:      DatabaseDriverSqlite,
			DSN:         "${HOME}/.legacyvault/vault.db",
			SQLLogLevel: "error",
			AutoMigrate: true,
			// sqlite allows one writer at a time
			MaxOpenConns: 1,
		},
		KeyRelease: KeyReleaseConfig{MinRSAKeyBits: 3072},
		Sweep:      SweepConfig{Interval: time.Hour},
	}
}

/*
LoadFile load configuration from a YAML file on top of the defaults

	@param path string - config file path
	@returns the validated configuration
*/
func LoadFile(path string) (*VaultConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s [%w]", path, err)
	}
	return Parse(content)
}

/*
Parse parse YAML configuration on top of the defaults

	@param content []byte - YAML content
	@returns the validated configuration
*/
func Parse(content []byte) (*VaultConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config [%w]", err)
	}
	cfg.Database.DSN = expandVars(cfg.Database.DSN)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate check the configuration for errors
func (c *VaultConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config [%w]", err)
	}
	return nil
}

// Dialector the gorm dialector for the configured database
func (c DatabaseConfig) Dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DatabaseDriverSqlite:
		return db.GetSqliteDialector(c.DSN), nil
	case DatabaseDriverPostgres:
		return db.GetPostgresDialector(c.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver '%s'", c.Driver)
}

// LogLevel the gorm logger level for the configured SQL log level
func (c DatabaseConfig) LogLevel() logger.LogLevel {
	switch c.SQLLogLevel {
	case "silent":
		return logger.Silent
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	}
	return logger.Error
}

// varPattern matches ${VAR} and ${VAR:-default}
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expand environment variable references
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
