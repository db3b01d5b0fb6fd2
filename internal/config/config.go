// Package config holds the layered configuration of the wg CLI.
//
// Precedence, lowest first: built-in defaults, the config file, WG_*
// environment variables, and command-line flags bound with BindFlag.
// The config file is the first of: the path passed to Initialize, $WG_CONFIG,
// ./.workgraph/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (database.path -> WG_DATABASE_PATH).
const EnvPrefix = "WG"

// Dir is the project-local configuration directory.
const Dir = ".workgraph"

var v *viper.Viper

// Initialize sets up the viper instance. configFile may be empty.
func Initialize(configFile string) error {
	v = viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
		return nil
	}

	local := filepath.Join(Dir, "config.yaml")
	if _, err := os.Stat(local); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", local, err)
	}
	v.SetConfigFile(local)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", local, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.backend", "sqlite")
	v.SetDefault("database.path", filepath.Join(Dir, "workgraph.db"))
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("transaction.max_retries", 5)
	v.SetDefault("transaction.max_elapsed", 10*time.Second)
	v.SetDefault("transaction.timeout", 15*time.Second)
	v.SetDefault("transaction.clone_timeout", 2*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("telemetry.otlp_endpoint", "")

	// Optional JSONL mirror of the audit log. Lines are appended after the
	// transaction that recorded them commits.
	v.SetDefault("audit.jsonl_path", "")

	v.SetDefault("identity.user", "")
	v.SetDefault("identity.tenant", "")
	v.SetDefault("identity.role", "staff")
}

func instance() *viper.Viper {
	if v == nil {
		_ = Initialize("")
	}
	return v
}

// BindFlag makes a command-line flag override key when the flag is set.
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: nil flag", key)
	}
	return instance().BindPFlag(key, flag)
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	return instance().ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	return instance().GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	return instance().GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	return instance().GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	return instance().GetDuration(key)
}

// Set overrides a value for the rest of the process.
func Set(key string, value any) {
	instance().Set(key, value)
}

// Database is the storage section.
type Database struct {
	Backend      string
	Path         string
	DSN          string
	MaxOpenConns int
}

// Transaction is the timeout and retry section.
type Transaction struct {
	MaxRetries   int
	MaxElapsed   time.Duration
	Timeout      time.Duration
	CloneTimeout time.Duration
}

// Telemetry is the OpenTelemetry section.
type Telemetry struct {
	Enabled      bool
	Stdout       bool
	OTLPEndpoint string
}

// Identity is the default caller of CLI commands.
type Identity struct {
	User   string
	Tenant string
	Role   string
}

// Settings is a typed snapshot of the configuration.
type Settings struct {
	Database    Database
	Transaction Transaction
	LogLevel    string
	LogFormat   string
	Telemetry   Telemetry
	AuditJSONL  string
	Identity    Identity
}

// Current returns a snapshot of the effective configuration.
func Current() Settings {
	return Settings{
		Database: Database{
			Backend:      strings.ToLower(GetString("database.backend")),
			Path:         GetString("database.path"),
			DSN:          GetString("database.dsn"),
			MaxOpenConns: GetInt("database.max_open_conns"),
		},
		Transaction: Transaction{
			MaxRetries:   GetInt("transaction.max_retries"),
			MaxElapsed:   GetDuration("transaction.max_elapsed"),
			Timeout:      GetDuration("transaction.timeout"),
			CloneTimeout: GetDuration("transaction.clone_timeout"),
		},
		LogLevel:  GetString("log.level"),
		LogFormat: GetString("log.format"),
		Telemetry: Telemetry{
			Enabled:      GetBool("telemetry.enabled"),
			Stdout:       GetBool("telemetry.stdout"),
			OTLPEndpoint: GetString("telemetry.otlp_endpoint"),
		},
		AuditJSONL: GetString("audit.jsonl_path"),
		Identity: Identity{
			User:   GetString("identity.user"),
			Tenant: GetString("identity.tenant"),
			Role:   GetString("identity.role"),
		},
	}
}

// Validate reports settings that cannot work together.
func (s Settings) Validate() error {
	switch s.Database.Backend {
	case "sqlite":
		if s.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	case "mysql", "dolt":
		if s.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the %s backend", s.Database.Backend)
		}
	default:
		return fmt.Errorf("unknown database.backend %q (want sqlite or mysql)", s.Database.Backend)
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q (want text or json)", s.LogFormat)
	}
	return nil
}
