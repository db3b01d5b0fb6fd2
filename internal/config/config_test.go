package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaults(t *testing.T) {
	t.Setenv("WG_CONFIG", "")
	t.Chdir(t.TempDir())
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want none", ConfigFileUsed())
	}

	s := Current()
	if s.Database.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", s.Database.Backend)
	}
	if s.Database.Path != filepath.Join(".workgraph", "workgraph.db") {
		t.Errorf("path = %q", s.Database.Path)
	}
	if s.Transaction.Timeout != 15*time.Second || s.Transaction.CloneTimeout != 2*time.Minute {
		t.Errorf("transaction = %+v", s.Transaction)
	}
	if s.Transaction.MaxRetries != 5 {
		t.Errorf("max retries = %d", s.Transaction.MaxRetries)
	}
	if s.Identity.Role != "staff" || s.LogFormat != "text" {
		t.Errorf("settings = %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestProjectConfigFile(t *testing.T) {
	t.Setenv("WG_CONFIG", "")
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".workgraph"), 0o750); err != nil {
		t.Fatal(err)
	}
	content := `
database:
  path: /tmp/project.db
transaction:
  timeout: 3s
identity:
  user: alice
  tenant: acme
  role: manager
`
	if err := os.WriteFile(filepath.Join(dir, ".workgraph", "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	s := Current()
	if s.Database.Path != "/tmp/project.db" {
		t.Errorf("path = %q", s.Database.Path)
	}
	if s.Transaction.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", s.Transaction.Timeout)
	}
	if s.Identity != (Identity{User: "alice", Tenant: "acme", Role: "manager"}) {
		t.Errorf("identity = %+v", s.Identity)
	}
	// Untouched keys keep their defaults.
	if s.Transaction.CloneTimeout != 2*time.Minute {
		t.Errorf("clone timeout = %v", s.Transaction.CloneTimeout)
	}
}

func TestExplicitConfigFileWins(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.yaml")
	flagFile := filepath.Join(dir, "flag.yaml")
	if err := os.WriteFile(envFile, []byte("log:\n  level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(flagFile, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WG_CONFIG", envFile)
	t.Chdir(dir)

	if err := Initialize(""); err != nil {
		t.Fatal(err)
	}
	if got := GetString("log.level"); got != "warn" {
		t.Errorf("log.level from $WG_CONFIG = %q, want warn", got)
	}

	if err := Initialize(flagFile); err != nil {
		t.Fatal(err)
	}
	if got := GetString("log.level"); got != "debug" {
		t.Errorf("log.level from --config = %q, want debug", got)
	}
	if ConfigFileUsed() != flagFile {
		t.Errorf("ConfigFileUsed() = %q", ConfigFileUsed())
	}

	if err := Initialize(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestEnvironmentBinding(t *testing.T) {
	t.Setenv("WG_CONFIG", "")
	t.Chdir(t.TempDir())
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"WG_DATABASE_BACKEND", "database.backend", "mysql", "mysql", func(k string) interface{} { return GetString(k) }},
		{"WG_DATABASE_MAX_OPEN_CONNS", "database.max_open_conns", "3", 3, func(k string) interface{} { return GetInt(k) }},
		{"WG_TRANSACTION_TIMEOUT", "transaction.timeout", "1m", time.Minute, func(k string) interface{} { return GetDuration(k) }},
		{"WG_TELEMETRY_ENABLED", "telemetry.enabled", "true", true, func(k string) interface{} { return GetBool(k) }},
		{"WG_IDENTITY_TENANT", "identity.tenant", "acme", "acme", func(k string) interface{} { return GetString(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(""); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestBindFlag(t *testing.T) {
	t.Setenv("WG_CONFIG", "")
	t.Setenv("WG_IDENTITY_USER", "from-env")
	t.Chdir(t.TempDir())
	if err := Initialize(""); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("user", "", "")
	if err := BindFlag("identity.user", fs.Lookup("user")); err != nil {
		t.Fatal(err)
	}
	if got := GetString("identity.user"); got != "from-env" {
		t.Errorf("unset flag should not override env: got %q", got)
	}
	if err := fs.Parse([]string{"--user", "from-flag"}); err != nil {
		t.Fatal(err)
	}
	if got := GetString("identity.user"); got != "from-flag" {
		t.Errorf("identity.user = %q, want from-flag", got)
	}

	if err := BindFlag("identity.user", nil); err == nil {
		t.Error("expected error for nil flag")
	}
}

func TestValidate(t *testing.T) {
	base := Settings{
		Database:  Database{Backend: "sqlite", Path: "x.db"},
		LogFormat: "json",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"unknown backend", func(s *Settings) { s.Database.Backend = "postgres" }, "unknown database.backend"},
		{"sqlite without path", func(s *Settings) { s.Database.Path = "" }, "database.path"},
		{"mysql without dsn", func(s *Settings) { s.Database.Backend = "mysql" }, "database.dsn"},
		{"bad log format", func(s *Settings) { s.LogFormat = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
