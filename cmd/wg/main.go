// Package main implements wg, the command-line front end of the workflow
// dependency engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/workgraph/internal/audit"
	"github.com/steveyegge/workgraph/internal/config"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/storage/factory"
	"github.com/steveyegge/workgraph/internal/telemetry"
	"github.com/steveyegge/workgraph/internal/types"
	"github.com/steveyegge/workgraph/internal/workflow"
)

var (
	configFile string
	jsonOutput bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	store storage.Storage
	svc   *workflow.Service
)

var (
	// Version is the current version of wg (overridden by ldflags at build time)
	Version = "0.1.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
)

// Commands in this set run without opening the database.
var noDBCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:           "wg",
	Short:         "wg - Workflow dependency engine",
	Long:          `Instantiate task-graph templates into live workflows whose nodes unlock as their prerequisites are done.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if err := config.Initialize(configFile); err != nil {
			return err
		}
		for key, name := range map[string]string{
			"identity.user":   "user",
			"identity.tenant": "tenant",
			"identity.role":   "role",
			"database.path":   "db",
		} {
			if err := config.BindFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
				return err
			}
		}
		settings := config.Current()
		if err := settings.Validate(); err != nil {
			return err
		}

		log, err := newLogger(settings.LogLevel, settings.LogFormat, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		if noDBCommands[cmd.Name()] {
			return nil
		}

		if err := telemetry.Init(rootCtx, telemetry.Config{
			Enabled:      settings.Telemetry.Enabled,
			Stdout:       settings.Telemetry.Stdout,
			OTLPEndpoint: settings.Telemetry.OTLPEndpoint,
			ServiceName:  "wg",
			Version:      Version,
			Writer:       cmd.ErrOrStderr(),
		}); err != nil {
			return err
		}

		store, err = factory.NewFromConfig(rootCtx, settings, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		opts := []workflow.Option{
			workflow.WithLogger(log),
			workflow.WithTimeout(settings.Transaction.Timeout),
			workflow.WithCloneTimeout(settings.Transaction.CloneTimeout),
		}
		if settings.AuditJSONL != "" {
			opts = append(opts, workflow.WithAuditSink(audit.Multi(audit.TxSink{}, &audit.JSONLSink{Path: settings.AuditJSONL})))
		}
		svc = workflow.New(store, opts...)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
}

// cleanup releases the store and flushes telemetry. Cobra skips
// PersistentPostRun when a command fails, so main calls it as well.
func cleanup() {
	if store != nil {
		if err := store.Close(); err != nil {
			WarnError("close store: %v", err)
		}
		store = nil
	}
	if rootCtx != nil {
		telemetry.Shutdown(rootCtx)
	}
	if rootCancel != nil {
		rootCancel()
		rootCancel = nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: $WG_CONFIG or ./.workgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (config: database.path)")
	rootCmd.PersistentFlags().String("user", "", "Acting user id (config: identity.user)")
	rootCmd.PersistentFlags().String("tenant", "", "Acting tenant id (config: identity.tenant)")
	rootCmd.PersistentFlags().String("role", "", "Acting role: staff, manager, admin, super_admin (config: identity.role)")

	rootCmd.AddGroup(&cobra.Group{ID: "templates", Title: "Templates:"})
	rootCmd.AddGroup(&cobra.Group{ID: "workflows", Title: "Working With Workflows:"})
}

// caller builds the tenant context from identity.* settings.
func caller() (types.TenantContext, error) {
	id := config.Current().Identity
	role, err := types.ParseRole(id.Role)
	if err != nil {
		return types.TenantContext{}, err
	}
	tc := types.TenantContext{UserID: id.User, TenantID: id.Tenant, Role: role}
	if err := tc.Validate(); err != nil {
		return types.TenantContext{}, fmt.Errorf("%w (set --user/--tenant or identity.* in config)", err)
	}
	return tc, nil
}

func main() {
	err := rootCmd.Execute()
	cleanup()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
