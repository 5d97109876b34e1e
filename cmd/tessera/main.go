// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// tessera is the control-plane server binary.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/cache"
	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/ingest"
	"tessera.io/tessera/tessera/proposals"
	"tessera.io/tessera/tessera/publisher"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/tesseradb"
	"tessera.io/tessera/tessera/web"
	"tessera.io/tessera/tessera/webhooks"
)

// Version is set at build time.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "tessera",
		Short: "Data contract control plane",
	}
	root.AddCommand(runCmd(), migrateCmd(), createAPIKeyCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("webhook_dns_timeout", "5s")
	return v
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// openDB connects and optionally migrates.
func openDB(ctx context.Context, log *zap.Logger, v *viper.Viper, migrate bool) (*tesseradb.DB, error) {
	db, err := tesseradb.Open(ctx, log.Named("db"), v.GetString("database_url"))
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.MigrateToLatest(ctx); err != nil {
			return nil, errs.Combine(err, db.Close())
		}
	}
	return db, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newViper()
			log, err := newLogger(v.GetString("environment"))
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := openDB(ctx, log, v, true)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			readCache, err := cache.Open(log.Named("cache"), v.GetString("redis_url"))
			if err != nil {
				return err
			}
			defer func() { _ = readCache.Close() }()

			notify := webhooks.NewService(log.Named("webhooks"), webhooks.Config{
				URL:            v.GetString("webhook_url"),
				Secret:         v.GetString("webhook_secret"),
				AllowedDomains: splitList(v.GetString("webhook_allowed_domains")),
				Production:     v.GetString("environment") == "production",
				DNSTimeout:     v.GetDuration("webhook_dns_timeout"),
			}, db.WebhookDeliveries())

			reg := registry.NewService(log.Named("registry"), db)
			imp := impact.NewService(log.Named("impact"), db)
			services := web.Services{
				Store:     db,
				Registry:  reg,
				Publisher: publisher.NewService(log.Named("publisher"), db, imp, notify, readCache),
				Proposals: proposals.NewService(log.Named("proposals"), db, notify),
				Impact:    imp,
				Ingest:    ingest.NewService(log.Named("ingest"), db, imp),
				Cache:     readCache,
			}

			config := web.Config{
				Address:            v.GetString("listen_addr"),
				Environment:        v.GetString("environment"),
				BootstrapAPIKey:    v.GetString("bootstrap_api_key"),
				AuthDisabled:       v.GetBool("auth_disabled"),
				SessionSecret:      v.GetString("session_secret"),
				RateLimitEnabled:   v.GetBool("rate_limit_enabled"),
				RateLimitPerMinute: v.GetInt("rate_limit_per_minute"),
				GitSyncPath:        v.GetString("git_sync_path"),
				Version:            Version,
			}
			if config.AuthDisabled && config.Environment == "production" {
				return errs.New("AUTH_DISABLED must not be set in production")
			}

			listener, err := net.Listen("tcp", config.Address)
			if err != nil {
				return errs.Wrap(err)
			}
			server := web.NewServer(log.Named("web"), config, services, listener)
			return server.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newViper()
			log, err := newLogger(v.GetString("environment"))
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := openDB(ctx, log, v, true)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func createAPIKeyCmd() *cobra.Command {
	var teamID, name, scopes string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "create-api-key",
		Short: "Issue an API key for a team and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newViper()
			log, err := newLogger(v.GetString("environment"))
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			id, err := uuid.Parse(teamID)
			if err != nil {
				return errs.New("--team is required: %v", err)
			}
			var parsed registry.Scopes
			for _, s := range splitList(scopes) {
				parsed = append(parsed, registry.Scope(s))
			}

			db, err := openDB(ctx, log, v, false)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			var expiresAt *time.Time
			if ttl > 0 {
				at := time.Now().UTC().Add(ttl)
				expiresAt = &at
			}
			plaintext, key, err := registry.NewService(log.Named("registry"), db).
				IssueAPIKey(ctx, id, name, parsed, expiresAt)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", key.ID, plaintext)
			return nil
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id the key belongs to")
	cmd.Flags().StringVar(&name, "name", "cli", "key name")
	cmd.Flags().StringVar(&scopes, "scopes", "read,write", "comma-separated scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "key lifetime; 0 means no expiry")
	return cmd
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
