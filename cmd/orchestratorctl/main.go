// Command orchestratorctl is the operator CLI for one-off maintenance
// against a running deployment: applying the Postgres schema and triggering
// an out-of-band maintenance sweep (spec §4.5, §4.8). The reencrypt command
// only checks both keys and exits with an error; it re-encrypts nothing.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/dbtask"
	"github.com/grievanceplatform/orchestrator/pkg/maintenance"
	"github.com/grievanceplatform/orchestrator/pkg/registry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestratorctl: config: %v\n", err)
		os.Exit(1)
	}
	logger := core.ScopedLogger(cfg.Logger(), "orchestrator/orchestratorctl")
	ctx := context.Background()

	var cmdErr error
	switch os.Args[1] {
	case "schema-init":
		cmdErr = schemaInit(ctx, cfg)
	case "sweep":
		cmdErr = sweepOnce(ctx, cfg, logger)
	case "reencrypt":
		cmdErr = reencrypt(ctx, cfg, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "orchestratorctl: %s: %v\n", os.Args[1], cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: orchestratorctl <command>

commands:
  schema-init          apply the orchestrator's Postgres schema
  sweep                run one maintenance sweep (requeue stuck tasks, prune old results)
  reencrypt --old-key=<key> --new-key=<key>
                        check both keys; bulk re-encryption is not implemented (always exits 1)`)
}

// schemaInit applies pkg/dbtask's schema DDL. It is idempotent — the DDL
// uses CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS throughout —
// so running it against an already-initialized database is a no-op.
func schemaInit(ctx context.Context, cfg *core.Config) error {
	pool, err := dbtask.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, dbtask.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	fmt.Println("schema applied")
	return nil
}

// sweepOnce runs a single maintenance pass out of band from the worker
// process's own cron schedule — useful right after an incident, when an
// operator doesn't want to wait for the next scheduled tick.
func sweepOnce(ctx context.Context, cfg *core.Config, logger core.ComponentAwareLogger) error {
	pool, err := dbtask.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	encryptor, err := dbtask.NewEncryptor([]byte(cfg.Database.EncryptionKey))
	if err != nil {
		return fmt.Errorf("field encryptor: %w", err)
	}
	dbManager := dbtask.New(pool, encryptor, core.ScopedLogger(logger, "orchestrator/dbtask"), core.NewCircuitBreaker(core.CircuitBreakerParams{
		Name:   "dbtask.postgres",
		Config: cfg.Resilience.CircuitBreaker,
		Logger: core.ScopedLogger(logger, "orchestrator/dbtask"),
	}))

	brokerRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Broker.URL,
		DB:       core.RedisDBBroker,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("broker redis: %w", err)
	}
	reg := registry.New(core.ScopedLogger(logger, "orchestrator/registry"))
	brk := broker.New(brokerRedis, reg, core.ScopedLogger(logger, "orchestrator/broker"), core.NewCircuitBreaker(core.CircuitBreakerParams{
		Name:   "broker.redis",
		Config: cfg.Resilience.CircuitBreaker,
		Logger: core.ScopedLogger(logger, "orchestrator/broker"),
	}))

	sweeper, err := maintenance.New(maintenance.Config{
		DB:         dbManager,
		Broker:     brk,
		Logger:     core.ScopedLogger(logger, "orchestrator/maintenance"),
		Schedule:   cfg.Maintenance.SweepSchedule,
		StuckGrace: cfg.Maintenance.StuckGrace,
		ResultTTL:  cfg.Maintenance.ResultTTL,
	})
	if err != nil {
		return fmt.Errorf("build sweeper: %w", err)
	}

	sweeper.Sweep(ctx)
	fmt.Println("sweep complete")
	return nil
}

// reencrypt is a placeholder for the key-rotation backfill: pkg/dbtask's
// Encryptor has no bulk re-key helper yet, so this only validates both keys
// parse before failing loudly rather than silently doing nothing.
func reencrypt(ctx context.Context, cfg *core.Config, logger core.ComponentAwareLogger, args []string) error {
	oldKey, newKey, err := parseKeyFlags(args)
	if err != nil {
		return err
	}
	if _, err := dbtask.NewEncryptor([]byte(oldKey)); err != nil {
		return fmt.Errorf("old key: %w", err)
	}
	if _, err := dbtask.NewEncryptor([]byte(newKey)); err != nil {
		return fmt.Errorf("new key: %w", err)
	}
	return fmt.Errorf("bulk re-encryption backfill is not yet implemented")
}

func parseKeyFlags(args []string) (oldKey, newKey string, err error) {
	for _, a := range args {
		switch {
		case len(a) > len("--old-key=") && a[:len("--old-key=")] == "--old-key=":
			oldKey = a[len("--old-key="):]
		case len(a) > len("--new-key=") && a[:len("--new-key=")] == "--new-key=":
			newKey = a[len("--new-key="):]
		}
	}
	if oldKey == "" || newKey == "" {
		return "", "", fmt.Errorf("both --old-key and --new-key are required")
	}
	return oldKey, newKey, nil
}
