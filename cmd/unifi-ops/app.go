package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/unifi-ops/internal/audit"
	"github.com/yourusername/unifi-ops/internal/backup"
	"github.com/yourusername/unifi-ops/internal/cache"
	"github.com/yourusername/unifi-ops/internal/config"
	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/resources"
	"github.com/yourusername/unifi-ops/internal/store"
	"github.com/yourusername/unifi-ops/internal/transport"
)

// app holds the wired dependency graph for one CLI invocation. Components
// are built eagerly in load because every subcommand needs the client,
// except the ledger which opens on first use so read-only listing
// commands never touch the database file.
type app struct {
	cfg    *config.Config
	client *transport.Client
	cache  *cache.Cache
	audit  *audit.Logger

	db      *store.DB
	orch    *backup.Orchestrator
	closers []func() error
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Resolve(options(cmd)...)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	a.closers = append(a.closers, func() error { logging.Close(); return nil })

	a.client, err = transport.NewClient(cfg.ClientOptions())
	if err != nil {
		return err
	}

	a.cache = cache.New(nil)
	if cfg.Cache.Enabled {
		var backing cache.Store
		if cfg.Cache.RedisAddr != "" {
			rs, err := cache.NewRedisStore(cmd.Context(), cfg.Cache.RedisAddr)
			if err != nil {
				logging.L().Warn("redis unavailable, falling back to in-process cache", "error", err)
			} else {
				backing = rs
			}
		}
		if backing == nil {
			backing = cache.NewMemoryStore()
		}
		a.cache = cache.New(backing)
		a.closers = append(a.closers, backing.Close)
	}

	if cfg.Audit.Enabled {
		a.audit, err = audit.New(cfg.Audit.File)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		a.closers = append(a.closers, a.audit.Close)
	}

	return nil
}

// ledger opens the local operation ledger on demand.
func (a *app) ledger() (*store.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.Open(a.cfg.Backup.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	return db, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintln(os.Stderr, "Warning:", err)
		}
	}
	a.closers = nil
}

func (a *app) resources() *resources.Service {
	return resources.New(a.client, a.cache, a.audit)
}

// orchestrator returns the process-wide orchestrator. One instance is
// shared so the restorer's conflict guard also covers scheduled backups.
func (a *app) orchestrator() *backup.Orchestrator {
	if a.orch == nil {
		a.orch = backup.NewOrchestrator(a.client, a.cache, a.audit)
		a.orch.SetPollPolicy(a.cfg.Backup.PollInterval, a.cfg.Backup.PollTimeout)
	}
	return a.orch
}

func (a *app) registry() (*backup.Registry, error) {
	db, err := a.ledger()
	if err != nil {
		return nil, err
	}
	return backup.NewRegistry(a.client, a.cache, db, a.audit), nil
}

func (a *app) restorer() (*backup.Restorer, error) {
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	return backup.NewRestorer(a.client, reg, a.orchestrator(), a.db, a.audit), nil
}

// site returns the effective site for a command.
func (a *app) site() string {
	return a.cfg.DefaultSite
}

// confirm implements the destructive-operation gate. --yes passes it
// non-interactively; otherwise the user is prompted on the terminal.
func confirm(prompt string) bool {
	if flagConfirm {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// emit prints v as indented JSON when --json is set and returns true.
func emit(v any) bool {
	if !flagJSON {
		return false
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}
	return true
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
