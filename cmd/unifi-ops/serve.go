package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/unifi-ops/internal/backup"
	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/webhooks"
)

// newServeCmd runs the long-lived pieces: the webhook receiver that
// keeps the cache honest, and the recurring backup schedules from the
// config file. It blocks until SIGINT or SIGTERM.
func newServeCmd(a *app) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and backup schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			receiver := webhooks.NewReceiver(a.cfg.Webhook.Secret)
			webhooks.RegisterCacheInvalidation(receiver, a.cache)
			if a.audit != nil {
				receiver.On("*", func(_ context.Context, ev webhooks.Event) {
					if err := a.audit.Log("webhook."+ev.Type, ev.SiteID, map[string]any{"event_id": ev.ID}, nil); err != nil {
						logging.L().Warn("audit write failed", "error", err)
					}
				})
			}

			scheduler, err := startSchedules(a)
			if err != nil {
				return err
			}
			if scheduler != nil {
				defer scheduler.Stop()
			}

			server := &http.Server{
				Addr:         a.cfg.Webhook.Listen,
				Handler:      receiver.Router(debug),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.L().Info("webhook receiver listening", "addr", server.Addr)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				logging.L().Info("shutting down", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "verbose request logging")
	return cmd
}

func startSchedules(a *app) (*backup.Scheduler, error) {
	if len(a.cfg.Backup.Schedules) == 0 {
		return nil, nil
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	scheduler := backup.NewScheduler(a.orchestrator(), reg)
	for _, sc := range a.cfg.Backup.Schedules {
		site := sc.Site
		if site == "" {
			site = a.cfg.DefaultSite
		}
		backupType := sc.Type
		if backupType == "" {
			backupType = string(models.BackupNetwork)
		}
		retention := sc.RetentionDays
		if retention == 0 {
			retention = 30
		}
		err := scheduler.Add(backup.Schedule{
			SiteID:        site,
			Cron:          sc.Cron,
			Type:          models.BackupType(backupType),
			RetentionDays: retention,
			Keep:          sc.Keep,
		})
		if err != nil {
			return nil, fmt.Errorf("schedule for site %s: %w", site, err)
		}
	}
	scheduler.Start()
	logging.L().Info("backup schedules started", "count", len(a.cfg.Backup.Schedules))
	return scheduler, nil
}
