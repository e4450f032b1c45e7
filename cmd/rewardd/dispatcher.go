package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/chtzvt/rewardd/cmd/rewardd/config"
	"github.com/chtzvt/rewardd/internal/api"
	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/dispatch"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the dispatcher node (control loop, API, management)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		return runDispatcher(cfg)
	},
}

func runDispatcher(cfg *config.ClusterConfig) error {
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}
	ctx := cmdContext()

	cl, err := newCluster(cfg)
	if err != nil {
		return fmt.Errorf("boot failure: %w", err)
	}
	defer cl.Close()

	if cfg.Secrets.ClusterKey == "" {
		return fmt.Errorf("cluster_key is required in the secrets configuration when starting in dispatcher mode")
	}
	sec, err := newSecrets(cl, cfg)
	if err != nil {
		return fmt.Errorf("boot failure: %w", err)
	}
	if err := selfBootstrap(ctx, cl, sec, cfg.Secrets.ClusterKey); err != nil {
		return err
	}

	st, err := newStore(cfg, sec)
	if err != nil {
		return err
	}
	custCfg, _, err := loadCustomization(cfg)
	if err != nil {
		return err
	}

	d := dispatch.NewDispatcher(cl, st, custCfg)
	d.WorkerCount = cfg.Dispatch.WorkerCount
	d.ReprocessWait = time.Duration(cfg.Dispatch.ReprocessWaitSeconds) * time.Second

	if cfg.Api.ListenAddr != "" {
		logger := stdlog.New(os.Stdout, "[api] ", stdlog.LstdFlags)
		apiServer := api.NewServer(cl, cfg.Api, logger)
		apiServer.Dispatcher = d
		apiServer.Secrets = sec
		go func() {
			if err := apiServer.Start(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("API server exited")
			}
		}()
	}

	log.WithField("interval", cfg.Dispatch.Interval).Info("dispatcher started")
	return dispatchLoop(ctx, cl, d, cfg.Dispatch.Interval)
}

// dispatchLoop runs one dispatch per tick under the cluster dispatch lock.
// A held lock means another invocation (a concurrent tick elsewhere, or a
// forced dispatch through the API) is in flight; the tick is skipped, not
// queued.
func dispatchLoop(ctx context.Context, cl cluster.Cluster, d *dispatch.Dispatcher, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("dispatcher: context cancelled")
			return nil
		case <-ticker.C:
			lock, err := cl.AcquireLock(ctx, cluster.DispatchLock, 60)
			if errors.Is(err, cluster.ErrLockHeld) {
				log.Debug("dispatcher: lock held, skipping tick")
				continue
			}
			if err != nil {
				log.WithError(err).Error("dispatcher: acquire lock failed")
				continue
			}
			if _, err := d.Dispatch(ctx, dispatch.Event{}); err != nil {
				log.WithError(err).Error("dispatch failed")
			}
			_ = lock.Release(context.Background())
		}
	}
}
