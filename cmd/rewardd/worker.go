package main

import (
	"fmt"

	"github.com/chtzvt/rewardd/cmd/rewardd/config"
	"github.com/chtzvt/rewardd/internal/worker"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker node (reward-assignment passes)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		return runWorker(cfg)
	},
}

func runWorker(cfg *config.ClusterConfig) error {
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}
	ctx := cmdContext()

	log.WithField("node_id", cfg.Node.ID).Info("starting worker node")
	cl, err := newCluster(cfg)
	if err != nil {
		return fmt.Errorf("boot failure: %w", err)
	}
	defer cl.Close()

	sec, err := newSecrets(cl, cfg)
	if err != nil {
		return fmt.Errorf("boot failure: %w", err)
	}
	if cfg.Secrets.ClusterKey != "" {
		if err := selfBootstrap(ctx, cl, sec, cfg.Secrets.ClusterKey); err != nil {
			return err
		}
	} else {
		log.Info("Registering worker and waiting for admin to approve secrets...")
		if err := sec.RegisterAndWaitForClusterKey(ctx); err != nil {
			return err
		}
		log.Info("Registration complete. Starting...")
	}

	st, err := newStore(cfg, sec)
	if err != nil {
		return err
	}
	custCfg, hooks, err := loadCustomization(cfg)
	if err != nil {
		return err
	}
	filter, err := worker.StaleFilterForName(cfg.Dispatch.StaleFilter)
	if err != nil {
		return err
	}

	w := worker.NewWorker(cl, st, hooks, custCfg)
	w.ID = cfg.Node.ID
	w.Filter = filter
	if cfg.Dispatch.MaxPayloadMB > 0 {
		w.MaxPayloadBytes = int64(cfg.Dispatch.MaxPayloadMB) << 20
	}
	if cfg.Worker.MaxParallel > 0 {
		w.MaxParallel = cfg.Worker.MaxParallel
	}
	if cfg.Worker.BatchSize > 0 {
		w.BatchSize = cfg.Worker.BatchSize
	}
	if cfg.Worker.PollPeriod > 0 {
		w.PollPeriod = cfg.Worker.PollPeriod
	}
	return w.Run(ctx)
}
