package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chtzvt/rewardd/cmd/rewardd/config"
	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/customize"
	"github.com/chtzvt/rewardd/internal/secrets"
	"github.com/chtzvt/rewardd/internal/store"
	log "github.com/sirupsen/logrus"
)

func setupLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

func newCluster(cfg *config.ClusterConfig) (cluster.Cluster, error) {
	etcdCfg := cluster.EtcdConfig{
		Endpoints:   cfg.Etcd.Endpoints,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
		Prefix:      cfg.Etcd.Prefix,
		DialTimeout: 5 * time.Second,
	}

	cl, err := cluster.NewEtcdCluster(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return cl, nil
}

func newSecrets(cl cluster.Cluster, cfg *config.ClusterConfig) (*secrets.Store, error) {
	// Create a unique temporary path, but remove the file so the secrets
	// package can create and initialize it later.
	keychainFile := cfg.Secrets.KeychainFile
	if keychainFile == "" {
		tmpFile, err := os.CreateTemp("", "rewardd-keychain-*.bin")
		if err != nil {
			return nil, fmt.Errorf("unable to create temporary keychain file: %w", err)
		}
		keychainFile = tmpFile.Name()
		tmpFile.Close()
		os.Remove(keychainFile)
	}

	return secrets.NewStore(cl.Client(), keychainFile, cl.Prefix())
}

func newStore(cfg *config.ClusterConfig, sec *secrets.Store) (store.Store, error) {
	st, err := store.New(cfg.Storage.Backend, cfg.Storage.Options, sec)
	if err != nil {
		return nil, fmt.Errorf("storage backend %q: %w", cfg.Storage.Backend, err)
	}
	return st, nil
}

func loadCustomization(cfg *config.ClusterConfig) (*customize.Config, customize.Hooks, error) {
	custCfg, err := customize.LoadConfig(cfg.Customize.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	hooks, err := customize.ForName(cfg.Customize.Hooks)
	if err != nil {
		return nil, nil, err
	}
	return custCfg, hooks, nil
}

func cmdContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()
	return ctx
}
