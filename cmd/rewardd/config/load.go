package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func LoadConfig(cfgFile string) (*ClusterConfig, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("rewardd")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/rewardd/")
	}

	v.SetEnvPrefix("REWARDD") // env vars like REWARDD_NODE__ID
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	v.SetDefault("etcd.prefix", "/rewardd")
	v.SetDefault("storage.backend", "disk")
	v.SetDefault("dispatch.worker_count", 1)
	v.SetDefault("dispatch.reprocess_wait_seconds", 900)
	v.SetDefault("dispatch.max_payload_mb", 100)
	v.SetDefault("dispatch.interval", time.Minute)
	v.SetDefault("dispatch.stale_filter", "all")
	v.SetDefault("worker.max_parallel", 4)
	v.SetDefault("worker.poll_period", time.Second)
	v.SetDefault("worker.batch_size", 8)
	v.SetDefault("customize.config_file", "rewardd-projects.yaml")
	v.SetDefault("customize.hooks", "identity")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.BindEnv("node.id")
	v.BindEnv("etcd.endpoints")
	v.BindEnv("etcd.username")
	v.BindEnv("etcd.password")
	v.BindEnv("etcd.prefix")
	v.BindEnv("secrets.keychain_file")
	v.BindEnv("secrets.cluster_key")
	v.BindEnv("api.listen_addr")
	v.BindEnv("api.auth_tokens")

	// Deployment contract: these exact names override the config file.
	v.BindEnv("dispatch.worker_count", "REWARDD_DISPATCH__WORKER_COUNT", "REWARD_ASSIGNMENT_WORKER_COUNT")
	v.BindEnv("dispatch.reprocess_wait_seconds", "REWARDD_DISPATCH__REPROCESS_WAIT_SECONDS", "REWARD_ASSIGNMENT_REPROCESS_SHARD_WAIT_TIME_IN_SECONDS")
	v.BindEnv("dispatch.max_payload_mb", "REWARDD_DISPATCH__MAX_PAYLOAD_MB", "REWARD_ASSIGNMENT_WORKER_MAX_PAYLOAD_IN_MB")
	v.BindEnv("storage.options.bucket", "REWARDD_STORAGE__OPTIONS__BUCKET", "RECORDS_BUCKET")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ClusterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Node.ID == "" {
		hostname, _ := os.Hostname()
		cfg.Node.ID = hostname
	}

	return &cfg, nil
}
