package config

import (
	"time"

	"github.com/chtzvt/rewardd/internal/api"
)

type NodeConfig struct {
	ID string `mapstructure:"id"`
}

type EtcdConfig struct {
	Endpoints []string `mapstructure:"endpoints"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Prefix    string   `mapstructure:"prefix"`
}

type StorageConfig struct {
	Backend string                 `mapstructure:"backend"`
	Options map[string]interface{} `mapstructure:"options"`
}

type DispatchConfig struct {
	WorkerCount          int           `mapstructure:"worker_count"`
	ReprocessWaitSeconds int           `mapstructure:"reprocess_wait_seconds"`
	MaxPayloadMB         int           `mapstructure:"max_payload_mb"`
	Interval             time.Duration `mapstructure:"interval"`
	StaleFilter          string        `mapstructure:"stale_filter"`
}

type WorkerConfig struct {
	MaxParallel int           `mapstructure:"max_parallel"`
	PollPeriod  time.Duration `mapstructure:"poll_period"`
	BatchSize   int           `mapstructure:"batch_size"`
}

type CustomizeConfig struct {
	ConfigFile string `mapstructure:"config_file"`
	Hooks      string `mapstructure:"hooks"`
}

type SecretsConfig struct {
	KeychainFile string `mapstructure:"keychain_file"`
	ClusterKey   string `mapstructure:"cluster_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ClusterConfig struct {
	Node      NodeConfig      `mapstructure:"node"`
	Api       api.Config      `mapstructure:"api"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Customize CustomizeConfig `mapstructure:"customize"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Log       LogConfig       `mapstructure:"log"`
}
