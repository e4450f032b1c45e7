package cluster

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type Cluster interface {
	// Shard registry
	UpdateShardLastProcessed(ctx context.Context, project, shardID string, ts time.Time) error
	LoadAndConsolidateShardLastProcessed(ctx context.Context, project string) (map[string]time.Time, error)
	ShardLastProcessed(ctx context.Context, project string) (map[string]time.Time, error)
	RegisteredProjects(ctx context.Context) ([]string, error)

	// Task queue
	Enqueue(ctx context.Context, function string, payload interface{}) (string, error)
	Pending(ctx context.Context, function string) ([]QueueMessage, error)
	Claim(ctx context.Context, msg QueueMessage) (bool, error)
	QueueDepth(ctx context.Context, function string) (int64, error)

	// Dispatch lock
	AcquireLock(ctx context.Context, name string, ttlSeconds int64) (*Lock, error)

	// Worker management
	RegisterWorker(ctx context.Context, info WorkerInfo) (workerID string, err error)
	ListWorkers(ctx context.Context) ([]WorkerInfo, error)
	HeartbeatWorker(ctx context.Context, workerID string) error
	SendMetrics(ctx context.Context, workerID string, metrics *WorkerMetrics) error
	GetWorkerMetrics(ctx context.Context, workerID string) (*WorkerMetricsView, error)

	GetClusterStatus(ctx context.Context) (*ClusterStatus, error)

	Prefix() string
	Client() *clientv3.Client
	Close() error
}
