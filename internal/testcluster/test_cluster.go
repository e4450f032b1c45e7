package testcluster

import (
	"context"
	"testing"
	"time"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/testutil"
	"github.com/stretchr/testify/require"
)

// Start an embedded etcd server for test, return cluster + cleanup
func SetupEtcdCluster(t *testing.T) (cluster.Cluster, func()) {
	t.Helper()
	endpoint, stop := testutil.StartEmbeddedEtcd(t)
	cl, err := cluster.NewEtcdCluster(cluster.EtcdConfig{
		Endpoints:   []string{endpoint},
		DialTimeout: 2 * time.Second,
		Prefix:      "/rewardd_test_" + testutil.RandString(5),
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = cl.Close()
		stop()
	}
	return cl, cleanup
}

// SeedShards marks every given shard as processed at its timestamp.
func SeedShards(t *testing.T, cl cluster.Cluster, project string, shards map[string]time.Time) {
	t.Helper()
	ctx := context.Background()
	for shardID, ts := range shards {
		require.NoError(t, cl.UpdateShardLastProcessed(ctx, project, shardID, ts))
	}
}

// DrainQueue claims and decodes every pending message for a function.
func DrainQueue(t *testing.T, cl cluster.Cluster, function string) []cluster.QueueMessage {
	t.Helper()
	ctx := context.Background()
	msgs, err := cl.Pending(ctx, function)
	require.NoError(t, err)
	for _, msg := range msgs {
		ok, err := cl.Claim(ctx, msg)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return msgs
}
