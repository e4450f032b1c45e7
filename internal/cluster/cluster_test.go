package cluster_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/testcluster"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestShardLastProcessedNeverRegresses(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	older := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, cl.UpdateShardLastProcessed(ctx, "messages", "0", older))
	require.NoError(t, cl.UpdateShardLastProcessed(ctx, "messages", "0", newer))
	// A late marker carrying an older timestamp must not win.
	require.NoError(t, cl.UpdateShardLastProcessed(ctx, "messages", "0", older))

	lastProcessed, err := cl.ShardLastProcessed(ctx, "messages")
	require.NoError(t, err)
	require.Len(t, lastProcessed, 1)
	require.True(t, lastProcessed["0"].Equal(newer))
}

func countRegistryEntries(t *testing.T, cl cluster.Cluster, project string) int {
	t.Helper()
	prefix := cl.Prefix() + "/projects/" + project + "/shards/"
	resp, err := cl.Client().Get(context.Background(), prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	require.NoError(t, err)
	return int(resp.Count)
}

func TestLoadAndConsolidateCompacts(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, cl.UpdateShardLastProcessed(ctx, "messages", "1", base.Add(time.Duration(i)*time.Minute)))
	}
	require.Equal(t, 5, countRegistryEntries(t, cl, "messages"))

	lastProcessed, err := cl.LoadAndConsolidateShardLastProcessed(ctx, "messages")
	require.NoError(t, err)
	require.True(t, lastProcessed["1"].Equal(base.Add(4*time.Minute)))
	require.Equal(t, 1, countRegistryEntries(t, cl, "messages"))

	// Idempotent on an already-compacted registry.
	lastProcessed, err = cl.LoadAndConsolidateShardLastProcessed(ctx, "messages")
	require.NoError(t, err)
	require.True(t, lastProcessed["1"].Equal(base.Add(4*time.Minute)))
	require.Equal(t, 1, countRegistryEntries(t, cl, "messages"))
}

func TestConsolidateSpansTransactionBatches(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	// 70 shards x 2 entries plus 70 canonical puts is well past the 128-op
	// transaction limit.
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 70; i++ {
		shardID := fmt.Sprintf("%07b", i)
		require.NoError(t, cl.UpdateShardLastProcessed(ctx, "messages", shardID, base))
		require.NoError(t, cl.UpdateShardLastProcessed(ctx, "messages", shardID, base.Add(time.Hour)))
	}
	require.Equal(t, 140, countRegistryEntries(t, cl, "messages"))

	lastProcessed, err := cl.LoadAndConsolidateShardLastProcessed(ctx, "messages")
	require.NoError(t, err)
	require.Len(t, lastProcessed, 70)
	for shardID, ts := range lastProcessed {
		require.True(t, ts.Equal(base.Add(time.Hour)), "shard %s", shardID)
	}
	require.Equal(t, 70, countRegistryEntries(t, cl, "messages"))
}

func TestRegisteredProjects(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, cl.UpdateShardLastProcessed(ctx, "zebra", "0", now))
	require.NoError(t, cl.UpdateShardLastProcessed(ctx, "alpha", "0", now))
	require.NoError(t, cl.UpdateShardLastProcessed(ctx, "alpha", "1", now))

	projects, err := cl.RegisteredProjects(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "zebra"}, projects)
}

func TestQueueEnqueuePendingClaim(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cl.Enqueue(ctx, cluster.FunctionAssignRewards, cluster.WorkerPayload{
			ProjectName:                   "messages",
			ShardID:                       fmt.Sprintf("%02b", i),
			LastProcessedTimestampUpdated: true,
		})
		require.NoError(t, err)
	}

	msgs, err := cl.Pending(ctx, cluster.FunctionAssignRewards)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	// Oldest first.
	var first cluster.WorkerPayload
	require.NoError(t, msgs[0].Decode(&first))
	require.Equal(t, "messages", first.ProjectName)
	require.Equal(t, "00", first.ShardID)
	require.True(t, first.LastProcessedTimestampUpdated)

	ok, err := cl.Claim(ctx, msgs[0])
	require.NoError(t, err)
	require.True(t, ok)

	// Second claim of the same message loses the race.
	ok, err = cl.Claim(ctx, msgs[0])
	require.NoError(t, err)
	require.False(t, ok)

	depth, err := cl.QueueDepth(ctx, cluster.FunctionAssignRewards)
	require.NoError(t, err)
	require.Equal(t, int64(2), depth)
}

func TestQueuePayloadWireNames(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	_, err := cl.Enqueue(ctx, cluster.FunctionReshard, cluster.ReshardPayload{
		ProjectName:          "messages",
		ShardID:              "0",
		ForceContinueReshard: true,
	})
	require.NoError(t, err)

	msgs, err := cl.Pending(ctx, cluster.FunctionReshard)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// Field names are the wire contract with the reshard subsystem.
	var raw map[string]interface{}
	require.NoError(t, msgs[0].Decode(&raw))
	require.Equal(t, "messages", raw["project_name"])
	require.Equal(t, "0", raw["shard_id"])
	require.Equal(t, true, raw["force_continue_reshard"])
}

func TestDispatchLockSingleFlight(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	lock, err := cl.AcquireLock(ctx, cluster.DispatchLock, 30)
	require.NoError(t, err)

	_, err = cl.AcquireLock(ctx, cluster.DispatchLock, 30)
	require.ErrorIs(t, err, cluster.ErrLockHeld)

	require.NoError(t, lock.Release(ctx))

	lock, err = cl.AcquireLock(ctx, cluster.DispatchLock, 30)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

func TestWorkerRegistrationAndHeartbeat(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	workerID, err := cl.RegisterWorker(ctx, cluster.WorkerInfo{Hostname: "testhost", MaxParallel: 4})
	require.NoError(t, err)
	require.NotEmpty(t, workerID)

	workers, err := cl.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, workerID, workers[0].ID)
	require.Equal(t, "testhost", workers[0].Hostname)

	require.NoError(t, cl.HeartbeatWorker(ctx, workerID))
	require.Error(t, cl.HeartbeatWorker(ctx, "no-such-worker"))
}

func TestWorkerMetricsRoundTrip(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	workerID, err := cl.RegisterWorker(ctx, cluster.WorkerInfo{Hostname: "testhost"})
	require.NoError(t, err)

	metrics := &cluster.WorkerMetrics{}
	metrics.IncCompleted()
	metrics.IncCompleted()
	metrics.IncFailed()
	metrics.AddRecordsWritten(10)
	metrics.AddProcessingTime(1500 * time.Millisecond)

	require.NoError(t, cl.SendMetrics(ctx, workerID, metrics))

	view, err := cl.GetWorkerMetrics(ctx, workerID)
	require.NoError(t, err)
	require.Equal(t, int64(2), view.PassesCompleted)
	require.Equal(t, int64(1), view.PassesFailed)
	require.Equal(t, int64(10), view.RecordsWritten)
	require.Equal(t, (1500 * time.Millisecond).Nanoseconds(), view.ProcessingTimeNs)
	require.False(t, view.LastUpdated.IsZero())

	// Metric subkeys must not show up as phantom workers.
	workers, err := cl.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
}

func TestGetClusterStatus(t *testing.T) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testcluster.SeedShards(t, cl, "messages", map[string]time.Time{
		"0":  now,
		"00": now,
		"01": now,
		"1":  now.Add(-time.Hour),
	})
	testcluster.SeedShards(t, cl, "songs", map[string]time.Time{
		"0": now,
	})

	_, err := cl.RegisterWorker(ctx, cluster.WorkerInfo{Hostname: "testhost"})
	require.NoError(t, err)
	_, err = cl.Enqueue(ctx, cluster.FunctionAssignRewards, cluster.WorkerPayload{ProjectName: "messages", ShardID: "1"})
	require.NoError(t, err)

	status, err := cl.GetClusterStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status.Projects, 2)
	require.Equal(t, "messages", status.Projects[0].Name)
	require.Equal(t, "songs", status.Projects[1].Name)
	require.Len(t, status.Workers, 1)
	require.Equal(t, int64(1), status.QueueDepths[cluster.FunctionAssignRewards])
	require.Equal(t, int64(0), status.QueueDepths[cluster.FunctionReshard])

	classes := map[string]string{}
	for _, shard := range status.Projects[0].Shards {
		classes[shard.ShardID] = shard.Class
	}
	require.Equal(t, cluster.ShardClassParent, classes["0"])
	require.Equal(t, cluster.ShardClassChild, classes["00"])
	require.Equal(t, cluster.ShardClassChild, classes["01"])
	require.Equal(t, cluster.ShardClassStable, classes["1"])
}
