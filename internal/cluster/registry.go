package cluster

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// The last-processed registry is append-only: every mark writes a fresh entry
// under its own uuid, so concurrent markers can never regress the clock. Readers
// take the max per shard and compact the leftovers.

func (c *etcdCluster) shardsPrefix(project string) string {
	return path.Join(c.cfg.Prefix, "projects", project, "shards") + "/"
}

func (c *etcdCluster) UpdateShardLastProcessed(ctx context.Context, project, shardID string, ts time.Time) error {
	key := path.Join(c.cfg.Prefix, "projects", project, "shards", shardID, "last_processed", uuid.New().String())
	_, err := c.client.Put(ctx, key, ts.UTC().Format(time.RFC3339Nano))
	return err
}

type lastProcessedEntry struct {
	key string
	ts  time.Time
}

func (c *etcdCluster) readLastProcessed(ctx context.Context, project string) (map[string][]lastProcessedEntry, error) {
	prefix := c.shardsPrefix(project)
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	entries := make(map[string][]lastProcessedEntry)
	for _, kv := range resp.Kvs {
		parts := strings.Split(strings.TrimPrefix(string(kv.Key), prefix), "/")
		if len(parts) != 3 || parts[1] != "last_processed" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, string(kv.Value))
		if err != nil {
			continue
		}
		shardID := parts[0]
		entries[shardID] = append(entries[shardID], lastProcessedEntry{key: string(kv.Key), ts: ts})
	}
	return entries, nil
}

func maxEntry(entries []lastProcessedEntry) time.Time {
	max := entries[0].ts
	for _, e := range entries[1:] {
		if e.ts.After(max) {
			max = e.ts
		}
	}
	return max
}

// ShardLastProcessed returns the effective last-processed timestamp per shard
// without compacting. Safe for read-only consumers like the status API.
func (c *etcdCluster) ShardLastProcessed(ctx context.Context, project string) (map[string]time.Time, error) {
	entries, err := c.readLastProcessed(ctx, project)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(entries))
	for shardID, es := range entries {
		out[shardID] = maxEntry(es)
	}
	return out, nil
}

// LoadAndConsolidateShardLastProcessed reads the registry, takes the max per
// shard, and rewrites multi-entry shards down to a single canonical entry.
// Concurrent appends land under fresh uuids, so deleting only the observed
// keys cannot lose a mark.
func (c *etcdCluster) LoadAndConsolidateShardLastProcessed(ctx context.Context, project string) (map[string]time.Time, error) {
	entries, err := c.readLastProcessed(ctx, project)
	if err != nil {
		return nil, err
	}

	out := make(map[string]time.Time, len(entries))
	puts := []clientv3.Op{}
	dels := []clientv3.Op{}
	for shardID, es := range entries {
		max := maxEntry(es)
		out[shardID] = max
		if len(es) < 2 {
			continue
		}
		canonical := path.Join(c.cfg.Prefix, "projects", project, "shards", shardID, "last_processed", uuid.New().String())
		puts = append(puts, clientv3.OpPut(canonical, max.UTC().Format(time.RFC3339Nano)))
		for _, e := range es {
			dels = append(dels, clientv3.OpDelete(e.key))
		}
	}
	// Canonical entries go in before any delete so a crash mid-compaction
	// leaves the max intact.
	ops := append(puts, dels...)

	const batchSize = 128 // etcd transaction limit is 128 ops
	for start := 0; start < len(ops); start += batchSize {
		end := start + batchSize
		if end > len(ops) {
			end = len(ops)
		}
		if _, err := c.client.Txn(ctx).Then(ops[start:end]...).Commit(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *etcdCluster) RegisteredProjects(ctx context.Context) ([]string, error) {
	prefix := path.Join(c.cfg.Prefix, "projects") + "/"
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, kv := range resp.Kvs {
		parts := strings.Split(strings.TrimPrefix(string(kv.Key), prefix), "/")
		if len(parts) == 0 || parts[0] == "" {
			continue
		}
		seen[parts[0]] = true
	}
	projects := make([]string, 0, len(seen))
	for name := range seen {
		projects = append(projects, name)
	}
	sort.Strings(projects)
	return projects, nil
}
