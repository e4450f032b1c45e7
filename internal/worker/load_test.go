package worker_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chtzvt/rewardd/internal/naming"
	"github.com/chtzvt/rewardd/internal/store"
	"github.com/chtzvt/rewardd/internal/worker"
	"github.com/stretchr/testify/require"
)

func newLoadStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.New("disk", map[string]interface{}{"path": t.TempDir()}, nil)
	require.NoError(t, err)
	return st
}

func writeHistory(t *testing.T, st store.Store, shard string, date time.Time, name string, lines ...string) {
	t.Helper()
	raw := make([][]byte, len(lines))
	for i, line := range lines {
		raw[i] = []byte(line)
	}
	key := naming.HistoryKey("messages", shard, date, name)
	require.NoError(t, store.WriteJSONLines(context.Background(), st, key, raw))
}

func loadShard(t *testing.T, st store.Store, shard string) *worker.LoadResult {
	t.Helper()
	ctx := context.Background()
	objects, err := st.List(ctx, naming.HistoryShardPrefix("messages", shard))
	require.NoError(t, err)
	result, err := worker.LoadHistory(ctx, st, objects)
	require.NoError(t, err)
	return result
}

func messageIDs(t *testing.T, result *worker.LoadResult) []string {
	t.Helper()
	ids := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		id, ok := rec.MessageID()
		require.True(t, ok)
		ids = append(ids, id)
	}
	return ids
}

func TestLoadHistoryAssemblesDatePathsInOrder(t *testing.T) {
	st := newLoadStore(t)
	day1 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC)

	// Seed the later day first so ordering can't come from write order.
	writeHistory(t, st, "0", day2, "events.jsonl.gz",
		fmt.Sprintf(`{"type":"decision","history_id":"h","message_id":"later","timestamp":%q}`, day2.Format(time.RFC3339Nano)),
	)
	writeHistory(t, st, "0", day1, "events.jsonl.gz",
		fmt.Sprintf(`{"type":"decision","history_id":"h","message_id":"earlier","timestamp":%q}`, day1.Format(time.RFC3339Nano)),
	)

	result := loadShard(t, st, "0")
	require.Equal(t, 2, result.ObjectsRead)
	require.Equal(t, []string{"earlier", "later"}, messageIDs(t, result))
}

func TestLoadHistoryDeduplicatesByMessageID(t *testing.T) {
	st := newLoadStore(t)
	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	line := fmt.Sprintf(`{"type":"decision","history_id":"h","message_id":"m","timestamp":%q}`, day.Format(time.RFC3339Nano))

	writeHistory(t, st, "0", day, "a.jsonl.gz", line)
	writeHistory(t, st, "0", day, "b.jsonl.gz", line)

	result := loadShard(t, st, "0")
	require.Len(t, result.Records, 1)
	require.Equal(t, int64(1), result.Duplicates)
}

func TestLoadHistoryCountsMissingMessageIDAsDuplicate(t *testing.T) {
	st := newLoadStore(t)
	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	writeHistory(t, st, "0", day, "events.jsonl.gz",
		`{"type":"decision","history_id":"h","timestamp":"2023-06-01T00:00:00Z"}`,
		`{"type":"decision","history_id":"h","message_id":"","timestamp":"2023-06-01T00:00:00Z"}`,
		`{"type":"decision","history_id":"h","message_id":"kept","timestamp":"2023-06-01T00:00:00Z"}`,
	)

	result := loadShard(t, st, "0")
	require.Len(t, result.Records, 1)
	require.Equal(t, int64(2), result.Duplicates)
}

func TestLoadHistoryConsolidatesOnlyMultiObjectPaths(t *testing.T) {
	st := newLoadStore(t)
	ctx := context.Background()
	day1 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC)

	writeHistory(t, st, "0", day1, "a.jsonl.gz",
		`{"type":"decision","history_id":"h","message_id":"m1","timestamp":"2023-06-01T00:00:00Z"}`,
	)
	writeHistory(t, st, "0", day1, "b.jsonl.gz",
		`{"type":"decision","history_id":"h","message_id":"m2","timestamp":"2023-06-01T00:01:00Z"}`,
	)
	writeHistory(t, st, "0", day2, "single.jsonl.gz",
		`{"type":"decision","history_id":"h","message_id":"m3","timestamp":"2023-06-02T00:00:00Z"}`,
	)

	result := loadShard(t, st, "0")
	require.Equal(t, 3, result.ObjectsRead)
	require.Equal(t, 1, result.Consolidated)

	objects, err := st.List(ctx, naming.HistoryShardPrefix("messages", "0"))
	require.NoError(t, err)
	require.Len(t, objects, 2)

	consolidated := naming.ConsolidatedHistoryKey(naming.HistoryKey("messages", "0", day1, "a.jsonl.gz"))
	require.Len(t, readLines(t, st, consolidated), 2)
	// The single-object path keeps its original name.
	require.Len(t, readLines(t, st, naming.HistoryKey("messages", "0", day2, "single.jsonl.gz")), 1)

	// A second load sees the consolidated layout and is a no-op.
	again := loadShard(t, st, "0")
	require.Equal(t, 2, again.ObjectsRead)
	require.Equal(t, 0, again.Consolidated)
	require.Len(t, again.Records, 3)
}

func TestLoadHistoryRejectsMalformedLines(t *testing.T) {
	st := newLoadStore(t)
	ctx := context.Background()
	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	writeHistory(t, st, "0", day, "events.jsonl.gz", `{not json`)

	objects, err := st.List(ctx, naming.HistoryShardPrefix("messages", "0"))
	require.NoError(t, err)
	_, err = worker.LoadHistory(ctx, st, objects)
	require.Error(t, err)
}

func TestLoadHistoryEmptyShard(t *testing.T) {
	st := newLoadStore(t)
	result, err := worker.LoadHistory(context.Background(), st, nil)
	require.NoError(t, err)
	require.Empty(t, result.Records)
	require.Equal(t, 0, result.ObjectsRead)
}
