package naming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC)

func TestHistoryKeyRoundTrip(t *testing.T) {
	key := HistoryKey("messages", "01", testDate, "abc.jsonl.gz")
	require.Equal(t, "history/messages/01/2023-06-15/abc.jsonl.gz", key)
	require.True(t, IsHistoryKey(key))

	project, shard, datePath, name, err := ParseHistoryKey(key)
	require.NoError(t, err)
	require.Equal(t, "messages", project)
	require.Equal(t, "01", shard)
	require.Equal(t, "history/messages/01/2023-06-15", datePath)
	require.Equal(t, "abc.jsonl.gz", name)
}

func TestIsHistoryKey(t *testing.T) {
	require.True(t, IsHistoryKey("history/p/0/2023-01-01/x.jsonl.gz"))
	require.False(t, IsHistoryKey("incoming/p/0/2023-01-01/x.jsonl.gz.json"))
	require.False(t, IsHistoryKey("history/p/0/x.jsonl.gz"))
	require.False(t, IsHistoryKey("history/p/0/2023-01-01/x/y.jsonl.gz"))
	require.False(t, IsHistoryKey("history/p/notashard/2023-01-01/x.jsonl.gz"))
	require.False(t, IsHistoryKey("history/p/0/not-a-date/x.jsonl.gz"))
	require.False(t, IsHistoryKey("history//0/2023-01-01/x.jsonl.gz"))
}

func TestIncomingKeyRoundTrip(t *testing.T) {
	historyKey := "history/messages/01/2023-06-15/abc.jsonl.gz"
	marker := IncomingKeyForHistoryKey(historyKey)
	require.Equal(t, "incoming/messages/01/2023-06-15/abc.jsonl.gz.json", marker)
	require.Equal(t, historyKey, HistoryKeyForIncomingKey(marker))
}

func TestRewardedDecisionKey(t *testing.T) {
	key := RewardedDecisionKey("messages", "v1", "01", testDate)
	require.Equal(t, "rewarded_decisions/messages/v1/01/2023-06-15/part-00000.jsonl.gz", key)

	// Pure function of its coordinates
	again := RewardedDecisionKey("messages", "v1", "01", testDate.Add(3*time.Hour))
	require.Equal(t, key, again)
}

func TestConsolidatedHistoryKey(t *testing.T) {
	key := ConsolidatedHistoryKey("history/p/0/2023-01-01/abc.jsonl.gz")
	require.Equal(t, "history/p/0/2023-01-01/consolidated.jsonl.gz", key)

	// Canonical key maps to itself
	require.Equal(t, key, ConsolidatedHistoryKey(key))
}

func TestGroupKeysByDatePath(t *testing.T) {
	keys := []string{
		"history/p/0/2023-01-02/b.jsonl.gz",
		"history/p/0/2023-01-01/z.jsonl.gz",
		"history/p/0/2023-01-01/a.jsonl.gz",
	}
	groups := GroupKeysByDatePath(keys)
	require.Len(t, groups, 2)
	require.Equal(t, []string{
		"history/p/0/2023-01-01/a.jsonl.gz",
		"history/p/0/2023-01-01/z.jsonl.gz",
	}, groups["history/p/0/2023-01-01"])

	require.Equal(t, []string{
		"history/p/0/2023-01-01",
		"history/p/0/2023-01-02",
	}, SortedDatePaths(groups))
}

func TestShardsFromKeys(t *testing.T) {
	keys := []string{
		"history/p/01/2023-01-01/a.jsonl.gz",
		"history/p/01/2023-01-02/b.jsonl.gz",
		"history/p/1/2023-01-01/c.jsonl.gz",
		"history/p/00/2023-01-01/d.jsonl.gz",
		"history/p",
	}
	require.Equal(t, []string{"00", "01", "1"}, ShardsFromKeys(keys))
}

func TestIsShardID(t *testing.T) {
	require.True(t, IsShardID("0"))
	require.True(t, IsShardID("1"))
	require.True(t, IsShardID("0110"))
	require.False(t, IsShardID(""))
	require.False(t, IsShardID("2"))
	require.False(t, IsShardID("0x1"))
	long := make([]byte, 65)
	for i := range long {
		long[i] = '0'
	}
	require.False(t, IsShardID(string(long)))
}

func TestIsAncestorShard(t *testing.T) {
	require.True(t, IsAncestorShard("0", "01"))
	require.True(t, IsAncestorShard("0", "0110"))
	require.False(t, IsAncestorShard("01", "0"))
	require.False(t, IsAncestorShard("0", "0"))
	require.False(t, IsAncestorShard("1", "01"))
}

func TestShardForHistoryID(t *testing.T) {
	shard := ShardForHistoryID("user-1234", 4)
	require.Len(t, shard, 4)
	require.True(t, IsShardID(shard))

	// Deterministic
	require.Equal(t, shard, ShardForHistoryID("user-1234", 4))

	// Widening the shard space preserves the prefix (top bits are stable)
	wider := ShardForHistoryID("user-1234", 6)
	require.Len(t, wider, 6)
	require.True(t, IsAncestorShard(shard, wider))

	// Clamping
	require.Len(t, ShardForHistoryID("x", 0), 1)
	require.Len(t, ShardForHistoryID("x", 99), 64)
}

func TestMarkerBody(t *testing.T) {
	body := MarkerBody("history/p/0/2023-01-01/a.jsonl.gz")
	key, err := ParseMarkerBody(body)
	require.NoError(t, err)
	require.Equal(t, "history/p/0/2023-01-01/a.jsonl.gz", key)

	_, err = ParseMarkerBody([]byte("{}"))
	require.Error(t, err)
	_, err = ParseMarkerBody([]byte("not json"))
	require.Error(t, err)
}

func TestDatePath(t *testing.T) {
	require.Equal(t, "2023-06-15", DatePath(testDate))
	// Always UTC
	est := time.FixedZone("EST", -5*3600)
	require.Equal(t, "2023-06-16", DatePath(time.Date(2023, 6, 15, 23, 0, 0, 0, est)))
}
