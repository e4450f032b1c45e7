// Package naming maps logical identifiers (project, shard, history id, date)
// to object-store keys and back. Everything here is a pure function; callers
// compose these with store listings.
//
// Layout under the records bucket:
//
//	history/<project>/<shard>/<yyyy-MM-dd>/<name>.jsonl.gz
//	incoming/<project>/<shard>/<yyyy-MM-dd>/<name>.jsonl.gz.json
//	rewarded_decisions/<project>/<model>/<shard>/<yyyy-MM-dd>/part-00000.jsonl.gz
package naming

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	historyRoot  = "history"
	incomingRoot = "incoming"
	rewardedRoot = "rewarded_decisions"

	// markerSuffix turns a history key into its incoming-marker key.
	markerSuffix = ".json"

	// ConsolidatedName is the canonical object name a date path's objects
	// collapse into.
	ConsolidatedName = "consolidated.jsonl.gz"

	// rewardedPartName makes rewarded-decision keys a pure function of their
	// coordinates: one canonical object per (project, model, shard, date).
	rewardedPartName = "part-00000.jsonl.gz"

	datePathLayout = "2006-01-02"
)

func HistoryPrefix(project string) string {
	return historyRoot + "/" + project + "/"
}

func HistoryShardPrefix(project, shard string) string {
	return historyRoot + "/" + project + "/" + shard + "/"
}

func IncomingPrefix(project string) string {
	return incomingRoot + "/" + project + "/"
}

func IncomingShardPrefix(project, shard string) string {
	return incomingRoot + "/" + project + "/" + shard + "/"
}

// DatePath renders a timestamp's calendar-date bucket (UTC).
func DatePath(t time.Time) string {
	return t.UTC().Format(datePathLayout)
}

func HistoryKey(project, shard string, date time.Time, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", historyRoot, project, shard, DatePath(date), name)
}

// IncomingKeyForHistoryKey returns the marker key whose presence schedules
// historyKey for (re)processing.
func IncomingKeyForHistoryKey(historyKey string) string {
	return incomingRoot + "/" + strings.TrimPrefix(historyKey, historyRoot+"/") + markerSuffix
}

// HistoryKeyForIncomingKey inverts IncomingKeyForHistoryKey.
func HistoryKeyForIncomingKey(incomingKey string) string {
	return historyRoot + "/" + strings.TrimSuffix(strings.TrimPrefix(incomingKey, incomingRoot+"/"), markerSuffix)
}

func RewardedDecisionKey(project, model, shard string, date time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s", rewardedRoot, project, model, shard, DatePath(date), rewardedPartName)
}

// ConsolidatedHistoryKey returns the canonical consolidated key for the date
// path any member key of the group lives under.
func ConsolidatedHistoryKey(anyGroupKey string) string {
	return path.Dir(anyGroupKey) + "/" + ConsolidatedName
}

// IsHistoryKey reports whether key names a history object:
// history/<project>/<shard>/<date>/<name>.
func IsHistoryKey(key string) bool {
	if !strings.HasPrefix(key, historyRoot+"/") {
		return false
	}
	parts := strings.Split(key, "/")
	if len(parts) != 5 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	if !IsShardID(parts[2]) {
		return false
	}
	_, err := time.Parse(datePathLayout, parts[3])
	return err == nil
}

// ParseHistoryKey splits a history key into its coordinates. The returned
// datePath is the full directory (usable as a group key).
func ParseHistoryKey(key string) (project, shard, datePath, name string, err error) {
	if !IsHistoryKey(key) {
		return "", "", "", "", fmt.Errorf("not a history key: %s", key)
	}
	parts := strings.Split(key, "/")
	return parts[1], parts[2], path.Dir(key), parts[4], nil
}

// GroupKeysByDatePath buckets keys by their directory (the calendar-date
// path). Keys within a group come back sorted.
func GroupKeysByDatePath(keys []string) map[string][]string {
	groups := map[string][]string{}
	for _, k := range keys {
		dir := path.Dir(k)
		groups[dir] = append(groups[dir], k)
	}
	for _, g := range groups {
		sort.Strings(g)
	}
	return groups
}

// SortedDatePaths returns the group keys in ascending order.
func SortedDatePaths(groups map[string][]string) []string {
	paths := make([]string, 0, len(groups))
	for p := range groups {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ShardsFromKeys extracts the distinct shard ids named by history or incoming
// keys, sorted. Keys that don't carry a shard segment are skipped.
func ShardsFromKeys(keys []string) []string {
	seen := map[string]bool{}
	for _, k := range keys {
		parts := strings.Split(k, "/")
		if len(parts) < 3 {
			continue
		}
		if !IsShardID(parts[2]) {
			continue
		}
		seen[parts[2]] = true
	}
	shards := make([]string, 0, len(seen))
	for s := range seen {
		shards = append(shards, s)
	}
	sort.Strings(shards)
	return shards
}

// IsShardID reports whether s is a valid shard id: a non-empty bitstring of
// at most 64 bits.
func IsShardID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return true
}

// IsAncestorShard reports whether ancestor strictly contains descendant:
// resharding splits s into s+"0" and s+"1", so ancestry is strict prefixing.
func IsAncestorShard(ancestor, descendant string) bool {
	return len(ancestor) < len(descendant) && strings.HasPrefix(descendant, ancestor)
}

// ShardForHistoryID maps a history id to the shard that owns it: the top
// bits of xxhash64 of the id, rendered as a bitstring. bits clamps to [1, 64].
func ShardForHistoryID(historyID string, bits int) string {
	if bits < 1 {
		bits = 1
	}
	if bits > 64 {
		bits = 64
	}
	h := xxhash.Sum64String(historyID)
	top := h >> (64 - uint(bits))
	return fmt.Sprintf("%0*b", bits, top)
}

// MarkerBody renders an incoming marker's body, which records the history
// key the marker refers to.
func MarkerBody(historyKey string) []byte {
	b, _ := json.Marshal(map[string]string{"s3_key": historyKey})
	return b
}

// ParseMarkerBody extracts the history key from a marker body.
func ParseMarkerBody(body []byte) (string, error) {
	var m map[string]string
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("invalid marker body: %w", err)
	}
	key := m["s3_key"]
	if key == "" {
		return "", fmt.Errorf("marker body missing s3_key")
	}
	return key, nil
}
