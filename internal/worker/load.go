package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chtzvt/rewardd/internal/naming"
	"github.com/chtzvt/rewardd/internal/record"
	"github.com/chtzvt/rewardd/internal/store"
	"golang.org/x/sync/errgroup"
)

type LoadResult struct {
	Records      []record.History
	Duplicates   int64
	ObjectsRead  int
	Consolidated int
}

// messageIDSet is the pass-wide dedup set. Date-path groups load in parallel,
// so membership is guarded.
type messageIDSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (s *messageIDSet) insert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	return true
}

// LoadHistory streams the stale history objects grouped by date-path. Groups
// load in parallel but records assemble in sorted date-path order, so the
// same inputs always produce the same record sequence. Records with a missing
// or repeated message id are dropped and counted.
//
// A date-path holding more than one object is rewritten to its canonical
// consolidated key (kept lines, byte for byte) and the originals deleted, put
// first. A crash between put and delete leaves both generations visible; the
// next pass dedupes the repeated message ids and consolidates again.
func LoadHistory(ctx context.Context, st store.Store, objects []store.Object) (*LoadResult, error) {
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	groups := naming.GroupKeysByDatePath(keys)
	paths := naming.SortedDatePaths(groups)

	type groupResult struct {
		records      []record.History
		duplicates   int64
		consolidated bool
	}
	results := make([]groupResult, len(paths))
	seen := &messageIDSet{seen: map[string]bool{}}

	g, gctx := errgroup.WithContext(ctx)
	for i, datePath := range paths {
		i, groupKeys := i, groups[datePath]
		g.Go(func() error {
			var res groupResult
			var keptLines [][]byte
			for _, key := range groupKeys {
				err := store.ReadJSONLines(gctx, st, key, func(line []byte) error {
					dec := json.NewDecoder(bytes.NewReader(line))
					dec.UseNumber()
					var h record.History
					if err := dec.Decode(&h); err != nil {
						return fmt.Errorf("object %s: %w", key, err)
					}
					id, ok := h.MessageID()
					if !ok || !seen.insert(id) {
						res.duplicates++
						return nil
					}
					res.records = append(res.records, h)
					keptLines = append(keptLines, append([]byte(nil), line...))
					return nil
				})
				if err != nil {
					return err
				}
			}
			if len(groupKeys) > 1 {
				canonical := naming.ConsolidatedHistoryKey(groupKeys[0])
				if err := store.WriteJSONLines(gctx, st, canonical, keptLines); err != nil {
					return fmt.Errorf("consolidate %s: %w", canonical, err)
				}
				originals := make([]string, 0, len(groupKeys))
				for _, key := range groupKeys {
					if key != canonical {
						originals = append(originals, key)
					}
				}
				if err := st.Delete(gctx, originals...); err != nil {
					return fmt.Errorf("consolidate %s: %w", canonical, err)
				}
				res.consolidated = true
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &LoadResult{ObjectsRead: len(keys)}
	for _, res := range results {
		out.Records = append(out.Records, res.records...)
		out.Duplicates += res.duplicates
		if res.consolidated {
			out.Consolidated++
		}
	}
	return out, nil
}
