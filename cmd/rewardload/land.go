package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/chtzvt/rewardd/cmd/rewardd/config"
	"github.com/chtzvt/rewardd/internal/customize"
	"github.com/chtzvt/rewardd/internal/naming"
	"github.com/chtzvt/rewardd/internal/store"
	"github.com/google/uuid"
)

type batchKey struct {
	project string
	shard   string
	date    time.Time // truncated to the calendar day, UTC
}

type batches map[batchKey][][]byte

func (b batches) add(project, shard string, ts time.Time, line []byte) {
	day := ts.UTC().Truncate(24 * time.Hour)
	key := batchKey{project: project, shard: shard, date: day}
	b[key] = append(b[key], line)
}

// land writes one history object plus its incoming marker per batch. The
// marker goes second so a crash cannot leave a marker pointing at nothing.
func land(ctx context.Context, st store.Store, b batches) (int, error) {
	written := 0
	for key, lines := range b {
		name := uuid.New().String() + ".jsonl.gz"
		historyKey := naming.HistoryKey(key.project, key.shard, key.date, name)
		if err := store.WriteJSONLines(ctx, st, historyKey, lines); err != nil {
			return written, fmt.Errorf("write %s: %w", historyKey, err)
		}
		markerKey := naming.IncomingKeyForHistoryKey(historyKey)
		if err := st.Put(ctx, markerKey, bytes.NewReader(naming.MarkerBody(historyKey))); err != nil {
			return written, fmt.Errorf("write marker %s: %w", markerKey, err)
		}
		written++
	}
	return written, nil
}

func loadTooling(cfgFile string) (*config.ClusterConfig, store.Store, *customize.Config, customize.Hooks, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	// No secrets store: the tool relies on ambient credentials.
	st, err := store.New(cfg.Storage.Backend, cfg.Storage.Options, nil)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("storage backend %q: %w", cfg.Storage.Backend, err)
	}
	custCfg, err := customize.LoadConfig(cfg.Customize.ConfigFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	hooks, err := customize.ForName(cfg.Customize.Hooks)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, st, custCfg, hooks, nil
}
