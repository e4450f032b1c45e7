package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/chtzvt/rewardd/internal/customize"
	"github.com/chtzvt/rewardd/internal/naming"
	"github.com/chtzvt/rewardd/internal/record"
	"github.com/chtzvt/rewardd/internal/store"
	"golang.org/x/sync/errgroup"
)

type WriteStats struct {
	Emitted        int64
	NonZeroRewards int64
	MaxReward      float64
	MeanReward     float64
	OutputKeys     int
}

// Writer projects rewarded decisions, buffers them per output key, and
// flushes each key as one compressed object. The domain→model cache merges
// and lives for a single pass.
type Writer struct {
	store      store.Store
	hooks      customize.Hooks
	config     *customize.Config
	modelCache map[string]map[string]string
}

func NewWriter(st store.Store, hooks customize.Hooks, cfg *customize.Config) *Writer {
	return &Writer{
		store:      st,
		hooks:      hooks,
		config:     cfg,
		modelCache: map[string]map[string]string{},
	}
}

func (w *Writer) modelFor(project, domain string) (string, error) {
	if model, ok := w.modelCache[project][domain]; ok {
		return model, nil
	}
	model, err := w.config.ModelForDomain(project, domain)
	if err != nil {
		return "", err
	}
	if w.modelCache[project] == nil {
		w.modelCache[project] = map[string]string{}
	}
	w.modelCache[project][domain] = model
	return model, nil
}

// WriteRewardedDecisions runs the output stage. Any error here is fatal to
// the pass: markers must survive so the next dispatch retries.
func (w *Writer) WriteRewardedDecisions(ctx context.Context, project, shardID string, decisions []*record.Decision) (*WriteStats, error) {
	buffers := map[string][][]byte{}
	stats := &WriteStats{}
	var rewardSum float64
	var credited int64

	for _, d := range decisions {
		projected := d.Projected()
		modified, err := w.hooks.ModifyRewardedAction(project, projected)
		if err != nil {
			return nil, fmt.Errorf("modify rewarded action hook: %w", err)
		}
		if modified.Timestamp != projected.Timestamp ||
			modified.MessageID != projected.MessageID ||
			modified.HistoryID != projected.HistoryID {
			return nil, fmt.Errorf("hook changed identity fields of decision %s", projected.MessageID)
		}
		if err := record.ValidateRewarded(modified); err != nil {
			return nil, fmt.Errorf("decision %s: %w", modified.MessageID, err)
		}

		domain := w.hooks.ModelNameForAction(map[string]interface{}(d.Fields))
		model, err := w.modelFor(project, domain)
		if err != nil {
			return nil, err
		}
		outputKey := naming.RewardedDecisionKey(project, model, shardID, d.Date)

		line, err := encodeJSONLine(modified)
		if err != nil {
			return nil, fmt.Errorf("decision %s: %w", modified.MessageID, err)
		}
		buffers[outputKey] = append(buffers[outputKey], line)

		stats.Emitted++
		if modified.Reward != nil {
			v := *modified.Reward
			rewardSum += v
			if v != 0 {
				stats.NonZeroRewards++
			}
			if credited == 0 || v > stats.MaxReward {
				stats.MaxReward = v
			}
			credited++
		}
	}
	if stats.Emitted > 0 {
		stats.MeanReward = rewardSum / float64(stats.Emitted)
	}
	stats.OutputKeys = len(buffers)

	g, gctx := errgroup.WithContext(ctx)
	for outputKey, lines := range buffers {
		outputKey, lines := outputKey, lines
		g.Go(func() error {
			return store.WriteJSONLines(gctx, w.store, outputKey, lines)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("write rewarded decisions: %w", err)
	}
	return stats, nil
}

func encodeJSONLine(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
