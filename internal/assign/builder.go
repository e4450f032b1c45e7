// Package assign turns loaded history records into rewarded decisions: it
// derives decision and rewards records per history id, then runs the temporal
// join that credits each reward to the decisions still inside their window.
package assign

import (
	"fmt"
	"sort"
	"time"

	"github.com/chtzvt/rewardd/internal/customize"
	"github.com/chtzvt/rewardd/internal/record"
)

type Builder struct {
	hooks  customize.Hooks
	window time.Duration
}

func NewBuilder(hooks customize.Hooks, window time.Duration) *Builder {
	return &Builder{hooks: hooks, window: window}
}

// Build groups records by history id and builds each group independently.
// A poisoned group is reported in failed and skipped; the rest of the shard
// still produces output. Groups are processed in sorted key order so repeated
// runs over the same input emit identical output.
func (b *Builder) Build(project string, records []record.History) (decisions []*record.Decision, failed map[string]error) {
	groups := make(map[string][]record.History)
	for _, rec := range records {
		historyID, _ := rec.HistoryID()
		groups[historyID] = append(groups[historyID], rec)
	}
	keys := make([]string, 0, len(groups))
	for historyID := range groups {
		keys = append(keys, historyID)
	}
	sort.Strings(keys)

	failed = make(map[string]error)
	for _, historyID := range keys {
		if historyID == "" {
			failed[historyID] = fmt.Errorf("history records missing history_id")
			continue
		}
		groupDecisions, err := b.buildGroup(project, historyID, groups[historyID])
		if err != nil {
			failed[historyID] = err
			continue
		}
		decisions = append(decisions, groupDecisions...)
	}
	return decisions, failed
}

// buildGroup derives the decision and rewards records for one history id and
// joins them. Any error poisons the whole group.
func (b *Builder) buildGroup(project, historyID string, records []record.History) ([]*record.Decision, error) {
	var decisions []*record.Decision
	var rewards []*record.RewardsRecord

	for _, rec := range records {
		ts, ok := rec.Timestamp()
		if !ok {
			return nil, fmt.Errorf("record missing timestamp")
		}
		date, err := record.ParseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		messageID, ok := rec.MessageID()
		if !ok {
			return nil, fmt.Errorf("record at %s missing message_id", ts)
		}

		// A record may both be a decision and carry embedded ones.
		var inferred []record.History
		if rec.TypeName() == record.TypeDecision {
			inferred = append(inferred, rec)
		}
		embedded, err := rec.EmbeddedDecisions()
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", messageID, err)
		}
		inferred = append(inferred, embedded...)

		actions, err := b.hooks.ActionRecordsFromHistoryRecord(project, rec, inferred)
		if err != nil {
			return nil, fmt.Errorf("action records hook: %w", err)
		}
		for i, action := range actions {
			if id, ok := action.HistoryID(); ok && id != historyID {
				return nil, fmt.Errorf("action record %s: history_id %q does not match group %q", messageID, id, historyID)
			}
			decisionMessageID := messageID
			if i > 0 {
				decisionMessageID = fmt.Sprintf("%s-%d", messageID, i)
			}
			rewardKey, _ := action["reward_key"].(string)
			decisions = append(decisions, &record.Decision{
				HistoryID: historyID,
				MessageID: decisionMessageID,
				Timestamp: ts,
				Date:      date,
				RewardKey: rewardKey,
				Fields:    action,
				WindowEnd: date.Add(b.window),
			})
		}

		rewardsRec, err := b.hooks.RewardsRecordFromHistoryRecord(project, rec)
		if err != nil {
			return nil, fmt.Errorf("rewards record hook: %w", err)
		}
		if rewardsRec != nil {
			if id, ok := rewardsRec.HistoryID(); ok && id != historyID {
				return nil, fmt.Errorf("rewards record %s: history_id %q does not match group %q", messageID, id, historyID)
			}
			values, err := rewardsRec.RewardsMap()
			if err != nil {
				return nil, fmt.Errorf("rewards record %s: %w", messageID, err)
			}
			if values == nil {
				return nil, fmt.Errorf("rewards record %s has no rewards mapping", messageID)
			}
			rewards = append(rewards, &record.RewardsRecord{
				HistoryID: historyID,
				Timestamp: ts,
				Date:      date,
				Values:    values,
			})
		}
	}

	if err := JoinRewards(decisions, rewards); err != nil {
		return nil, err
	}
	return decisions, nil
}
