package assign

import (
	"fmt"
	"sort"
	"time"

	"github.com/chtzvt/rewardd/internal/record"
)

// timelineItem is one element of the merged decision/rewards sequence.
// Exactly one of decision and rewards is set.
type timelineItem struct {
	date     time.Time
	decision *record.Decision
	rewards  *record.RewardsRecord
}

// JoinRewards walks decisions and rewards in time order and credits each
// reward value to the decisions listening on its key whose window is still
// open. Decisions are mutated in place; their input order is preserved for
// the caller.
//
// A decision's window is half-open: a reward at exactly WindowEnd does not
// credit it. Expired listeners are dropped the first time a later reward
// touches their key, which keeps the walk amortized linear.
func JoinRewards(decisions []*record.Decision, rewards []*record.RewardsRecord) error {
	if len(rewards) == 0 {
		return nil
	}

	timeline := make([]timelineItem, 0, len(decisions)+len(rewards))
	for _, d := range decisions {
		timeline = append(timeline, timelineItem{date: d.Date, decision: d})
	}
	for _, r := range rewards {
		timeline = append(timeline, timelineItem{date: r.Date, rewards: r})
	}
	// Stable sort with decisions appended first, so a reward at the same
	// instant as a decision still lands on it.
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].date.Before(timeline[j].date)
	})

	listeners := make(map[string][]*record.Decision)
	for _, item := range timeline {
		if item.decision != nil {
			key := item.decision.ListenKey()
			listeners[key] = append(listeners[key], item.decision)
			continue
		}

		r := item.rewards
		keys := make([]string, 0, len(r.Values))
		for key := range r.Values {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := r.Values[key]
			live := listeners[key]
			// Reverse so in-place removal never skips a listener.
			for i := len(live) - 1; i >= 0; i-- {
				d := live[i]
				if !r.Date.Before(d.WindowEnd) {
					live = append(live[:i], live[i+1:]...)
					continue
				}
				v, err := record.CoerceReward(value)
				if err != nil {
					return fmt.Errorf("rewards record %s key %q: %w", r.Timestamp, key, err)
				}
				d.Credit(v)
			}
			listeners[key] = live
		}
	}
	return nil
}
