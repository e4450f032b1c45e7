// Package customize holds the user-pluggable transforms the reward-assignment
// core calls at fixed points, and the static per-project configuration
// (reward window, project/model mappings, hyperparameters).
package customize

import (
	"fmt"

	"github.com/chtzvt/rewardd/internal/record"
)

// Hooks is the capability interface for deployment-specific behavior.
// Implementations are treated as pure unless they return an error; an error
// aborts the current unit of work (the history-id group or the whole pass,
// depending on the call site).
type Hooks interface {
	// ModelNameForAction extracts the model discriminator (the "domain")
	// from a decision's fields. The writer maps it to a model via
	// Config.ModelForDomain.
	ModelNameForAction(action map[string]interface{}) string

	// ModifyHistoryRecords replaces a shard's loaded records before
	// grouping. Timestamps and history ids must survive unchanged.
	ModifyHistoryRecords(project string, records []record.History) ([]record.History, error)

	// ModifyRewardedAction gets the last word on each output record.
	ModifyRewardedAction(project string, r record.Rewarded) (record.Rewarded, error)

	// ActionRecordsFromHistoryRecord turns one history record plus its
	// inferred decisions into the decisions the join should see. A nil
	// result means no decisions.
	ActionRecordsFromHistoryRecord(project string, rec record.History, inferred []record.History) ([]record.History, error)

	// RewardsRecordFromHistoryRecord extracts a rewards record from a
	// history record, or nil when the record carries no rewards.
	RewardsRecordFromHistoryRecord(project string, rec record.History) (record.History, error)

	// ProjectName routes an ingestion event to a project.
	ProjectName(event map[string]interface{}) string
}

var registry = make(map[string]Hooks)

func Register(name string, h Hooks) {
	registry[name] = h
}

func ForName(name string) (Hooks, error) {
	h, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("hooks not found: %s", name)
	}
	return h, nil
}
