package customize

import (
	"github.com/chtzvt/rewardd/internal/record"
)

// IdentityHooks passes everything through untouched. It is the default for
// deployments without custom transforms and the baseline for tests.
type IdentityHooks struct{}

func (IdentityHooks) ModelNameForAction(action map[string]interface{}) string {
	domain, _ := action["domain"].(string)
	return domain
}

func (IdentityHooks) ModifyHistoryRecords(project string, records []record.History) ([]record.History, error) {
	return records, nil
}

func (IdentityHooks) ModifyRewardedAction(project string, r record.Rewarded) (record.Rewarded, error) {
	return r, nil
}

func (IdentityHooks) ActionRecordsFromHistoryRecord(project string, rec record.History, inferred []record.History) ([]record.History, error) {
	return inferred, nil
}

func (IdentityHooks) RewardsRecordFromHistoryRecord(project string, rec record.History) (record.History, error) {
	if rec["rewards"] != nil {
		return rec, nil
	}
	return nil, nil
}

func (IdentityHooks) ProjectName(event map[string]interface{}) string {
	name, _ := event["project_name"].(string)
	return name
}

func init() {
	Register("identity", IdentityHooks{})
}
