package record

import (
	"fmt"
	"math"
)

// ValidateRewarded checks a rewarded decision before it is written out.
// Required fields must be present, the timestamp must parse, and the reward,
// when present, must be finite.
func ValidateRewarded(r Rewarded) error {
	if r.Timestamp == "" {
		return fmt.Errorf("rewarded decision missing timestamp")
	}
	if _, err := ParseTimestamp(r.Timestamp); err != nil {
		return fmt.Errorf("rewarded decision: %w", err)
	}
	if r.MessageID == "" {
		return fmt.Errorf("rewarded decision missing message_id")
	}
	if r.HistoryID == "" {
		return fmt.Errorf("rewarded decision missing history_id")
	}
	if r.Reward != nil && (math.IsNaN(*r.Reward) || math.IsInf(*r.Reward, 0)) {
		return fmt.Errorf("rewarded decision reward %v is not finite", *r.Reward)
	}
	return nil
}

// IsObjectNotArray reports whether v is a JSON object (as opposed to an
// array, scalar, or null).
func IsObjectNotArray(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, History:
		return true
	default:
		return false
	}
}
