// Package record defines the history, decision, and rewarded-decision record
// shapes shared by the loader, the reward join, and the output writer.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultRewardKey routes rewards from records that don't carry an explicit
// reward_key.
const DefaultRewardKey = "reward"

const (
	TypeDecision = "decision"
	TypeRewards  = "rewards"
)

// History is one raw history record as parsed from a JSONL line. Lines are
// decoded with UseNumber so numeric text survives a round trip untouched.
type History map[string]interface{}

func (h History) Timestamp() (string, bool) {
	s, ok := h["timestamp"].(string)
	return s, ok && s != ""
}

// ParsedTimestamp parses the record's timestamp field. A missing or
// unparseable timestamp is an error.
func (h History) ParsedTimestamp() (time.Time, error) {
	s, ok := h.Timestamp()
	if !ok {
		return time.Time{}, fmt.Errorf("history record missing timestamp")
	}
	return ParseTimestamp(s)
}

func (h History) MessageID() (string, bool) {
	s, ok := h["message_id"].(string)
	return s, ok && s != ""
}

func (h History) HistoryID() (string, bool) {
	s, ok := h["history_id"].(string)
	return s, ok && s != ""
}

func (h History) TypeName() string {
	s, _ := h["type"].(string)
	return s
}

// EmbeddedDecisions returns the record's embedded decisions sequence, or
// (nil, nil) when absent. A decisions field that is not a sequence of objects
// is an error.
func (h History) EmbeddedDecisions() ([]History, error) {
	raw, ok := h["decisions"]
	if !ok || raw == nil {
		return nil, nil
	}
	seq, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("decisions field is %T, want a sequence", raw)
	}
	out := make([]History, 0, len(seq))
	for _, el := range seq {
		m, ok := el.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("decisions element is %T, want an object", el)
		}
		out = append(out, History(m))
	}
	return out, nil
}

// RewardsMap returns the record's rewards mapping, or (nil, nil) when absent.
// A rewards field that is not a mapping is an error.
func (h History) RewardsMap() (map[string]interface{}, error) {
	raw, ok := h["rewards"]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("rewards field is %T, want a mapping", raw)
	}
	return m, nil
}

func (h History) Clone() History {
	out := make(History, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Decision is a derived decision record flowing through the temporal join.
// Timestamp keeps the original text and is never rewritten; Date is its
// parsed form used for ordering and window arithmetic.
type Decision struct {
	HistoryID string
	MessageID string
	Timestamp string
	Date      time.Time

	// RewardKey may be empty, in which case the decision listens on
	// DefaultRewardKey.
	RewardKey string

	// Reward stays nil until the first credit, then accumulates additively.
	Reward *float64

	// Fields is the full source record; the output projection reads
	// chosen/context/domain/propensity from here.
	Fields History

	// WindowEnd is set when the join admits the decision: Date + reward window.
	WindowEnd time.Time
}

// ListenKey returns the reward key this decision listens on.
func (d *Decision) ListenKey() string {
	if d.RewardKey == "" {
		return DefaultRewardKey
	}
	return d.RewardKey
}

// Credit adds v to the decision's accumulated reward.
func (d *Decision) Credit(v float64) {
	if d.Reward == nil {
		d.Reward = new(float64)
	}
	*d.Reward += v
}

// Projected returns the fixed eight-field output projection of the decision.
func (d *Decision) Projected() Rewarded {
	r := Rewarded{
		Timestamp: d.Timestamp,
		MessageID: d.MessageID,
		HistoryID: d.HistoryID,
	}
	if d.Reward != nil {
		v := *d.Reward
		r.Reward = &v
	}
	if s, ok := d.Fields["domain"].(string); ok {
		r.Domain = s
	}
	r.Chosen = d.Fields["chosen"]
	r.Context = d.Fields["context"]
	r.Propensity = d.Fields["propensity"]
	return r
}

// RewardsRecord is a derived rewards record: a bundle of (reward key, value)
// pairs observed at one point in time.
type RewardsRecord struct {
	HistoryID string
	Timestamp string
	Date      time.Time
	Values    map[string]interface{}
}

// Rewarded is the output record written to rewarded-decision partitions.
// The field set is fixed; training consumers depend on exactly these keys.
type Rewarded struct {
	Chosen     interface{} `json:"chosen,omitempty"`
	Context    interface{} `json:"context,omitempty"`
	Domain     string      `json:"domain,omitempty"`
	Timestamp  string      `json:"timestamp"`
	MessageID  string      `json:"message_id"`
	HistoryID  string      `json:"history_id"`
	Reward     *float64    `json:"reward,omitempty"`
	Propensity interface{} `json:"propensity,omitempty"`
}

// ParseTimestamp parses an ISO-8601 timestamp (RFC 3339, with or without
// fractional seconds).
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// CoerceReward converts a reward value to a float64. Booleans coerce to 1/0;
// anything non-numeric is an error.
func CoerceReward(v interface{}) (float64, error) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("reward value %q is not numeric: %w", n.String(), err)
		}
		return f, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("reward value %v (%T) is not numeric or boolean", v, v)
	}
}
