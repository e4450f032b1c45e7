package cluster

import (
	"context"
	"path"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Queue function names. Enqueue is fire-and-forget: the payload is the whole
// contract between the dispatcher and whoever consumes the function.
const (
	FunctionAssignRewards = "assign_rewards"
	FunctionReshard       = "reshard"
)

// WorkerPayload invokes one reward-assignment pass over a single shard.
type WorkerPayload struct {
	ProjectName                   string `cbor:"project_name"`
	ShardID                       string `cbor:"shard_id"`
	LastProcessedTimestampUpdated bool   `cbor:"last_processed_timestamp_updated"`
}

// ReshardPayload asks the reshard subsystem to split or continue splitting a shard.
type ReshardPayload struct {
	ProjectName          string `cbor:"project_name"`
	ShardID              string `cbor:"shard_id"`
	ForceContinueReshard bool   `cbor:"force_continue_reshard,omitempty"`
}

type QueueMessage struct {
	Function    string
	ID          string
	ModRevision int64
	Payload     []byte
}

func (m QueueMessage) Decode(v interface{}) error {
	return cbor.Unmarshal(m.Payload, v)
}

func (c *etcdCluster) queuePrefix(function string) string {
	return path.Join(c.cfg.Prefix, "queue", function) + "/"
}

func (c *etcdCluster) Enqueue(ctx context.Context, function string, payload interface{}) (string, error) {
	body, err := cbor.Marshal(payload)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	key := path.Join(c.cfg.Prefix, "queue", function, id)
	if _, err := c.client.Put(ctx, key, string(body)); err != nil {
		return "", err
	}
	return id, nil
}

// Pending lists queued messages oldest-first.
func (c *etcdCluster) Pending(ctx context.Context, function string) ([]QueueMessage, error) {
	prefix := c.queuePrefix(function)
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}
	msgs := make([]QueueMessage, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		msgs = append(msgs, QueueMessage{
			Function:    function,
			ID:          path.Base(string(kv.Key)),
			ModRevision: kv.ModRevision,
			Payload:     append([]byte(nil), kv.Value...),
		})
	}
	return msgs, nil
}

// Claim deletes the message iff nobody else got there first. Returns false
// when the message is gone or was rewritten since it was listed.
func (c *etcdCluster) Claim(ctx context.Context, msg QueueMessage) (bool, error) {
	key := path.Join(c.cfg.Prefix, "queue", msg.Function, msg.ID)
	resp, err := c.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", msg.ModRevision)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, err
	}
	return resp.Succeeded, nil
}

func (c *etcdCluster) QueueDepth(ctx context.Context, function string) (int64, error) {
	resp, err := c.client.Get(ctx, c.queuePrefix(function), clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}
