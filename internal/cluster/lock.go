package cluster

import (
	"context"
	"errors"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const DispatchLock = "dispatch"

var ErrLockHeld = errors.New("lock already held")

type Lock struct {
	client *clientv3.Client
	key    string
	lease  clientv3.LeaseID
}

type lockHolder struct {
	AcquiredAt time.Time `json:"acquired_at"`
}

// AcquireLock takes the named lock or returns ErrLockHeld. The lock key lives
// under a lease so a crashed holder frees it after ttlSeconds.
func (c *etcdCluster) AcquireLock(ctx context.Context, name string, ttlSeconds int64) (*Lock, error) {
	key := path.Join(c.cfg.Prefix, "locks", name)
	lease, err := c.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return nil, err
	}
	val := mustJSON(lockHolder{AcquiredAt: time.Now().UTC()})
	resp, err := c.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, val, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		c.client.Revoke(ctx, lease.ID)
		return nil, err
	}
	if !resp.Succeeded {
		c.client.Revoke(ctx, lease.ID)
		return nil, ErrLockHeld
	}
	return &Lock{client: c.client, key: key, lease: lease.ID}, nil
}

// Release revokes the lease, which deletes the lock key with it.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.client.Revoke(ctx, l.lease)
	return err
}
