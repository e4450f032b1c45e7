// Package secrets implements a distributed, cryptographically secure secrets store
// using etcd and NaCl secretbox, with node authentication and key approval flows.
package secrets

import (
	"encoding/base64"
	"errors"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Store represents a connection to the distributed secrets store.
// It handles node keypair management, secure cluster key retrieval,
// and encrypted secret storage and retrieval via etcd.
type Store struct {
	etcd     *clientv3.Client
	keys     nodeKeys
	nodeID   string
	keyPath  string
	prefix   string
	clusterK [32]byte
	haveKey  bool
}

// NewStore initializes a Store using the provided etcd client, key path, and
// etcd prefix. If no keypair exists at keyPath, a new one is generated and
// persisted. The store cannot seal or open secrets until it holds the cluster
// key, via SetClusterKey or RegisterAndWaitForClusterKey.
func NewStore(etcd *clientv3.Client, keyPath, prefix string) (*Store, error) {
	keys, nodeID, err := LoadOrGenerateNodeKeypair(keyPath)
	if err != nil {
		return nil, err
	}
	return &Store{
		etcd:    etcd,
		keys:    keys,
		nodeID:  nodeID,
		keyPath: keyPath,
		prefix:  prefix,
	}, nil
}

// Prefix returns the etcd prefix all secrets keys live under.
func (s *Store) Prefix() string {
	return s.prefix
}

// NodeID returns this node's identity (SHA256 hex of its public key).
func (s *Store) NodeID() string {
	return s.nodeID
}

// SetClusterKey installs a cluster key handed to the node out of band,
// base64-encoded, 32 bytes. This skips the registration/approval flow.
func (s *Store) SetClusterKey(b64 string) error {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return errors.New("cluster key must be 32 bytes")
	}
	copy(s.clusterK[:], raw)
	s.haveKey = true
	return nil
}

func (s *Store) storeKey(key string) string {
	return s.prefix + "/secrets/store/" + key
}
