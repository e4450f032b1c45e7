package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/crypto/nacl/box"
)

// GenerateAndStoreClusterKey creates a new random cluster key and stores it in etcd
// under the cluster key path. Only needed for initial cluster bootstrapping.
func GenerateAndStoreClusterKey(ctx context.Context, etcd *clientv3.Client, prefix string) ([32]byte, error) {
	var clusterKey [32]byte
	if _, err := rand.Read(clusterKey[:]); err != nil {
		return clusterKey, err
	}
	b64 := base64.StdEncoding.EncodeToString(clusterKey[:])
	_, err := etcd.Put(ctx, prefix+"/secrets/cluster_key", b64)
	return clusterKey, err
}

// LoadClusterKey retrieves the bootstrap cluster key stored by
// GenerateAndStoreClusterKey. Used by administrators to approve nodes.
func LoadClusterKey(ctx context.Context, etcd *clientv3.Client, prefix string) ([32]byte, error) {
	var clusterKey [32]byte
	resp, err := etcd.Get(ctx, prefix+"/secrets/cluster_key")
	if err != nil {
		return clusterKey, err
	}
	if len(resp.Kvs) == 0 {
		return clusterKey, errors.New("cluster key not found")
	}
	raw, err := base64.StdEncoding.DecodeString(string(resp.Kvs[0].Value))
	if err != nil || len(raw) != 32 {
		return clusterKey, errors.New("invalid cluster key")
	}
	copy(clusterKey[:], raw)
	return clusterKey, nil
}

// ListPendingNodes returns the node IDs currently awaiting approval.
func ListPendingNodes(ctx context.Context, etcd *clientv3.Client, prefix string) ([]string, error) {
	keyPrefix := prefix + "/registration/pending/"
	resp, err := etcd.Get(ctx, keyPrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, err
	}
	nodes := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		nodes = append(nodes, strings.TrimPrefix(string(kv.Key), keyPrefix))
	}
	return nodes, nil
}

// ApproveNode is used by an administrator to approve a pending node registration.
// Encrypts the cluster key with the node's public key and stores it in etcd.
// Removes the pending registration after approval.
func ApproveNode(ctx context.Context, etcd *clientv3.Client, nodeID string, prefix string, clusterKey [32]byte) error {
	resp, err := etcd.Get(ctx, prefix+"/registration/pending/"+nodeID)
	if err != nil || len(resp.Kvs) == 0 {
		return errors.New("pending registration not found")
	}
	pubKeyB64 := string(resp.Kvs[0].Value)
	pubBytes, _ := base64.StdEncoding.DecodeString(pubKeyB64)
	if len(pubBytes) != 32 {
		return errors.New("invalid pubkey")
	}
	var pubKey [32]byte
	copy(pubKey[:], pubBytes)
	sealed, err := box.SealAnonymous(nil, clusterKey[:], &pubKey, rand.Reader)
	if err != nil {
		return err
	}
	sealedB64 := base64.StdEncoding.EncodeToString(sealed)
	_, err = etcd.Put(ctx, prefix+"/secrets/keys/"+nodeID, sealedB64)
	_, _ = etcd.Delete(ctx, prefix+"/registration/pending/"+nodeID)
	return err
}
