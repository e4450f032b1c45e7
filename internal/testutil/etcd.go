package testutil

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
)

// StartEmbeddedEtcd brings up a single-node etcd on ephemeral ports and
// returns its client endpoint. Ephemeral ports keep parallel test binaries
// from fighting over :2379.
func StartEmbeddedEtcd(t *testing.T) (string, func()) {
	t.Helper()
	cfg := embed.NewConfig()
	cfg.Dir = t.TempDir()
	cfg.Logger = "zap"
	cfg.LogLevel = "error"
	clientURL := url.URL{Scheme: "http", Host: "127.0.0.1:0"}
	peerURL := url.URL{Scheme: "http", Host: "127.0.0.1:0"}
	cfg.ListenClientUrls = []url.URL{clientURL}
	cfg.AdvertiseClientUrls = []url.URL{clientURL}
	cfg.ListenPeerUrls = []url.URL{peerURL}
	cfg.AdvertisePeerUrls = []url.URL{peerURL}
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)

	e, err := embed.StartEtcd(cfg)
	require.NoError(t, err)

	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(10 * time.Second):
		e.Close()
		t.Fatal("etcd server did not become ready in time")
	}
	return e.Clients[0].Addr().String(), func() { e.Close() }
}

// SetupEtcdClient starts an embedded etcd and returns a raw client against it.
func SetupEtcdClient(t *testing.T) (*clientv3.Client, func()) {
	t.Helper()
	endpoint, stop := StartEmbeddedEtcd(t)
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return cli, func() {
		_ = cli.Close()
		stop()
	}
}
