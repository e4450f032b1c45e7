package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/secrets"
	"github.com/chtzvt/rewardd/internal/testcluster"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/crypto/nacl/box"
)

// stubCluster cans status and metrics responses for handler tests that don't
// need a live etcd.
type stubCluster struct {
	status  *cluster.ClusterStatus
	metrics map[string]*cluster.WorkerMetricsView
}

func newStubCluster() *stubCluster {
	return &stubCluster{
		status:  &cluster.ClusterStatus{},
		metrics: make(map[string]*cluster.WorkerMetricsView),
	}
}

func (s *stubCluster) GetClusterStatus(context.Context) (*cluster.ClusterStatus, error) {
	return s.status, nil
}

func (s *stubCluster) GetWorkerMetrics(ctx context.Context, workerID string) (*cluster.WorkerMetricsView, error) {
	if m, ok := s.metrics[workerID]; ok {
		return m, nil
	}
	return &cluster.WorkerMetricsView{}, nil
}

// Other methods of cluster.Cluster can return zero values; the handlers under
// test here never reach them.
func (s *stubCluster) UpdateShardLastProcessed(context.Context, string, string, time.Time) error {
	return nil
}
func (s *stubCluster) LoadAndConsolidateShardLastProcessed(context.Context, string) (map[string]time.Time, error) {
	return nil, nil
}
func (s *stubCluster) ShardLastProcessed(context.Context, string) (map[string]time.Time, error) {
	return nil, nil
}
func (s *stubCluster) RegisteredProjects(context.Context) ([]string, error) { return nil, nil }
func (s *stubCluster) Enqueue(context.Context, string, interface{}) (string, error) {
	return "", nil
}
func (s *stubCluster) Pending(context.Context, string) ([]cluster.QueueMessage, error) {
	return nil, nil
}
func (s *stubCluster) Claim(context.Context, cluster.QueueMessage) (bool, error) { return false, nil }
func (s *stubCluster) QueueDepth(context.Context, string) (int64, error)         { return 0, nil }
func (s *stubCluster) AcquireLock(context.Context, string, int64) (*cluster.Lock, error) {
	return nil, cluster.ErrLockHeld
}
func (s *stubCluster) RegisterWorker(context.Context, cluster.WorkerInfo) (string, error) {
	return "", nil
}
func (s *stubCluster) ListWorkers(context.Context) ([]cluster.WorkerInfo, error) { return nil, nil }
func (s *stubCluster) HeartbeatWorker(context.Context, string) error             { return nil }
func (s *stubCluster) SendMetrics(context.Context, string, *cluster.WorkerMetrics) error {
	return nil
}
func (s *stubCluster) Prefix() string           { return "" }
func (s *stubCluster) Client() *clientv3.Client { return nil }
func (s *stubCluster) Close() error             { return nil }

// Helper to run an endpoint and check unauthorized response
func requireUnauthorized(t *testing.T, method, url string, handler http.Handler) {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	// No Authorization header!
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "Expected 401 Unauthorized for missing token")
}

// setupSecretsTestServer brings up the secrets endpoints against a live etcd
// with an unsealed store.
func setupSecretsTestServer(t *testing.T) (*httptest.Server, cluster.Cluster, *secrets.Store) {
	cl, cleanup := testcluster.SetupEtcdCluster(t)
	t.Cleanup(cleanup)

	sec, err := secrets.NewStore(cl.Client(), filepath.Join(t.TempDir(), "node.key"), cl.Prefix())
	require.NoError(t, err)
	clusterKey, err := secrets.GenerateAndStoreClusterKey(context.Background(), cl.Client(), cl.Prefix())
	require.NoError(t, err)
	require.NoError(t, sec.SetClusterKey(base64.StdEncoding.EncodeToString(clusterKey[:])))

	mux := http.NewServeMux()
	RegisterSecretHandlers(mux, cl, sec)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, cl, sec
}

// seedPendingNode plants a pending registration with a fresh keypair,
// returning the node id.
func seedPendingNode(t *testing.T, cl cluster.Cluster, nodeID string) {
	t.Helper()
	pub, _, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key := cl.Prefix() + "/registration/pending/" + nodeID
	_, err = cl.Client().Put(context.Background(), key, base64.StdEncoding.EncodeToString(pub[:]))
	require.NoError(t, err)
}
