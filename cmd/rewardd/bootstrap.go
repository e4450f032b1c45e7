package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/secrets"
	log "github.com/sirupsen/logrus"
)

// selfBootstrap registers this node with the secrets subsystem and, because
// the cluster key is available locally, approves its own registration instead
// of waiting for an operator.
func selfBootstrap(ctx context.Context, cl cluster.Cluster, sec *secrets.Store, clusterKeyB64 string) error {
	registrationDone := make(chan struct{})
	registrationFailed := make(chan error, 2)

	go func() {
		if err := sec.RegisterAndWaitForClusterKey(context.Background()); err != nil {
			registrationFailed <- err
			return
		}
		log.Info("Self-bootstrap registration complete.")
		close(registrationDone)
	}()

	approved := false
	for i := 0; i < 10; i++ {
		select {
		case err := <-registrationFailed:
			return fmt.Errorf("self-bootstrap registration failed: %w", err)
		case <-registrationDone:
			approved = true
		default:
			pending, err := secrets.ListPendingNodes(ctx, cl.Client(), cl.Prefix())
			if err != nil {
				log.WithError(err).Warn("Self-bootstrap: could not query pending registrations")
				break
			}
			for _, nodeID := range pending {
				if nodeID == sec.NodeID() {
					if err := approveSelf(ctx, cl, sec, clusterKeyB64); err != nil {
						return fmt.Errorf("self-bootstrap failed: %w", err)
					}
					log.Info("Self-bootstrap successful")
					approved = true
				}
			}
		}
		if approved {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}

	if !approved {
		return fmt.Errorf("self-bootstrap failed to register after 3s")
	}

	return nil
}

func approveSelf(ctx context.Context, cl cluster.Cluster, sec *secrets.Store, clusterKeyB64 string) error {
	var clusterKey [32]byte

	keyB64 := strings.TrimSpace(clusterKeyB64)
	raw, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return err
	}

	if len(raw) != 32 {
		return fmt.Errorf("invalid cluster key length: got %d, want 32", len(raw))
	}

	copy(clusterKey[:], raw)
	if err := sec.SetClusterKey(keyB64); err != nil {
		return err
	}

	return secrets.ApproveNode(ctx, cl.Client(), sec.NodeID(), cl.Prefix(), clusterKey)
}
