package worker

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/customize"
	"github.com/chtzvt/rewardd/internal/store"
	log "github.com/sirupsen/logrus"
)

// Worker polls the assign_rewards queue and runs passes for the shards it
// claims, several in parallel up to MaxParallel.
type Worker struct {
	ID              string
	Cluster         cluster.Cluster
	Store           store.Store
	Hooks           customize.Hooks
	Config          *customize.Config
	Filter          StaleFilter
	MaxPayloadBytes int64
	MaxParallel     int
	BatchSize       int
	PollPeriod      time.Duration
	Metrics         *cluster.WorkerMetrics

	stopCh  chan struct{}
	stopped chan struct{}
	wg      sync.WaitGroup

	mainLoopErrorCount int64
	mainLoopBackoff    time.Duration
}

const (
	mainLoopErrorThreshold = 3
	maxMainLoopBackoff     = 30 * time.Second
)

// NewWorker constructs a worker with reasonable defaults.
func NewWorker(cl cluster.Cluster, st store.Store, hooks customize.Hooks, cfg *customize.Config) *Worker {
	return &Worker{
		Cluster:         cl,
		Store:           st,
		Hooks:           hooks,
		Config:          cfg,
		Filter:          allFilter{},
		MaxPayloadBytes: 100 << 20,
		MaxParallel:     4,
		BatchSize:       8,
		PollPeriod:      1 * time.Second,
		Metrics:         &cluster.WorkerMetrics{},
		stopCh:          make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

func (w *Worker) staleFilter() StaleFilter {
	if w.Filter == nil {
		return allFilter{}
	}
	return w.Filter
}

// Run is the worker's main supervisory loop. Returns on stop/cancel.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stopped)

	hostname, _ := os.Hostname()
	workerID, err := w.Cluster.RegisterWorker(ctx, cluster.WorkerInfo{
		ID:          w.ID,
		Hostname:    hostname,
		MaxParallel: w.MaxParallel,
	})
	if err != nil {
		return err
	}
	w.ID = workerID
	log.WithFields(log.Fields{"worker_id": w.ID, "hostname": hostname}).Info("worker registered")

	var lastErr error
	heartbeatTicker := time.NewTicker(5 * time.Second)
	defer heartbeatTicker.Stop()

	sem := make(chan struct{}, w.MaxParallel)
	for {
		select {
		case <-ctx.Done():
			log.Info("worker: context cancelled")
			w.wg.Wait()
			return ctx.Err()
		case <-w.stopCh:
			log.Info("worker: stop requested")
			w.wg.Wait()
			return nil
		case <-heartbeatTicker.C:
			w.heartbeat(ctx)
		default:
			if lastErr != nil {
				w.mainLoopErrorCount++
				if w.mainLoopErrorCount >= mainLoopErrorThreshold {
					if w.mainLoopBackoff < maxMainLoopBackoff {
						w.mainLoopBackoff = 2 * w.mainLoopBackoff
						if w.mainLoopBackoff == 0 {
							w.mainLoopBackoff = 1 * time.Second
						}
					}
					log.WithField("backoff", w.mainLoopBackoff).Warn("worker: backing off after repeated errors")
					time.Sleep(w.mainLoopBackoff)
				}
			} else {
				w.mainLoopErrorCount = 0
				w.mainLoopBackoff = 0
			}

			claimed, err := w.claimPending(ctx)
			lastErr = err
			if err != nil {
				log.WithError(err).Error("worker: queue poll failed")
				continue
			}
			for _, msg := range claimed {
				sem <- struct{}{}
				w.wg.Add(1)
				go func(msg cluster.QueueMessage) {
					defer func() { <-sem; w.wg.Done() }()
					w.processMessage(ctx, msg)
				}(msg)
			}
			time.Sleep(w.PollPeriod)
		}
	}
}

// Stop signals the worker to exit gracefully.
func (w *Worker) Stop() {
	select {
	case <-w.stopCh:
		// already closed
	default:
		close(w.stopCh)
	}
	<-w.stopped // Wait for Run to exit
}

// Heartbeat keeps worker lease alive in etcd.
func (w *Worker) heartbeat(ctx context.Context) {
	if err := w.Cluster.HeartbeatWorker(ctx, w.ID); err != nil {
		log.WithError(err).Warn("heartbeat failed")
	}
}

// claimPending claims up to BatchSize queued invocations. Messages another
// worker claims first are skipped without error.
func (w *Worker) claimPending(ctx context.Context) ([]cluster.QueueMessage, error) {
	pending, err := w.Cluster.Pending(ctx, cluster.FunctionAssignRewards)
	if err != nil {
		return nil, err
	}
	claimed := make([]cluster.QueueMessage, 0, w.BatchSize)
	for _, msg := range pending {
		if len(claimed) >= w.BatchSize {
			break
		}
		ok, err := w.Cluster.Claim(ctx, msg)
		if err != nil {
			return claimed, err
		}
		if ok {
			claimed = append(claimed, msg)
		}
	}
	return claimed, nil
}

func (w *Worker) processMessage(ctx context.Context, msg cluster.QueueMessage) {
	start := time.Now()
	defer func() {
		w.Metrics.AddProcessingTime(time.Since(start))
	}()

	var payload cluster.WorkerPayload
	if err := msg.Decode(&payload); err != nil {
		log.WithField("message_id", msg.ID).WithError(err).Error("worker: undecodable payload dropped")
		w.Metrics.IncFailed()
		return
	}

	result, err := w.AssignRewards(ctx, payload)
	if err != nil {
		log.WithFields(log.Fields{
			"project": payload.ProjectName,
			"shard":   payload.ShardID,
		}).WithError(err).Error("worker: pass failed, markers kept for retry")
		w.Metrics.IncFailed()
		return
	}
	w.Metrics.IncCompleted()
	if result.Write != nil {
		w.Metrics.AddRecordsWritten(result.Write.Emitted)
	}
	if err := w.Cluster.SendMetrics(ctx, w.ID, w.Metrics); err != nil {
		log.WithError(err).Warn("worker: metrics publish failed")
	}
}
