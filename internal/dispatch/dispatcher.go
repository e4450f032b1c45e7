// Package dispatch implements the control loop that fans reward-assignment
// work out to queue workers. One invocation inspects every configured
// project's shards, suppresses shards that are resharding or inside their
// cool-down, and enqueues a bounded number of worker passes.
//
// A dispatcher invocation is not safe to run concurrently with itself.
// Single-flight is enforced by the caller holding the cluster dispatch lock.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/customize"
	"github.com/chtzvt/rewardd/internal/naming"
	"github.com/chtzvt/rewardd/internal/store"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Event carries the force flags of a dispatch invocation. Both default to
// false for scheduled ticks; the admin API and rewardctl can set them.
type Event struct {
	ForceProcessing      bool `json:"force_processing"`
	ForceContinueReshard bool `json:"force_continue_reshard"`
}

// Result summarizes one dispatch invocation.
type Result struct {
	Projects             int `json:"projects"`
	Dispatched           int `json:"dispatched"`
	Suppressed           int `json:"suppressed"`
	ReshardContinuations int `json:"reshard_continuations"`
}

type Dispatcher struct {
	Cluster cluster.Cluster
	Store   store.Store
	Config  *customize.Config

	// WorkerCount bounds worker dispatches per invocation, minimum 1.
	WorkerCount int

	// ReprocessWait is the cool-down: a shard processed more recently than
	// this is skipped unless processing is forced.
	ReprocessWait time.Duration

	Metrics *Metrics
}

func NewDispatcher(cl cluster.Cluster, st store.Store, cfg *customize.Config) *Dispatcher {
	return &Dispatcher{
		Cluster:     cl,
		Store:       st,
		Config:      cfg,
		WorkerCount: 1,
		Metrics:     &Metrics{},
	}
}

// Dispatch runs one control-loop invocation over all configured projects.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (*Result, error) {
	if d.Config == nil {
		return nil, fmt.Errorf("dispatch: no project configuration")
	}
	start := time.Now()
	d.Metrics.incTicks()

	result := &Result{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, project := range d.Config.Projects() {
		project := project
		g.Go(func() error {
			tally, err := d.dispatchProject(gctx, project, event)
			if err != nil {
				return fmt.Errorf("project %s: %w", project, err)
			}
			mu.Lock()
			result.Projects++
			result.Dispatched += tally.dispatched
			result.Suppressed += tally.suppressed
			result.ReshardContinuations += tally.reshardContinuations
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.Metrics.add(result)
	log.WithFields(log.Fields{
		"projects":              result.Projects,
		"dispatched":            result.Dispatched,
		"suppressed":            result.Suppressed,
		"reshard_continuations": result.ReshardContinuations,
		"duration":              time.Since(start).Round(time.Millisecond),
	}).Info("dispatch complete")
	return result, nil
}

type projectTally struct {
	dispatched           int
	suppressed           int
	reshardContinuations int
}

func (d *Dispatcher) dispatchProject(ctx context.Context, project string, event Event) (projectTally, error) {
	var tally projectTally

	lastProcessed, err := d.Cluster.LoadAndConsolidateShardLastProcessed(ctx, project)
	if err != nil {
		return tally, fmt.Errorf("load last-processed: %w", err)
	}

	objects, err := d.Store.List(ctx, naming.IncomingPrefix(project))
	if err != nil {
		return tally, fmt.Errorf("list incoming: %w", err)
	}
	incomingKeys := make([]string, 0, len(objects))
	for _, o := range objects {
		incomingKeys = append(incomingKeys, o.Key)
	}
	incomingShards := naming.ShardsFromKeys(incomingKeys)

	// The shard universe is everything the registry knows plus anything
	// with pending markers. A marker for an unregistered shard still counts:
	// it classifies stable and sorts oldest with an epoch-zero timestamp.
	shardSet := make(map[string]bool, len(lastProcessed))
	for shard := range lastProcessed {
		shardSet[shard] = true
	}
	for _, shard := range incomingShards {
		shardSet[shard] = true
	}
	if len(shardSet) == 0 {
		return tally, nil
	}
	shards := make([]string, 0, len(shardSet))
	for shard := range shardSet {
		shards = append(shards, shard)
	}
	sort.Strings(shards)

	parents, _, stable := cluster.GroupShards(shards)
	stableSet := make(map[string]bool, len(stable))
	for _, shard := range stable {
		stableSet[shard] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.continueResharding(gctx, project, parents, event)
	})
	g.Go(func() error {
		var err error
		tally, err = d.dispatchAssignRewardsIfNecessary(gctx, project, stableSet, incomingShards, lastProcessed, event.ForceProcessing)
		return err
	})
	if err := g.Wait(); err != nil {
		return tally, err
	}
	tally.reshardContinuations = len(parents)
	return tally, nil
}

// continueResharding enqueues a reshard continuation for every unfinished
// parent. The force flag rides along; acting on it is the reshard
// subsystem's call.
func (d *Dispatcher) continueResharding(ctx context.Context, project string, parents []string, event Event) error {
	for _, shard := range parents {
		_, err := d.Cluster.Enqueue(ctx, cluster.FunctionReshard, cluster.ReshardPayload{
			ProjectName:          project,
			ShardID:              shard,
			ForceContinueReshard: event.ForceContinueReshard,
		})
		if err != nil {
			return fmt.Errorf("enqueue reshard continuation for %s: %w", shard, err)
		}
		log.WithFields(log.Fields{"project": project, "shard": shard}).Info("reshard continuation enqueued")
	}
	return nil
}

func (d *Dispatcher) dispatchAssignRewardsIfNecessary(ctx context.Context, project string, stable map[string]bool, incomingShards []string, lastProcessed map[string]time.Time, force bool) (projectTally, error) {
	var tally projectTally

	type candidate struct {
		shard string
		last  time.Time // zero if never processed
	}
	candidates := make([]candidate, 0, len(incomingShards))
	for _, shard := range incomingShards {
		candidates = append(candidates, candidate{shard: shard, last: lastProcessed[shard]})
	}
	// Oldest first, so shards that keep failing don't starve.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].last.Before(candidates[j].last)
	})

	remaining := d.WorkerCount
	if remaining < 1 {
		remaining = 1
	}
	now := time.Now()

	var toDispatch []string
	for _, c := range candidates {
		if !force {
			if remaining <= 0 {
				d.suppress(project, c.shard, "worker budget exhausted")
				tally.suppressed++
				continue
			}
			if !stable[c.shard] {
				d.suppress(project, c.shard, "resharding in progress")
				tally.suppressed++
				continue
			}
			if now.Sub(c.last) < d.ReprocessWait {
				d.suppress(project, c.shard, "cool-down")
				tally.suppressed++
				continue
			}
		}
		remaining--
		toDispatch = append(toDispatch, c.shard)
	}

	// Mark first, then dispatch. Marking before the worker invocation lands
	// narrows the window in which a second dispatch could double-fire.
	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range toDispatch {
		shard := shard
		log.WithFields(log.Fields{"project": project, "shard": shard}).Info("dispatching reward assignment")
		g.Go(func() error {
			return d.Cluster.UpdateShardLastProcessed(gctx, project, shard, time.Now().UTC())
		})
		g.Go(func() error {
			_, err := d.Cluster.Enqueue(gctx, cluster.FunctionAssignRewards, cluster.WorkerPayload{
				ProjectName:                   project,
				ShardID:                       shard,
				LastProcessedTimestampUpdated: true,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return tally, err
	}
	tally.dispatched = len(toDispatch)
	return tally, nil
}

func (d *Dispatcher) suppress(project, shard, reason string) {
	log.WithFields(log.Fields{"project": project, "shard": shard, "reason": reason}).Debug("shard suppressed")
}
