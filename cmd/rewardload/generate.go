package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/chtzvt/rewardd/internal/naming"
	"github.com/chtzvt/rewardd/internal/record"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	var (
		histories  int
		decisions  int
		rewardRate float64
		spread     time.Duration
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic decision/rewards history across all configured projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, custCfg, _, err := loadTooling(configPath)
			if err != nil {
				return err
			}
			projects := custCfg.Projects()
			if len(projects) == 0 {
				return fmt.Errorf("no projects configured")
			}

			if spread <= 0 {
				spread = time.Hour
			}
			rng := rand.New(rand.NewSource(seed))
			window := custCfg.Window()
			b := batches{}
			now := time.Now().UTC()
			total := 0

			for h := 0; h < histories; h++ {
				project := projects[h%len(projects)]
				historyID := uuid.New().String()
				shard := naming.ShardForHistoryID(historyID, shardBits)
				base := now.Add(-spread + time.Duration(rng.Int63n(int64(spread))))

				for d := 0; d < decisions; d++ {
					ts := base.Add(time.Duration(d) * time.Second)
					decision := map[string]interface{}{
						"type":       record.TypeDecision,
						"history_id": historyID,
						"message_id": uuid.New().String(),
						"timestamp":  ts.Format(time.RFC3339Nano),
						"domain":     "default",
						"chosen":     fmt.Sprintf("arm-%d", rng.Intn(4)),
						"context":    map[string]interface{}{"position": d},
						"propensity": 0.25,
					}
					line, err := json.Marshal(decision)
					if err != nil {
						return err
					}
					b.add(project, shard, ts, line)
					total++

					if rng.Float64() < rewardRate {
						// Rewards land inside the window most of the time,
						// occasionally just past it.
						offset := time.Duration(rng.Int63n(int64(window) + int64(window)/4))
						rts := ts.Add(offset)
						rewardsRec := map[string]interface{}{
							"history_id": historyID,
							"message_id": uuid.New().String(),
							"timestamp":  rts.Format(time.RFC3339Nano),
							"rewards":    map[string]interface{}{record.DefaultRewardKey: rng.Float64()},
						}
						line, err := json.Marshal(rewardsRec)
						if err != nil {
							return err
						}
						b.add(project, shard, rts, line)
						total++
					}
				}
			}

			written, err := land(context.Background(), st, b)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"histories": histories,
				"records":   total,
				"objects":   written,
			}).Info("synthetic history landed")
			return nil
		},
	}

	cmd.Flags().IntVar(&histories, "histories", 100, "Number of distinct history ids to generate")
	cmd.Flags().IntVar(&decisions, "decisions", 5, "Decisions per history id")
	cmd.Flags().Float64Var(&rewardRate, "reward-rate", 0.5, "Probability a decision is followed by a rewards record")
	cmd.Flags().DurationVar(&spread, "spread", time.Hour, "How far into the past history timestamps spread")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "RNG seed (fixed seed gives a reproducible batch)")

	return cmd
}
