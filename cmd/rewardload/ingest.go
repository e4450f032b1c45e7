package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/chtzvt/rewardd/internal/compression"
	"github.com/chtzvt/rewardd/internal/naming"
	"github.com/chtzvt/rewardd/internal/record"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	var (
		inputPath string
		project   string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "One-shot ingest of a JSONL history file (stdin or disk)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, custCfg, hooks, err := loadTooling(configPath)
			if err != nil {
				return err
			}

			reader, closeFn, err := getReader(inputPath)
			if err != nil {
				return err
			}
			defer closeFn()

			b := batches{}
			var accepted, rejected int64

			scanner := bufio.NewScanner(reader)
			scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
			for scanner.Scan() {
				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}

				dec := json.NewDecoder(bytes.NewReader(line))
				dec.UseNumber()
				var h record.History
				if err := dec.Decode(&h); err != nil {
					rejected++
					continue
				}
				historyID, ok := h.HistoryID()
				if !ok {
					rejected++
					continue
				}
				ts, err := h.ParsedTimestamp()
				if err != nil {
					rejected++
					continue
				}

				target := project
				if target == "" {
					target = hooks.ProjectName(h)
				}
				if !custCfg.HasProject(target) {
					rejected++
					continue
				}

				shard := naming.ShardForHistoryID(historyID, shardBits)
				b.add(target, shard, ts, append([]byte(nil), line...))
				accepted++
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			written, err := land(context.Background(), st, b)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"accepted": accepted,
				"rejected": rejected,
				"objects":  written,
			}).Info("ingest complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Input JSONL file, optionally compressed (or '-' for stdin)")
	cmd.Flags().StringVar(&project, "project", "", "Route every record to this project instead of the project-name hook")
	cmd.MarkFlagRequired("input")

	return cmd
}

func getReader(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := compression.NewReader(f, compression.ByExtension(path))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return r, func() {
		if err := r.Close(); err != nil {
			log.WithError(err).Warn("close input")
		}
		f.Close()
	}, nil
}
