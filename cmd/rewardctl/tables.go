package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/chtzvt/rewardd/internal/api"
	"github.com/chtzvt/rewardd/internal/dispatch"
	"github.com/olekukonko/tablewriter"
)

func printStatusTables(data any) {
	status, ok := data.(*api.StatusResponse)
	if !ok || status == nil {
		fmt.Println("No status available")
		return
	}

	if len(status.Projects) == 0 {
		fmt.Println("No projects registered")
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Project", "Shard", "Class", "Last Processed"})
		for _, project := range status.Projects {
			for _, shard := range project.Shards {
				table.Append([]string{
					project.Name,
					shard.ShardID,
					shard.Class,
					valOrDash(shard.LastProcessed),
				})
			}
		}
		table.Render()
	}

	if len(status.QueueDepths) > 0 {
		functions := make([]string, 0, len(status.QueueDepths))
		for function := range status.QueueDepths {
			functions = append(functions, function)
		}
		sort.Strings(functions)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Queue", "Depth"})
		for _, function := range functions {
			table.Append([]string{function, fmt.Sprintf("%d", status.QueueDepths[function])})
		}
		table.Render()
	}

	printWorkersTable(status.Workers)

	if status.Dispatcher != nil {
		d := status.Dispatcher
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Ticks", "Dispatched", "Suppressed", "Reshard Continuations"})
		table.Append([]string{
			fmt.Sprintf("%d", d.Ticks),
			fmt.Sprintf("%d", d.Dispatched),
			fmt.Sprintf("%d", d.Suppressed),
			fmt.Sprintf("%d", d.ReshardContinuations),
		})
		table.Render()
	}
}

func printWorkersTable(workers []*api.WorkerStatus) {
	if len(workers) == 0 {
		fmt.Println("No workers registered")
		return
	}

	sort.Slice(workers, func(i, j int) bool {
		return workers[i].ID < workers[j].ID
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"ID", "Host", "Started", "Passes", "Failed", "Records Written", "Processing Time (s)", "Last Updated",
	})
	for _, w := range workers {
		table.Append([]string{
			w.ID,
			w.Hostname,
			valOrDash(w.StartedAt),
			fmt.Sprintf("%d", w.PassesCompleted),
			fmt.Sprintf("%d", w.PassesFailed),
			fmt.Sprintf("%d", w.RecordsWritten),
			fmt.Sprintf("%.1f", time.Duration(w.ProcessingTimeNs).Seconds()),
			valOrDash(w.LastUpdated),
		})
	}
	table.Render()
}

func printDispatchResultTable(data any) {
	result, ok := data.(*dispatch.Result)
	if !ok || result == nil {
		fmt.Println("No dispatch result")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Projects", "Dispatched", "Suppressed", "Reshard Continuations"})
	table.Append([]string{
		fmt.Sprintf("%d", result.Projects),
		fmt.Sprintf("%d", result.Dispatched),
		fmt.Sprintf("%d", result.Suppressed),
		fmt.Sprintf("%d", result.ReshardContinuations),
	})
	table.Render()
}

func printSecretsTable(data any) {
	keys, ok := data.([]string)
	if !ok || len(keys) == 0 {
		fmt.Println("No secrets found")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key"})
	for _, key := range keys {
		table.Append([]string{key})
	}
	table.Render()
}
