package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/dispatch"
)

// WorkerStatus combines a worker's registration info with its latest
// published metrics.
type WorkerStatus struct {
	ID               string    `json:"id"`
	Hostname         string    `json:"hostname,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	MaxParallel      int       `json:"max_parallel,omitempty"`
	PassesCompleted  int64     `json:"passes_completed"`
	PassesFailed     int64     `json:"passes_failed"`
	RecordsWritten   int64     `json:"records_written"`
	ProcessingTimeNs int64     `json:"processing_time_ns"`
	LastUpdated      time.Time `json:"last_updated"`
}

type DispatcherStatus struct {
	Ticks                int64 `json:"ticks"`
	Dispatched           int64 `json:"dispatched"`
	Suppressed           int64 `json:"suppressed"`
	ReshardContinuations int64 `json:"reshard_continuations"`
}

type StatusResponse struct {
	Projects    []cluster.ProjectStatus `json:"projects"`
	QueueDepths map[string]int64        `json:"queue_depths"`
	Workers     []*WorkerStatus         `json:"workers"`
	Dispatcher  *DispatcherStatus       `json:"dispatcher,omitempty"`
}

func RegisterStatusHandler(mux *http.ServeMux, cl cluster.Cluster, d *dispatch.Dispatcher) {
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		status, err := cl.GetClusterStatus(r.Context())
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "unable to get status: "+err.Error())
			return
		}
		resp := &StatusResponse{
			Projects:    status.Projects,
			QueueDepths: status.QueueDepths,
			Workers:     make([]*WorkerStatus, 0, len(status.Workers)),
		}
		for _, wi := range status.Workers {
			ws := &WorkerStatus{
				ID:          wi.ID,
				Hostname:    wi.Hostname,
				StartedAt:   wi.StartedAt,
				MaxParallel: wi.MaxParallel,
			}
			// Try to get metrics, but tolerate absence
			if vm, err := cl.GetWorkerMetrics(r.Context(), wi.ID); err == nil && vm != nil {
				ws.PassesCompleted = vm.PassesCompleted
				ws.PassesFailed = vm.PassesFailed
				ws.RecordsWritten = vm.RecordsWritten
				ws.ProcessingTimeNs = vm.ProcessingTimeNs
				ws.LastUpdated = vm.LastUpdated
			}
			resp.Workers = append(resp.Workers, ws)
		}
		if d != nil {
			ticks, dispatched, suppressed, reshards := d.Metrics.Snapshot()
			resp.Dispatcher = &DispatcherStatus{
				Ticks:                ticks,
				Dispatched:           dispatched,
				Suppressed:           suppressed,
				ReshardContinuations: reshards,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
