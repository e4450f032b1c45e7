package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/dispatch"
)

// dispatchLockTTLSeconds bounds how long a crashed dispatch can wedge the
// lock before the lease expires.
const dispatchLockTTLSeconds = 60

func RegisterDispatchHandler(mux *http.ServeMux, cl cluster.Cluster, d *dispatch.Dispatcher) {
	mux.HandleFunc("/api/dispatch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if d == nil {
			jsonError(w, http.StatusServiceUnavailable, "no dispatcher on this node")
			return
		}
		var event dispatch.Event
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
				jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
		}

		lock, err := cl.AcquireLock(r.Context(), cluster.DispatchLock, dispatchLockTTLSeconds)
		if errors.Is(err, cluster.ErrLockHeld) {
			jsonError(w, http.StatusConflict, "dispatch already in progress")
			return
		}
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "acquire dispatch lock: "+err.Error())
			return
		}
		// Release with a fresh context so a client hangup still frees the lock.
		defer func() { _ = lock.Release(context.Background()) }()

		result, err := d.Dispatch(r.Context(), event)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "dispatch failed: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	})
}
