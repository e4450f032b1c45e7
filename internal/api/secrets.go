package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/chtzvt/rewardd/internal/cluster"
	"github.com/chtzvt/rewardd/internal/secrets"
)

// RegisterSecretHandlers wires secret & admin node endpoints into the given mux.
// Secret values travel base64-encoded; sealing happens server-side.
func RegisterSecretHandlers(mux *http.ServeMux, cl cluster.Cluster, sec *secrets.Store) {
	// List pending nodes (admin)
	mux.HandleFunc("/api/secrets/nodes/pending", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleListPendingNodes(w, r, cl, sec)
	})
	// Approve pending node (admin)
	mux.HandleFunc("/api/secrets/nodes/approve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleApproveNode(w, r, cl, sec)
	})

	// /api/secrets/store (list keys)
	mux.HandleFunc("/api/secrets/store", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleListSecretKeys(w, r, sec)
	})

	// /api/secrets/store/{key} for GET, PUT, DELETE
	mux.HandleFunc("/api/secrets/store/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/api/secrets/store/")
		if key == "" {
			jsonError(w, http.StatusBadRequest, "missing secret key")
			return
		}
		switch r.Method {
		case "GET":
			handleGetSecret(w, r, sec, key)
		case "PUT":
			handlePutSecret(w, r, sec, key)
		case "DELETE":
			handleDeleteSecret(w, r, sec, key)
		default:
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func handleListPendingNodes(w http.ResponseWriter, r *http.Request, cl cluster.Cluster, sec *secrets.Store) {
	nodes, err := secrets.ListPendingNodes(r.Context(), cl.Client(), sec.Prefix())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "error listing pending registrations: "+err.Error())
		return
	}
	type outNode struct {
		NodeID string `json:"node_id"`
	}
	result := make([]outNode, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, outNode{NodeID: n})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func handleApproveNode(w http.ResponseWriter, r *http.Request, cl cluster.Cluster, sec *secrets.Store) {
	var req struct {
		NodeID string `json:"node_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	clusterKey, err := secrets.LoadClusterKey(r.Context(), cl.Client(), sec.Prefix())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "could not load cluster key: "+err.Error())
		return
	}
	if err := secrets.ApproveNode(r.Context(), cl.Client(), req.NodeID, sec.Prefix(), clusterKey); err != nil {
		jsonError(w, http.StatusBadRequest, "could not approve node: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func handleListSecretKeys(w http.ResponseWriter, r *http.Request, sec *secrets.Store) {
	prefix := r.URL.Query().Get("prefix")
	keys, err := sec.List(r.Context(), prefix)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "error listing secrets: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(keys)
}

func handleGetSecret(w http.ResponseWriter, r *http.Request, sec *secrets.Store, key string) {
	value, err := sec.Get(r.Context(), key)
	if errors.Is(err, secrets.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "get failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"value": base64.StdEncoding.EncodeToString(value)})
}

func handlePutSecret(w http.ResponseWriter, r *http.Request, sec *secrets.Store, key string) {
	var value []byte
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var body struct{ Value string }
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		val, err := base64.StdEncoding.DecodeString(body.Value)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid base64 value")
			return
		}
		value = val
	} else {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "could not read body")
			return
		}
		value, err = base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid base64 value")
			return
		}
	}
	if err := sec.Set(r.Context(), key, value); err != nil {
		jsonError(w, http.StatusInternalServerError, "set failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleDeleteSecret(w http.ResponseWriter, r *http.Request, sec *secrets.Store, key string) {
	if err := sec.Delete(r.Context(), key); err != nil {
		jsonError(w, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
