package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
)

// ListPendingNodes fetches the node IDs awaiting cluster key approval.
func (c *Client) ListPendingNodes(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/api/secrets/nodes/pending", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}
	var out []struct {
		NodeID string `json:"node_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	nodes := make([]string, len(out))
	for i, n := range out {
		nodes[i] = n.NodeID
	}
	return nodes, nil
}

// ApproveNode approves a pending node registration. The server seals the
// cluster key to the node's public key.
func (c *Client) ApproveNode(ctx context.Context, nodeID string) error {
	body := map[string]string{"node_id": nodeID}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/secrets/nodes/approve", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return parseAPIError(resp)
	}
	return nil
}

// ListSecrets lists all secret keys in the store (optionally with prefix).
func (c *Client) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	urlStr := c.BaseURL + "/api/secrets/store"
	if prefix != "" {
		urlStr += "?prefix=" + url.QueryEscape(prefix)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}
	var keys []string
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// GetSecret fetches and decodes the plaintext value of a secret.
func (c *Client) GetSecret(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/api/secrets/store/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}
	var out struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	val, err := base64.StdEncoding.DecodeString(out.Value)
	if err != nil {
		return nil, err
	}
	return val, nil
}

// PutSecret sets a secret. Accepts value as raw bytes; encodes to base64 and sends JSON.
func (c *Client) PutSecret(ctx context.Context, key string, value []byte) error {
	body := map[string]string{"value": base64.StdEncoding.EncodeToString(value)}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, "PUT", c.BaseURL+"/api/secrets/store/"+url.PathEscape(key), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return parseAPIError(resp)
	}
	return nil
}

// DeleteSecret deletes a secret by key.
func (c *Client) DeleteSecret(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.BaseURL+"/api/secrets/store/"+url.PathEscape(key), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return parseAPIError(resp)
	}
	return nil
}
