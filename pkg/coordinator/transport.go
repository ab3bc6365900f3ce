package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/solidb/solidb/pkg/dberr"
)

// BatchResponse mirrors the `{inserted, n}` reply spec.md §6 defines for
// the shard-internal batch/replica endpoints.
type BatchResponse struct {
	Inserted int `json:"inserted"`
	N        int `json:"n"`
}

// VerifyResponse mirrors the `_verify` endpoint's reply.
type VerifyResponse struct {
	Found       []string `json:"found"`
	Missing     []string `json:"missing"`
	TotalChecked int     `json:"total_checked"`
}

// Forwarder sends shard-internal RPCs to a peer node's API address, per
// spec.md §6's HTTP shard-internal RPC surface.
type Forwarder interface {
	ForwardBatch(ctx context.Context, apiAddress, database, collection string, direct bool, docs []map[string]interface{}) (BatchResponse, error)
	Verify(ctx context.Context, apiAddress, database, collection string, keys []string) (VerifyResponse, error)
}

// HTTPForwarder is the default Forwarder, dialing peers over plain HTTP
// in the style of warren's health.HTTPChecker (net/http, explicit
// timeout, no TLS — mTLS was dropped along with the rest of warren's
// certificate machinery, see DESIGN.md).
type HTTPForwarder struct {
	Client *http.Client
}

// NewHTTPForwarder builds a forwarder with a bounded per-call timeout.
func NewHTTPForwarder(timeout time.Duration) *HTTPForwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPForwarder{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPForwarder) ForwardBatch(ctx context.Context, apiAddress, database, collection string, direct bool, docs []map[string]interface{}) (BatchResponse, error) {
	endpoint := "_replica"
	if direct {
		endpoint = "_batch"
	}
	url := fmt.Sprintf("http://%s/_api/database/%s/document/%s/%s", apiAddress, database, collection, endpoint)

	body, err := json.Marshal(docs)
	if err != nil {
		return BatchResponse{}, dberr.Internal("marshal forward batch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return BatchResponse{}, dberr.Internal("build forward request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if direct {
		req.Header.Set("X-Shard-Direct", "true")
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return BatchResponse{}, dberr.ShardUnavailable(apiAddress + ": " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return BatchResponse{}, dberr.ShardUnavailable(fmt.Sprintf("%s replied HTTP %d", apiAddress, resp.StatusCode))
	}

	var out BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return BatchResponse{}, dberr.Internal("decode forward response", err)
	}
	return out, nil
}

func (f *HTTPForwarder) Verify(ctx context.Context, apiAddress, database, collection string, keys []string) (VerifyResponse, error) {
	url := fmt.Sprintf("http://%s/_api/database/%s/document/%s/_verify", apiAddress, database, collection)
	body, err := json.Marshal(map[string]interface{}{"keys": keys})
	if err != nil {
		return VerifyResponse{}, dberr.Internal("marshal verify request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return VerifyResponse{}, dberr.Internal("build verify request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return VerifyResponse{}, dberr.ShardUnavailable(apiAddress + ": " + err.Error())
	}
	defer resp.Body.Close()

	var out VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return VerifyResponse{}, dberr.Internal("decode verify response", err)
	}
	return out, nil
}
