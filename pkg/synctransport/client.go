package synctransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solidb/solidb/pkg/replication"
)

// Client implements pkg/replication.Transport over the framed,
// optionally HMAC-authenticated TCP protocol described in this
// package's doc comment. One Client is shared by a node's Replication
// Worker across all peers; connections are pooled and reconnected with
// backoff per peer address.
type Client struct {
	pool *pool
}

// NewClient builds a Client. key is the shared cluster secret
// (security.DeriveKeyFromClusterID(clusterID)); pass nil to run
// unauthenticated.
func NewClient(key []byte) *Client {
	return &Client{pool: newPool(key)}
}

// Close closes every pooled connection.
func (c *Client) Close() { c.pool.closeAll() }

func deadlineFromContext(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(30 * time.Second)
}

// PullSince implements replication.Transport.
func (c *Client) PullSince(ctx context.Context, peerAddr string, afterSeq uint64, maxBatchBytes int) (replication.SyncBatch, error) {
	pc, err := c.pool.get(peerAddr)
	if err != nil {
		return replication.SyncBatch{}, err
	}
	_ = pc.conn.SetDeadline(deadlineFromContext(ctx))

	if err := writeMessage(pc.conn, kindIncrementalSyncRequest, incrementalSyncRequest{
		FromNode:      "",
		AfterSequence: afterSeq,
		MaxBatchBytes: maxBatchBytes,
	}); err != nil {
		c.pool.drop(peerAddr)
		return replication.SyncBatch{}, err
	}

	kind, body, err := readMessage(pc.conn)
	if err != nil {
		c.pool.drop(peerAddr)
		return replication.SyncBatch{}, err
	}
	if kind == kindError {
		c.pool.drop(peerAddr)
		return replication.SyncBatch{}, remoteError(body)
	}
	if kind != kindSyncBatch {
		c.pool.drop(peerAddr)
		return replication.SyncBatch{}, fmt.Errorf("unexpected reply kind %q to sync request", kind)
	}

	var batch syncBatchWire
	if err := json.Unmarshal(body, &batch); err != nil {
		return replication.SyncBatch{}, err
	}
	return replication.SyncBatch{
		Entries:         batch.Entries,
		HasMore:         batch.HasMore,
		CurrentSequence: batch.CurrentSequence,
	}, nil
}

// SendHeartbeat implements replication.Transport.
func (c *Client) SendHeartbeat(ctx context.Context, peerAddr string, stats replication.HeartbeatStats) error {
	pc, err := c.pool.get(peerAddr)
	if err != nil {
		return err
	}
	_ = pc.conn.SetDeadline(deadlineFromContext(ctx))

	if err := writeMessage(pc.conn, kindHeartbeat, heartbeatWire{NodeID: stats.NodeID, CurrentSeq: stats.CurrentSeq}); err != nil {
		c.pool.drop(peerAddr)
		return err
	}
	kind, body, err := readMessage(pc.conn)
	if err != nil {
		c.pool.drop(peerAddr)
		return err
	}
	if kind == kindError {
		c.pool.drop(peerAddr)
		return remoteError(body)
	}
	if kind != kindHeartbeatAck {
		return fmt.Errorf("unexpected reply kind %q to heartbeat", kind)
	}
	return nil
}

func remoteError(body json.RawMessage) error {
	var e errorWire
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		return fmt.Errorf("peer returned an error")
	}
	return fmt.Errorf("peer error: %s", e.Message)
}
