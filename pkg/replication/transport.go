package replication

import (
	"context"

	"github.com/solidb/solidb/pkg/types"
)

// SyncBatch mirrors the SyncBatch{entries, has_more, current_sequence}
// reply spec.md §4.K's pull protocol defines.
type SyncBatch struct {
	Entries         []types.LogEntry
	HasMore         bool
	CurrentSequence uint64
}

// HeartbeatStats is the payload spec.md §4.K sends on every heartbeat
// tick.
type HeartbeatStats struct {
	NodeID     string
	CurrentSeq uint64
}

// Transport is everything the Replication Worker needs from a peer
// connection. pkg/synctransport implements it over the framed,
// HMAC-authenticated TCP protocol spec.md §4.L describes; tests and a
// single-node deployment can use a no-op or in-memory stand-in.
type Transport interface {
	// PullSince requests entries after afterSeq from peerAddr, bounded
	// by maxBatchBytes.
	PullSince(ctx context.Context, peerAddr string, afterSeq uint64, maxBatchBytes int) (SyncBatch, error)
	// SendHeartbeat pushes this node's stats to peerAddr.
	SendHeartbeat(ctx context.Context, peerAddr string, stats HeartbeatStats) error
}
