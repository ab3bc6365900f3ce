package synctransport

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/solidb/solidb/pkg/types"
)

// magic is sent by the client immediately on connect, before any
// authentication, so a server can distinguish a sync connection from
// other traffic (spec.md §4.L).
var magic = []byte("solidb-sync-v1")

// messageKind tags the JSON envelope synctransport exchanges after the
// handshake, standing in for the original's tagged bincode SyncMessage
// union (see pkg/synctransport's package doc for why JSON).
type messageKind string

const (
	kindIncrementalSyncRequest messageKind = "incremental_sync_request"
	kindSyncBatch              messageKind = "sync_batch"
	kindHeartbeat              messageKind = "heartbeat"
	kindHeartbeatAck           messageKind = "heartbeat_ack"
	kindError                  messageKind = "error"
)

type envelope struct {
	Kind messageKind     `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// incrementalSyncRequest is the pull request a peer sends (spec.md
// §4.K step 2).
type incrementalSyncRequest struct {
	FromNode      string `json:"from_node"`
	AfterSequence uint64 `json:"after_sequence"`
	MaxBatchBytes int    `json:"max_batch_bytes"`
}

// syncBatchWire mirrors the SyncBatch{entries, has_more,
// current_sequence} reply (spec.md §4.K step 3).
type syncBatchWire struct {
	Entries         []types.LogEntry `json:"entries"`
	HasMore         bool              `json:"has_more"`
	CurrentSequence uint64            `json:"current_sequence"`
}

type heartbeatWire struct {
	NodeID     string `json:"node_id"`
	CurrentSeq uint64 `json:"current_seq"`
}

type errorWire struct {
	Message string `json:"message"`
}

func writeMessage(w io.Writer, kind messageKind, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", kind, err)
	}
	env, err := json.Marshal(envelope{Kind: kind, Body: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return writeFrame(w, env)
}

func readMessage(r io.Reader) (messageKind, json.RawMessage, error) {
	raw, err := readFrame(r)
	if err != nil {
		return "", nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env.Kind, env.Body, nil
}
