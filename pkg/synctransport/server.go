package synctransport

import (
	"encoding/json"
	"net"

	"github.com/rs/zerolog"

	"github.com/solidb/solidb/pkg/types"
)

// LogSource is the local node's operation log, satisfied by
// *pkg/oplog.Log. The server answers IncrementalSyncRequests by reading
// straight from it.
type LogSource interface {
	After(after uint64, limit int) ([]types.LogEntry, error)
	LastSeq() uint64
}

// pullBatchLimit bounds how many log entries a single IncrementalSyncRequest
// reply considers before MaxBatchBytes trims it further; the original
// protocol bounds by bytes, not count, so this is generous headroom.
const pullBatchLimit = 5000

// HeartbeatReceiver has the signature of the onHeartbeat callback that
// Listen takes. Server stores that callback as a func and does not use
// this interface; pkg/replication.Worker.ReceiveHeartbeat takes a
// HeartbeatStats and does not satisfy it.
type HeartbeatReceiver interface {
	ReceiveHeartbeat(nodeID string, currentSeq uint64) error
}

// Server accepts sync connections, authenticates them, and serves
// IncrementalSyncRequest / Heartbeat messages (spec.md §4.L, §4.K).
type Server struct {
	listener net.Listener
	key      []byte
	log      LogSource
	heartbeats heartbeatReceiverFunc
	logger   zerolog.Logger

	done chan struct{}
}

type heartbeatReceiverFunc func(nodeID string, currentSeq uint64) error

// Listen opens a TCP listener on bindAddr and returns a Server ready to
// Serve. key is the shared cluster secret (security.DeriveKeyFromClusterID);
// pass nil to run unauthenticated.
func Listen(bindAddr string, key []byte, log LogSource, onHeartbeat func(nodeID string, currentSeq uint64) error, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, key: key, log: log, heartbeats: onHeartbeat, logger: logger, done: make(chan struct{})}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve accepts connections until Close is called. Call it in its own
// goroutine.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Warn().Err(err).Msg("sync transport accept failed")
				continue
			}
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	close(s.done)
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	if err := serverHandshake(conn, s.key); err != nil {
		s.logger.Warn().Str("peer", conn.RemoteAddr().String()).Err(err).Msg("sync handshake failed")
		return
	}

	for {
		kind, body, err := readMessage(conn)
		if err != nil {
			return
		}
		switch kind {
		case kindIncrementalSyncRequest:
			if err := s.handlePull(conn, body); err != nil {
				s.writeError(conn, err)
				return
			}
		case kindHeartbeat:
			if err := s.handleHeartbeat(conn, body); err != nil {
				s.writeError(conn, err)
				return
			}
		default:
			s.writeError(conn, errUnknownMessage(kind))
			return
		}
	}
}

func (s *Server) handlePull(conn net.Conn, body json.RawMessage) error {
	var req incrementalSyncRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return err
	}

	entries, err := s.log.After(req.AfterSequence, pullBatchLimit)
	if err != nil {
		return err
	}

	maxBatchBytes := req.MaxBatchBytes
	if maxBatchBytes <= 0 {
		maxBatchBytes = 1024 * 1024
	}
	trimmed := make([]types.LogEntry, 0, len(entries))
	size := 0
	hasMore := false
	for i, e := range entries {
		size += len(e.Data) + len(e.DeltaData) + 128
		if size > maxBatchBytes && len(trimmed) > 0 {
			hasMore = i < len(entries)
			break
		}
		trimmed = append(trimmed, e)
	}
	if len(trimmed) == len(entries) && len(entries) == pullBatchLimit {
		hasMore = s.log.LastSeq() > entries[len(entries)-1].Seq
	}

	return writeMessage(conn, kindSyncBatch, syncBatchWire{
		Entries:         trimmed,
		HasMore:         hasMore,
		CurrentSequence: s.log.LastSeq(),
	})
}

func (s *Server) handleHeartbeat(conn net.Conn, body json.RawMessage) error {
	var hb heartbeatWire
	if err := json.Unmarshal(body, &hb); err != nil {
		return err
	}
	if s.heartbeats != nil {
		if err := s.heartbeats(hb.NodeID, hb.CurrentSeq); err != nil {
			return err
		}
	}
	return writeMessage(conn, kindHeartbeatAck, struct{}{})
}

func (s *Server) writeError(conn net.Conn, err error) {
	_ = writeMessage(conn, kindError, errorWire{Message: err.Error()})
}

type unknownMessageError struct{ kind messageKind }

func (e unknownMessageError) Error() string { return "unknown sync message kind: " + string(e.kind) }

func errUnknownMessage(kind messageKind) error { return unknownMessageError{kind: kind} }
