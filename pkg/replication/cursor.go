package replication

import (
	"encoding/binary"

	"github.com/solidb/solidb/pkg/storage"
)

func cursorCFName(selfID string) string { return "replication:cursors:" + selfID }

// cursorStore persists, per peer node id, the highest origin sequence
// number this node has applied from that peer's log — so a restart
// resumes pulling from where it left off instead of re-applying
// (harmlessly idempotent, but wastefully) everything again.
type cursorStore struct {
	cf storage.CF
}

func openCursorStore(engine storage.Engine, selfID string) (*cursorStore, error) {
	cf, err := engine.ColumnFamily(cursorCFName(selfID))
	if err != nil {
		return nil, err
	}
	return &cursorStore{cf: cf}, nil
}

func (s *cursorStore) Get(peerNodeID string) uint64 {
	v, err := s.cf.Get([]byte(peerNodeID))
	if err != nil || len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (s *cursorStore) Set(peerNodeID string, seq uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return s.cf.Put([]byte(peerNodeID), buf)
}
