package synctransport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

const (
	compressionThreshold = 64 * 1024
	maxMessageSize       = 10 * 1024 * 1024
)

// writeFrame writes one [compressed: 1 byte][length: 4 bytes BE][payload]
// frame, compressing payload with LZ4 first when it is larger than
// compressionThreshold (spec.md §4.L).
func writeFrame(w io.Writer, payload []byte) error {
	compressed := byte(0)
	out := payload
	if len(payload) > compressionThreshold {
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("lz4 compress frame: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("lz4 compress frame: %w", err)
		}
		if buf.Len() < len(payload) {
			compressed = 1
			out = buf.Bytes()
		}
	}
	if len(out) > maxMessageSize {
		return fmt.Errorf("frame of %d bytes exceeds max message size %d", len(out), maxMessageSize)
	}

	header := make([]byte, 5)
	header[0] = compressed
	binary.BigEndian.PutUint32(header[1:], uint32(len(out)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one frame and returns its decompressed payload.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	compressed := header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxMessageSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds max message size %d", length, maxMessageSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	if compressed == 0 {
		return body, nil
	}

	zr := lz4.NewReader(bytes.NewReader(body))
	out, err := io.ReadAll(io.LimitReader(zr, maxMessageSize+1))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress frame: %w", err)
	}
	if len(out) > maxMessageSize {
		return nil, fmt.Errorf("decompressed frame exceeds max message size %d", maxMessageSize)
	}
	return out, nil
}
