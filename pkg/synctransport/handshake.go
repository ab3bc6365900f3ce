package synctransport

import (
	"fmt"
	"io"

	"github.com/solidb/solidb/pkg/security"
)

// clientHandshake sends the magic header and, when key is non-empty,
// completes the AuthChallenge/AuthResponse/AuthResult exchange
// (spec.md §4.L). An empty key means the cluster runs unauthenticated
// and the challenge/response is skipped entirely.
func clientHandshake(rw io.ReadWriter, key []byte) error {
	if _, err := rw.Write(magic); err != nil {
		return fmt.Errorf("send magic: %w", err)
	}
	if len(key) == 0 {
		return nil
	}

	challenge, err := readFrame(rw)
	if err != nil {
		return fmt.Errorf("read auth challenge: %w", err)
	}
	response := security.RespondToChallenge(key, challenge)
	if err := writeFrame(rw, response); err != nil {
		return fmt.Errorf("send auth response: %w", err)
	}

	result, err := readFrame(rw)
	if err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	if len(result) == 0 || result[0] != 1 {
		return fmt.Errorf("peer rejected authentication: %s", string(result[min(1, len(result)):]))
	}
	return nil
}

// serverHandshake verifies the magic header and, when key is non-empty,
// drives the server side of the challenge/response exchange.
func serverHandshake(rw io.ReadWriter, key []byte) error {
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(rw, got); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	for i := range magic {
		if got[i] != magic[i] {
			return fmt.Errorf("bad sync protocol magic")
		}
	}
	if len(key) == 0 {
		return nil
	}

	challenge, err := security.NewChallenge()
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}
	if err := writeFrame(rw, challenge); err != nil {
		return fmt.Errorf("send auth challenge: %w", err)
	}

	response, err := readFrame(rw)
	if err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	ok := security.VerifyChallengeResponse(key, challenge, response)
	result := []byte{0}
	if ok {
		result = []byte{1}
	}
	if err := writeFrame(rw, result); err != nil {
		return fmt.Errorf("send auth result: %w", err)
	}
	if !ok {
		return fmt.Errorf("peer failed authentication")
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
