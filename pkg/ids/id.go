package ids

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/luxfi/crypto/hashing"
)

// ID represents a unique identifier
type ID [32]byte

// Empty is the zero ID
var Empty = ID{}

// GenerateTestID creates a random ID for testing
func GenerateTestID() ID {
	var id ID
	rand.Read(id[:])
	return id
}

// AuctionID derives the identifier for a sell/settle token pair. The
// registry name is part of the preimage so two deployments auctioning
// the same pair get distinct IDs, and each field is length-prefixed so
// the encoding is unambiguous.
func AuctionID(registry, fromToken, toToken string) ID {
	parts := []string{registry, fromToken, toToken}
	size := len("auction")
	for _, p := range parts {
		size += 4 + len(p)
	}

	preimage := make([]byte, 0, size)
	preimage = append(preimage, "auction"...)
	for _, p := range parts {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		preimage = append(preimage, n[:]...)
		preimage = append(preimage, p...)
	}

	var id ID
	copy(id[:], hashing.ComputeHash256(preimage))
	return id
}

// String returns the hex representation of the ID
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the byte representation of the ID
func (id ID) Bytes() []byte {
	return id[:]
}

// IsEmpty reports whether the ID is the zero value
func (id ID) IsEmpty() bool {
	return id == Empty
}

// MarshalText renders the ID as hex so it can be used in JSON payloads
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses a hex-encoded ID
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// FromString creates an ID from a hex string
func FromString(s string) (ID, error) {
	var id ID
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(bytes) != 32 {
		return id, fmt.Errorf("invalid ID length: expected 32, got %d", len(bytes))
	}
	copy(id[:], bytes)
	return id, nil
}
