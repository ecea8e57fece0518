package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HandleSize is the fixed width of a hash handle in bytes
const HandleSize = sha256.Size

// Handle is the fixed-width opaque stand-in for a raw identifier.
// Only handles ever reach the external ledger; the raw value never
// leaves the internal tier.
type Handle [HandleSize]byte

// ZeroHandle is the distinguished value for an absent optional
// reference, e.g. a consent with no associated record
var ZeroHandle = Handle{}

// IsZero reports whether h is the distinguished absent handle
func (h Handle) IsZero() bool {
	return h == ZeroHandle
}

// Hex renders the handle in its canonical lowercase hex encoding
func (h Handle) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer
func (h Handle) String() string {
	return h.Hex()
}

// Gateway maps sensitive identifiers to fixed-width handles. It is a
// pure function holder with no state; the same raw value always
// yields the same handle, which lets the ledger correlate entries
// without ever learning the value itself.
//
// Callers must never feed an already-hashed value back through Hash.
type Gateway struct{}

// NewGateway creates a hash gateway
func NewGateway() *Gateway {
	return &Gateway{}
}

// Hash derives the handle for a raw identifier
func (g *Gateway) Hash(raw string) Handle {
	return Handle(sha256.Sum256([]byte(raw)))
}

// HashOptional derives a handle for an optional identifier, returning
// ZeroHandle for the empty string
func (g *Gateway) HashOptional(raw string) Handle {
	if raw == "" {
		return ZeroHandle
	}
	return g.Hash(raw)
}

// ParseHandle decodes the canonical hex encoding back into a Handle
func ParseHandle(s string) (Handle, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroHandle, fmt.Errorf("invalid handle encoding: %w", err)
	}
	if len(b) != HandleSize {
		return ZeroHandle, fmt.Errorf("invalid handle length: got %d bytes, want %d", len(b), HandleSize)
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}
