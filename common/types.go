package common

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	HashLength    = 32
	AddressLength = 32
)

// Hash is a 32-byte content identifier.
type Hash [HashLength]byte

// Null is the distinguished zero hash.
var Null Hash

func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

func HexToHash(s string) Hash { return BytesToHash(FromHex(s)) }

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) IsNull() bool { return h == Null }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(input []byte) error {
	decoded, err := decodeFixed("Hash", input, HashLength)
	if err != nil {
		return err
	}
	copy(h[:], decoded)
	return nil
}

func (h Hash) MarshalJSON() ([]byte, error) { return json.Marshal(h.Hex()) }

func (h *Hash) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}

// Address is a 32-byte public-identity token, derived from a public key or
// from the SHA-256 digest of a canonical name.
type Address [AddressLength]byte

var NullAddress Address

func BytesToAddress(b []byte) Address {
	var a Address
	a.SetBytes(b)
	return a
}

func HexToAddress(s string) Address { return BytesToAddress(FromHex(s)) }

// AddressFromPublicKey derives an Address from a raw public key's bytes.
func AddressFromPublicKey(pub []byte) Address {
	digest := sha256.Sum256(pub)
	return Address(digest)
}

// AddressFromName derives an Address from the SHA-256 digest of the
// lowercased canonical name.
func AddressFromName(name string) Address {
	digest := sha256.Sum256([]byte(strings.ToLower(name)))
	return Address(digest)
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) IsNull() bool { return a == NullAddress }

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

func (a *Address) SetBytes(b []byte) {
	if len(b) > len(a) {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *Address) UnmarshalText(input []byte) error {
	decoded, err := decodeFixed("Address", input, AddressLength)
	if err != nil {
		return err
	}
	copy(a[:], decoded)
	return nil
}

func (a Address) MarshalJSON() ([]byte, error) { return json.Marshal(a.Hex()) }

func (a *Address) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	return a.UnmarshalText([]byte(s))
}

// FromHex decodes a 0x-prefixed (or bare) hex string, ignoring decode
// errors by returning whatever prefix parsed cleanly. Grounded on the
// donor's common.FromHex permissive-decode convention.
func FromHex(s string) []byte {
	if hasHexPrefix(s) {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, _ := hex.DecodeString(s)
	return b
}

func hasHexPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func decodeFixed(typename string, input []byte, length int) ([]byte, error) {
	s := string(input)
	if hasHexPrefix(s) {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %s: %w", typename, err)
	}
	if len(b) != length {
		return nil, fmt.Errorf("invalid %s length %d, want %d", typename, len(b), length)
	}
	return b, nil
}
