// Package digest implements the content-addressing scheme of the ledger.
//
// Every identifier and every free-text description that enters the ledger is
// reduced to a 256-bit Keccak-256 digest. Human-readable ids are never stored;
// only their digest is used as a key. Description digests anchor the
// tamper-evidence of the event history.
package digest

import (
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the length of a digest in bytes.
const Size = 32

// Digest is a 256-bit Keccak-256 value.
type Digest [Size]byte

// Zero is the all-zero digest. It is used as the previous hash of the first
// event of every record.
var Zero Digest

// ErrInvalid is returned when a textual digest cannot be decoded.
var ErrInvalid = errors.New("invalid digest")

// New returns a Keccak-256 hasher whose Sum can be converted with FromHash.
func New() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// Of returns the digest of b.
func Of(b []byte) Digest {
	h := New()
	h.Write(b) //nolint:errcheck
	return FromHash(h)
}

// OfString returns the digest of the UTF-8 bytes of s.
func OfString(s string) Digest {
	return Of([]byte(s))
}

// FromHash returns the current sum of h as a Digest.
func FromHash(h hash.Hash) Digest {
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Parse decodes a hex digest, with or without the 0x prefix.
func Parse(s string) (Digest, error) {
	var d Digest
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != 2*Size {
		return d, fmt.Errorf("%w: want %d hex characters, got %d", ErrInvalid, 2*Size, len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return d, nil
}

// String returns the 0x-prefixed lowercase hex form.
func (d Digest) String() string {
	return "0x" + hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Zero
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer. Digests are stored as raw 32-byte blobs.
func (d Digest) Value() (driver.Value, error) {
	return d[:], nil
}

// Scan implements sql.Scanner.
func (d *Digest) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		if len(v) != Size {
			return fmt.Errorf("%w: stored value has %d bytes", ErrInvalid, len(v))
		}
		copy(d[:], v)
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case nil:
		*d = Zero
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalid, src)
	}
}
