// Package password hashes and verifies the operator password with argon2id.
//
// Hashes are self-describing PHC strings:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// so a stored value keeps verifying after DefaultParams change.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	maxMemoryKB    uint32 = 1024 * 1024
	minTime        uint32 = 1
	maxTime        uint32 = 64
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	maxKeyLength   uint32 = 128
)

// Params are the argon2id cost parameters used for new hashes.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follow the argon2id recommendation for interactive logins.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher produces and checks argon2id PHC strings. It holds no mutable state
// and is safe for concurrent use.
type Hasher struct {
	params Params
	rand   io.Reader
}

// NewHasher validates p and returns a Hasher drawing salts from crypto/rand.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: p, rand: rand.Reader}, nil
}

// Hash returns a PHC string for password with a fresh random salt, so two
// calls with the same input never return the same value.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key for password with the parameters embedded in
// stored and compares in constant time. Any malformed stored value yields
// false, indistinguishable from a mismatch.
func (h *Hasher) Verify(password, stored string) bool {
	p, err := parsePHC(stored)
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))

	return subtle.ConstantTimeCompare(key, p.key) == 1
}

func (p Params) validate() error {
	switch {
	case p.Memory < minMemoryKB || p.Memory > maxMemoryKB:
		return fmt.Errorf("argon2 memory must be within [%d, %d] KiB", minMemoryKB, maxMemoryKB)
	case p.Time < minTime || p.Time > maxTime:
		return fmt.Errorf("argon2 time must be within [%d, %d]", minTime, maxTime)
	case p.Parallelism < minParallelism:
		return errors.New("argon2 parallelism must be positive")
	case p.SaltLength < minSaltLength:
		return fmt.Errorf("salt must be at least %d bytes", minSaltLength)
	case p.KeyLength < minKeyLength || p.KeyLength > maxKeyLength:
		return fmt.Errorf("key length must be within [%d, %d] bytes", minKeyLength, maxKeyLength)
	}
	return nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

var errMalformed = errors.New("malformed argon2id hash")

func parsePHC(s string) (*phc, error) {
	parts := strings.Split(strings.TrimSpace(s), "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, errMalformed
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errMalformed
	}

	out := &phc{}
	var seenM, seenT, seenP bool
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errMalformed
		}
		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minMemoryKB || uint32(v) > maxMemoryKB {
				return nil, errMalformed
			}
			out.memory, seenM = uint32(v), true
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minTime || uint32(v) > maxTime {
				return nil, errMalformed
			}
			out.time, seenT = uint32(v), true
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return nil, errMalformed
			}
			out.parallelism, seenP = uint8(v), true
		default:
			return nil, errMalformed
		}
	}
	if !seenM || !seenT || !seenP {
		return nil, errMalformed
	}

	var err error
	if out.salt, err = decodeB64(parts[4]); err != nil || uint32(len(out.salt)) < minSaltLength {
		return nil, errMalformed
	}
	if out.key, err = decodeB64(parts[5]); err != nil {
		return nil, errMalformed
	}
	if l := uint32(len(out.key)); l < minKeyLength || l > maxKeyLength {
		return nil, errMalformed
	}

	return out, nil
}

// decodeB64 accepts both unpadded (reference encoding) and padded base64.
func decodeB64(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
