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
	argon2Prefix = "$argon2id$"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	ErrMalformedHash   = errors.New("malformed password hash")
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// MaxPasswordBytes bounds the input to the KDF so that a huge password
// cannot be used to burn CPU.
const MaxPasswordBytes = 1024

// Params are the Argon2id cost parameters. Memory is in KiB.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the OWASP baseline: 64 MiB, 3 passes, 2 lanes.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Params) validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKB)
	case p.Time < minTimeCost:
		return errors.New("argon2 time must be >= 1")
	case p.Parallelism < minParallelism:
		return errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return fmt.Errorf("argon2 salt length must be >= %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return fmt.Errorf("argon2 key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes and verifies Argon2id PHC strings. It is stateless and
// safe for concurrent use.
type Argon2 struct {
	params Params
}

// NewArgon2 validates p and returns a hasher.
func NewArgon2(p Params) (*Argon2, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Argon2{params: p}, nil
}

// Hash returns the PHC encoding of password under a fresh random salt.
// Bytes are hashed exactly as given; no Unicode normalization is applied.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkInput(password); err != nil {
		return "", err
	}

	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)
	return encodePHC(phc{
		memory:      a.params.Memory,
		time:        a.params.Time,
		parallelism: a.params.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify recomputes the key with the parameters stored in encoded and
// compares in constant time.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's, so the caller can upgrade it after a successful
// login.
func (a *Argon2) NeedsRehash(encoded string) (bool, error) {
	h, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.memory < a.params.Memory ||
		h.time < a.params.Time ||
		h.parallelism < a.params.Parallelism ||
		uint32(len(h.key)) != a.params.KeyLength, nil
}

func checkInput(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
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

// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt b64>$<key b64>
func encodePHC(h phc) string {
	return fmt.Sprintf(
		"%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		h.memory,
		h.time,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

func decodePHC(encoded string) (phc, error) {
	var h phc
	if !strings.HasPrefix(encoded, argon2Prefix) {
		return h, ErrUnsupportedHash
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return h, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return h, ErrMalformedHash
	}
	if version != argon2.Version {
		return h, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, version)
	}

	if err := parseCost(parts[3], &h); err != nil {
		return h, err
	}

	h.salt, err = decodeB64(parts[4])
	if err != nil || len(h.salt) < int(minSaltLength) {
		return h, ErrMalformedHash
	}
	h.key, err = decodeB64(parts[5])
	if err != nil || len(h.key) < int(minKeyLength) {
		return h, ErrMalformedHash
	}
	return h, nil
}

func parseCost(part string, h *phc) error {
	var seen int
	for _, pair := range strings.Split(part, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return ErrMalformedHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return ErrMalformedHash
		}
		switch k {
		case "m":
			if uint32(n) < minMemoryKB {
				return ErrMalformedHash
			}
			h.memory = uint32(n)
		case "t":
			if uint32(n) < minTimeCost {
				return ErrMalformedHash
			}
			h.time = uint32(n)
		case "p":
			if n < uint64(minParallelism) || n > 255 {
				return ErrMalformedHash
			}
			h.parallelism = uint8(n)
		default:
			return ErrMalformedHash
		}
		seen++
	}
	if seen != 3 {
		return ErrMalformedHash
	}
	return nil
}

// decodeB64 accepts padded and unpadded standard base64; both appear in
// the wild.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
