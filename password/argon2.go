package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	floorMemoryKB  uint32 = 8 * 1024
	floorSaltBytes uint32 = 16
	floorKeyBytes  uint32 = 16
	minSecretBytes        = 10
	phcAlgorithm          = "argon2id"
)

// DefaultMaxPasswordBytes caps secret length when Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrSecretTooShort is returned by Hash when the trimmed secret is shorter than 10 bytes.
	ErrSecretTooShort = errors.New("password must be at least 10 bytes")
	// ErrSecretTooLong is returned by Hash and Verify before any key derivation runs.
	ErrSecretTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash wraps every reason a stored digest could not be decoded.
	ErrMalformedHash = errors.New("malformed credential hash")
)

// Config holds the argon2id cost parameters used for new hashes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxPasswordBytes bounds the trimmed secret. Zero means DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

// cost is the part of a digest that decides how expensive derivation is.
type cost struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func (c cost) derive(secret string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(secret), salt, c.time, c.memory, c.parallelism, keyLen)
}

// weakerThan reports whether any dimension of c is below other.
func (c cost) weakerThan(other cost) bool {
	return c.memory < other.memory || c.time < other.time || c.parallelism < other.parallelism
}

// digest is a decoded PHC string.
type digest struct {
	cost
	salt []byte
	key  []byte
}

func (d digest) String() string {
	enc := base64.StdEncoding
	return "$" + phcAlgorithm +
		"$v=" + strconv.Itoa(argon2.Version) +
		fmt.Sprintf("$m=%d,t=%d,p=%d", d.memory, d.time, d.parallelism) +
		"$" + enc.EncodeToString(d.salt) +
		"$" + enc.EncodeToString(d.key)
}

// Argon2 is the credential verifier. It holds no state besides its
// configuration and is safe for concurrent use.
type Argon2 struct {
	config Config
	cost   cost
}

// NewArgon2 validates cfg against the minimum cost floor and returns a verifier.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < floorMemoryKB:
		return nil, fmt.Errorf("password memory must be >= %d KB", floorMemoryKB)
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < floorSaltBytes:
		return nil, fmt.Errorf("password salt length must be >= %d", floorSaltBytes)
	case cfg.KeyLength < floorKeyBytes:
		return nil, fmt.Errorf("password key length must be >= %d", floorKeyBytes)
	case cfg.MaxPasswordBytes < 0:
		return nil, errors.New("password max bytes must be >= 0")
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{
		config: cfg,
		cost:   cost{memory: cfg.Memory, time: cfg.Time, parallelism: cfg.Parallelism},
	}, nil
}

// Hash trims surrounding whitespace from secret and returns a PHC encoded
// argon2id digest with a fresh random salt.
func (a *Argon2) Hash(secret string) (string, error) {
	secret = Normalize(secret)
	if len(secret) < minSecretBytes {
		return "", ErrSecretTooShort
	}
	if len(secret) > a.config.MaxPasswordBytes {
		return "", ErrSecretTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	d := digest{cost: a.cost, salt: salt}
	d.key = d.derive(secret, salt, a.config.KeyLength)
	return d.String(), nil
}

// Verify reports whether secret, after trimming, matches encoded. The key
// comparison is constant time.
func (a *Argon2) Verify(secret, encoded string) (bool, error) {
	secret = Normalize(secret)
	if len(secret) > a.config.MaxPasswordBytes {
		return false, ErrSecretTooLong
	}
	d, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}
	computed := d.derive(secret, d.salt, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration, or with a different key length.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	d, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}
	return d.weakerThan(a.cost) || uint32(len(d.key)) != a.config.KeyLength, nil
}

// Normalize strips leading and trailing whitespace. Hash and Verify apply
// the same rule, so a pasted trailing newline still matches.
func Normalize(secret string) string {
	return strings.TrimSpace(secret)
}

// Config returns the parameters new hashes are produced with.
func (a *Argon2) Config() Config {
	return a.config
}

func decodeDigest(encoded string) (digest, error) {
	var d digest
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return d, fmt.Errorf("%w: expected 5 fields", ErrMalformedHash)
	}
	if fields[1] != phcAlgorithm {
		return d, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, fields[1])
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return d, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}

	c, err := decodeCost(fields[3])
	if err != nil {
		return d, err
	}
	d.cost = c

	if d.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || uint32(len(d.salt)) < floorSaltBytes {
		return d, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if d.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(d.key) == 0 {
		return d, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return d, nil
}

// decodeCost parses "m=<kb>,t=<n>,p=<n>". Each key must appear exactly once.
func decodeCost(field string) (cost, error) {
	var (
		c    cost
		seen = map[string]bool{}
	)
	pairs := strings.Split(field, ",")
	if len(pairs) != 3 {
		return c, fmt.Errorf("%w: parameters %q", ErrMalformedHash, field)
	}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[key] {
			return c, fmt.Errorf("%w: parameter %q", ErrMalformedHash, pair)
		}
		seen[key] = true

		bits := 32
		if key == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil || v == 0 {
			return c, fmt.Errorf("%w: parameter %q", ErrMalformedHash, pair)
		}
		switch key {
		case "m":
			if v < uint64(floorMemoryKB) {
				return c, fmt.Errorf("%w: memory below floor", ErrMalformedHash)
			}
			c.memory = uint32(v)
		case "t":
			c.time = uint32(v)
		case "p":
			c.parallelism = uint8(v)
		default:
			return c, fmt.Errorf("%w: parameter %q", ErrMalformedHash, key)
		}
	}
	return c, nil
}
