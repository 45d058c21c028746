package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access token algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const defaultMaxFutureIAT = 10 * time.Minute

var (
	// ErrMissingKeyID is returned when key ids are in use and a token has none.
	ErrMissingKeyID = errors.New("token has no kid")
	// ErrUnknownKeyID is returned when a token names a key that is not trusted.
	ErrUnknownKeyID = errors.New("token kid is not trusted")
	// ErrIssuedInFuture is returned when iat is beyond MaxFutureIAT from now.
	ErrIssuedInFuture = errors.New("token iat too far in the future")
	// ErrNoSigningKey is returned by CreateAccess on a verify-only manager.
	ErrNoSigningKey = errors.New("manager has no signing key")
)

// Config configures access token signing and verification.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or a raw or PEM ed25519 key.
	PrivateKey []byte
	// PublicKey verifies ed25519 tokens. Derived from PrivateKey when empty.
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
	KeyID        string
	// VerifyKeys, when set, replaces PublicKey: every token must carry a
	// kid found in this map.
	VerifyKeys map[string][]byte
}

// AccessClaims carries the account and session a token was issued for.
type AccessClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and parses session access tokens. Keys are decoded once in
// NewManager.
type Manager struct {
	ttl          time.Duration
	method       jwt.SigningMethod
	signKey      any
	kid          string
	issuer       string
	audience     string
	maxFutureIAT time.Duration

	// keyring maps kid to verification key. With no kids in play it holds a
	// single entry under "".
	keyring map[string]any
	parser  *jwt.Parser
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	m := &Manager{
		ttl:          cfg.AccessTTL,
		kid:          strings.TrimSpace(cfg.KeyID),
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		keyring:      map[string]any{},
	}

	var (
		decodeVerify func([]byte) (any, error)
		defaultKey   any
	)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		defaultKey = cfg.PrivateKey
		decodeVerify = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		decodeVerify = func(b []byte) (any, error) { return parseEdPublicKey(b) }
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			defaultKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			defaultKey = pub
		}
		if defaultKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires a key or verify key set")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := decodeVerify(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			m.keyring[kid] = key
		}
		if m.kid != "" {
			if _, ok := m.keyring[m.kid]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
	} else if m.kid != "" {
		m.keyring[m.kid] = defaultKey
	} else {
		m.keyring[""] = defaultKey
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{m.method.Alg()})}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

// AccessTTL returns the configured token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.ttl
}

// CreateAccess signs a token for accountID and sessionID issued at now. It
// returns the token and its expiry.
func (m *Manager) CreateAccess(accountID, sessionID string, now time.Time) (string, time.Time, error) {
	if m.signKey == nil {
		return "", time.Time{}, ErrNoSigningKey
	}
	expiresAt := now.Add(m.ttl)

	claims := AccessClaims{
		UID: accountID,
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}
	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies the signature and registered claims of raw.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.lookupKey)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UID == "" || claims.SID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(time.Now().Add(m.maxFutureIAT)) {
		return nil, ErrIssuedInFuture
	}
	return claims, nil
}

func (m *Manager) lookupKey(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if key, ok := m.keyring[""]; ok {
		return key, nil
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMissingKeyID
	}
	key, ok := m.keyring[kid]
	if !ok {
		return nil, ErrUnknownKeyID
	}
	return key, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
