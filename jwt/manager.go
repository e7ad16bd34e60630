package jwt

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose tags a token with the one operation it may be used for.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposeResetPassword Purpose = "reset-password"
)

// Purposes lists every purpose a Manager must be configured for.
var Purposes = []Purpose{PurposeAccess, PurposeRefresh, PurposeVerifyEmail, PurposeResetPassword}

// SigningMethod selects the signature algorithm of one purpose key.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrInvalidToken covers bad signatures, malformed payloads and unknown keys.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpired is returned once exp has passed (after leeway).
	ErrExpired = errors.New("token expired")
	// ErrWrongPurpose is returned when the typ claim does not match the expected purpose.
	ErrWrongPurpose = errors.New("token purpose mismatch")
)

// KeyConfig is the signing material and lifetime of a single purpose.
type KeyConfig struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256 or the Ed25519 private key
	// (raw or PEM).
	PrivateKey []byte
	PublicKey  []byte
}

// Config configures a Manager.
type Config struct {
	Keys     map[Purpose]KeyConfig
	Issuer   string
	Audience string
	Leeway   time.Duration
	// Now overrides the clock used for iat/exp. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the payload of every token minted by a Manager.
type Claims struct {
	UID   string  `json:"uid"`
	Email string  `json:"email,omitempty"`
	Role  string  `json:"role,omitempty"`
	Type  Purpose `json:"typ"`
	jwt.RegisteredClaims
}

// Subject identifies who a token is minted for.
type Subject struct {
	UID   string
	Email string
	Role  string
}

// Token is a signed token plus the metadata callers need without reparsing.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

type purposeKey struct {
	cfg       KeyConfig
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// Manager mints and verifies purpose-scoped tokens. Each purpose signs with
// its own key, so a token minted for one purpose never verifies as another.
type Manager struct {
	config Config
	keys   map[Purpose]purposeKey
}

// NewManager validates cfg and prepares the keys of every purpose.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{config: cfg, keys: make(map[Purpose]purposeKey, len(Purposes))}
	for _, p := range Purposes {
		kc, ok := cfg.Keys[p]
		if !ok {
			return nil, fmt.Errorf("missing key configuration for purpose %q", p)
		}
		pk, err := preparePurposeKey(kc)
		if err != nil {
			return nil, fmt.Errorf("purpose %q: %w", p, err)
		}
		m.keys[p] = pk
	}

	for i, a := range Purposes {
		for _, b := range Purposes[i+1:] {
			if subtle.ConstantTimeCompare(cfg.Keys[a].PrivateKey, cfg.Keys[b].PrivateKey) == 1 {
				return nil, fmt.Errorf("purposes %q and %q share a signing key", a, b)
			}
		}
	}

	return m, nil
}

func preparePurposeKey(kc KeyConfig) (purposeKey, error) {
	if kc.TTL <= 0 {
		return purposeKey{}, errors.New("invalid TTL configuration")
	}
	switch kc.SigningMethod {
	case MethodHS256, "":
		if len(kc.PrivateKey) < 16 {
			return purposeKey{}, errors.New("hs256 requires a secret of at least 16 bytes")
		}
		kc.SigningMethod = MethodHS256
		return purposeKey{
			cfg:       kc,
			method:    jwt.SigningMethodHS256,
			signKey:   kc.PrivateKey,
			verifyKey: kc.PrivateKey,
		}, nil
	case MethodEd25519:
		priv, err := parseEdPrivateKey(kc.PrivateKey)
		if err != nil {
			return purposeKey{}, err
		}
		var pub ed25519.PublicKey
		if len(kc.PublicKey) > 0 {
			pub, err = parseEdPublicKey(kc.PublicKey)
			if err != nil {
				return purposeKey{}, err
			}
		} else {
			pub = priv.Public().(ed25519.PublicKey)
		}
		return purposeKey{
			cfg:       kc,
			method:    jwt.SigningMethodEdDSA,
			signKey:   priv,
			verifyKey: pub,
		}, nil
	default:
		return purposeKey{}, errors.New("unsupported signing method")
	}
}

// TTL returns the configured lifetime of purpose.
func (m *Manager) TTL(purpose Purpose) time.Duration {
	return m.keys[purpose].cfg.TTL
}

// Issue mints a token for sub scoped to purpose. Every token carries a fresh
// jti so it can be revoked individually.
func (m *Manager) Issue(sub Subject, purpose Purpose) (Token, error) {
	key, ok := m.keys[purpose]
	if !ok {
		return Token{}, fmt.Errorf("unknown purpose %q", purpose)
	}
	if sub.UID == "" {
		return Token{}, errors.New("token subject is empty")
	}

	now := m.config.Now()
	exp := now.Add(key.cfg.TTL)
	claims := Claims{
		UID:   sub.UID,
		Email: sub.Email,
		Role:  sub.Role,
		Type:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(key.method, claims).SignedString(key.signKey)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies tokenStr against the key of purpose. It fails with
// ErrWrongPurpose when the typ claim names another purpose, ErrExpired once
// the token has lapsed, and ErrInvalidToken for anything else.
func (m *Manager) Parse(tokenStr string, purpose Purpose) (*Claims, error) {
	key, ok := m.keys[purpose]
	if !ok {
		return nil, fmt.Errorf("%w: unknown purpose %q", ErrInvalidToken, purpose)
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	peek := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, peek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if peek.Type != purpose {
		return nil, ErrWrongPurpose
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != key.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return key.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UID == "" || claims.ID == "" || claims.Type != purpose {
		return nil, ErrInvalidToken
	}

	return claims, nil
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
