package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used for both token kinds.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 shared secrets.
	MethodHS256 SigningMethod = "hs256"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Verification failures. Every error returned by VerifyAccess and
// VerifyRefresh matches exactly one of these with errors.Is.
var (
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrNotYetValid      = errors.New("token not yet valid")
)

// Config holds the codec key ring and validation rules.
//
// SigningKeys maps key IDs to signing material: the HMAC secret for
// hs256, the Ed25519 private key (raw or PEM) for ed25519. VerifyKeys
// maps key IDs to Ed25519 public keys accepted during verification; for
// hs256 the signing secrets double as verify keys. ActiveKeyID names the
// key used to sign new tokens; retired keys stay in the ring until every
// token they signed has expired.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	ActiveKeyID   string
	SigningKeys   map[string][]byte
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	Now           func() time.Time
}

// Manager issues and verifies access and refresh tokens. It holds no
// mutable state and is safe for concurrent use.
type Manager struct {
	config     Config
	signKey    interface{}
	verifyKeys map[string]interface{}
}

// AccessClaims is the payload of an access token. Subject carries the
// subject ID and ID carries a per-token nonce.
type AccessClaims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// SubjectID returns the sub claim.
func (c *AccessClaims) SubjectID() string {
	return c.Subject
}

// RemainingTTL reports how long the token stays valid after now. Zero
// means already expired or no exp claim.
func (c *AccessClaims) RemainingTTL(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RefreshClaims is the payload of a refresh token. ID carries the token ID
// that keys the server-side refresh entry.
type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// SubjectID returns the sub claim.
func (c *RefreshClaims) SubjectID() string {
	return c.Subject
}

// TokenID returns the jti claim.
func (c *RefreshClaims) TokenID() string {
	return c.ID
}

// AccessInput is the identity snapshot embedded in a new access token.
type AccessInput struct {
	SubjectID string
	Email     string
	Username  string
	Role      string
}

// NewManager validates cfg and resolves every configured key once, so
// signing and verification never parse key material on the hot path.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.ActiveKeyID = strings.TrimSpace(cfg.ActiveKeyID)
	if cfg.ActiveKeyID == "" {
		return nil, errors.New("active key id is required")
	}
	signMaterial, ok := cfg.SigningKeys[cfg.ActiveKeyID]
	if !ok || len(signMaterial) == 0 {
		return nil, errors.New("ActiveKeyID is not present in SigningKeys")
	}

	m := &Manager{
		config:     cfg,
		verifyKeys: make(map[string]interface{}, len(cfg.SigningKeys)+len(cfg.VerifyKeys)),
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		for kid, secret := range cfg.SigningKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("signing key map contains empty kid")
			}
			if len(secret) < 32 {
				return nil, fmt.Errorf("hs256 secret for kid %q must be at least 32 bytes", kid)
			}
			m.verifyKeys[kid] = secret
		}
		m.signKey = signMaterial
	case MethodEd25519:
		for kid, material := range cfg.SigningKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("signing key map contains empty kid")
			}
			priv, err := parseEdPrivateKey(material)
			if err != nil {
				return nil, fmt.Errorf("invalid ed25519 signing key for kid %q: %w", kid, err)
			}
			m.verifyKeys[kid] = priv.Public().(ed25519.PublicKey)
			if kid == cfg.ActiveKeyID {
				m.signKey = priv
			}
		}
		for kid, material := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			pub, err := parseEdPublicKey(material)
			if err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			m.verifyKeys[kid] = pub
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (j *Manager) RefreshTTL() time.Duration {
	return j.config.RefreshTTL
}

// Now returns the codec clock.
func (j *Manager) Now() time.Time {
	return j.config.Now()
}

// IssueAccess signs a new access token. A non-positive ttl selects the
// configured AccessTTL.
func (j *Manager) IssueAccess(in AccessInput, ttl time.Duration) (string, *AccessClaims, error) {
	if in.SubjectID == "" {
		return "", nil, errors.New("subject id is required")
	}
	if ttl <= 0 {
		ttl = j.config.AccessTTL
	}

	now := j.config.Now()
	claims := &AccessClaims{
		Email:            in.Email,
		Username:         in.Username,
		Role:             in.Role,
		Type:             typeAccess,
		RegisteredClaims: j.registered(in.SubjectID, uuid.NewString(), now, ttl),
	}

	token, err := j.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// IssueRefresh signs a new refresh token carrying a fresh random token ID,
// independent of any previously issued ID. A non-positive ttl selects the
// configured RefreshTTL.
func (j *Manager) IssueRefresh(subjectID string, ttl time.Duration) (string, string, error) {
	if subjectID == "" {
		return "", "", errors.New("subject id is required")
	}
	if ttl <= 0 {
		ttl = j.config.RefreshTTL
	}

	tokenID := uuid.NewString()
	claims := &RefreshClaims{
		Type:             typeRefresh,
		RegisteredClaims: j.registered(subjectID, tokenID, j.config.Now(), ttl),
	}

	token, err := j.sign(claims)
	if err != nil {
		return "", "", err
	}
	return token, tokenID, nil
}

// VerifyAccess checks signature, time claims and token type.
func (j *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Type != typeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrMalformed, claims.Type)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims, nil
}

// VerifyRefresh checks signature, time claims and token type.
func (j *Manager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Type != typeRefresh {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrMalformed, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or token id", ErrMalformed)
	}
	return claims, nil
}

// Decode parses an access token WITHOUT verifying its signature. The
// result is only good for reading exp when sizing a blacklist entry; it
// must never be used to authorize anything.
func (j *Manager) Decode(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

func (j *Manager) registered(subject, id string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

func (j *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)
	token.Header["kid"] = j.config.ActiveKeyID
	return token.SignedString(j.signKey)
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) error {
	if tokenStr == "" {
		return fmt.Errorf("%w: empty token", ErrMalformed)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.verifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	})
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return ErrMalformed
	}
	return nil
}

// classify folds golang-jwt's error tree onto the four codec failures.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	if len(key) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(key), nil
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
