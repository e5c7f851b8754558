package auth // package auth issues and verifies session tokens and gates roles

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime used when none is configured.
const DefaultTTL = 30 * time.Minute

var (
    ErrMissingToken    = errors.New("auth: missing token")
    ErrMalformedToken  = errors.New("auth: malformed token")
    ErrExpiredToken    = errors.New("auth: token expired")
    ErrUnknownIdentity = errors.New("auth: unknown identity")
)

// Claims is the payload carried by a session token.  Identity is the
// user's email and is resolved against the user store on every request;
// the remaining fields are informational snapshots taken at issue time.
type Claims struct {
    Identity  string `json:"useremail"`
    Name      string `json:"username"`
    Role      string `json:"role"`
    LastLogin string `json:"lastlogin"`
    jwt.RegisteredClaims
}

// Token is a signed session token and its expiry.
type Token struct {
    Raw       string    `json:"token"`
    ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator signs and verifies HS256 session tokens with a shared
// secret.  It holds no per-token state: a token is valid until it expires
// and cannot be revoked or extended.
type Authenticator struct {
    secret []byte
    ttl    time.Duration
    now    func() time.Time
}

// NewAuthenticator returns an authenticator signing with secret.  A
// non-positive ttl falls back to DefaultTTL.
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
    if ttl <= 0 {
        ttl = DefaultTTL
    }
    return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the clock used for verification.  Tests use it to
// move past a token's expiry without sleeping.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
    cp := *a
    cp.now = now
    return &cp
}

// TTL reports the configured token lifetime.
func (a *Authenticator) TTL() time.Duration { return a.ttl }

// Issue signs a token for identity that expires ttl after issuedAt.
func (a *Authenticator) Issue(identity, name, role string, lastLogin, issuedAt time.Time) (Token, error) {
    if strings.TrimSpace(identity) == "" {
        return Token{}, ErrUnknownIdentity
    }
    exp := issuedAt.Add(a.ttl)
    claims := Claims{
        Identity:  identity,
        Name:      name,
        Role:      role,
        LastLogin: lastLogin.UTC().Format(time.RFC3339),
        RegisteredClaims: jwt.RegisteredClaims{
            IssuedAt:  jwt.NewNumericDate(issuedAt),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
    if err != nil {
        return Token{}, fmt.Errorf("sign token: %w", err)
    }
    return Token{Raw: signed, ExpiresAt: exp}, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Expiry is evaluated against the authenticator's clock: a token whose
// exp equals now is already expired.
func (a *Authenticator) Verify(raw string) (*Claims, error) {
    raw = strings.TrimSpace(raw)
    if raw == "" {
        return nil, ErrMissingToken
    }
    claims := &Claims{}
    // Expiry is checked below with the injected clock, so the parser's own
    // time validation is disabled.
    parser := jwt.NewParser(
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithoutClaimsValidation(),
    )
    _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
        return a.secret, nil
    })
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
    }
    if claims.ExpiresAt == nil || claims.Identity == "" {
        return nil, ErrMalformedToken
    }
    if !a.now().Before(claims.ExpiresAt.Time) {
        return nil, ErrExpiredToken
    }
    return claims, nil
}
