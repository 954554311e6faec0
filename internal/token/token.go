package token

// Package token signs and verifies the two token classes used by the auth
// pipeline. Access and refresh tokens are HS256 JWTs with separate secrets
// and separate expiration policies; verification failures are collapsed into
// the sentinel errors below so callers can branch without inspecting
// library-specific error values.

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. ErrInvalid is the generic fallback for any
// failure that is not one of the distinguished kinds.
var (
	ErrExpired     = errors.New("token expired")
	ErrMalformed   = errors.New("token malformed or signature invalid")
	ErrNotYetValid = errors.New("token not yet valid")
	ErrInvalid     = errors.New("token invalid")

	// ErrNoSecret is returned when a signing secret is not configured.
	// This is a deployment error, not a client failure.
	ErrNoSecret = errors.New("signing secret not configured")
)

// AccessClaims is the access-token payload. The wire field names match what
// the frontend and the previous deployment of this system expect.
type AccessClaims struct {
	jwt.RegisteredClaims

	UserID         int64  `json:"id"`
	Role           string `json:"role"`
	EmployeeID     *int64 `json:"employee,omitempty"`
	ProviderUserID string `json:"msGraphUserId,omitempty"`
	Email          string `json:"email,omitempty"`

	// RefreshToken optionally binds this access token to the refresh token
	// live at issuance time. When present, the auth middleware compares it
	// against the persisted value, which is what makes server-side
	// blacklisting of unexpired access tokens possible.
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshClaims is the refresh-token payload: the user id plus the
// registered claims.
type RefreshClaims struct {
	jwt.RegisteredClaims

	UserID int64 `json:"id"`
}

// Options configures a Codec. Secrets are intentionally not defaulted.
type Options struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Codec signs and verifies access and refresh tokens. It holds no other
// state and is safe for concurrent use.
type Codec struct {
	opts Options
}

// New constructs a Codec. Missing secrets are not rejected here: they fail
// at the call site so the middleware can report a 500 misconfiguration on
// the request path instead of at startup.
func New(opts Options) *Codec {
	return &Codec{opts: opts}
}

// HasAccessSecret reports whether the access-token secret is configured.
func (c *Codec) HasAccessSecret() bool { return c.opts.AccessSecret != "" }

// HasRefreshSecret reports whether the refresh-token secret is configured.
func (c *Codec) HasRefreshSecret() bool { return c.opts.RefreshSecret != "" }

// SignAccess issues a signed access token for the given claims, filling
// issuer, iat, and exp from the codec options.
func (c *Codec) SignAccess(claims AccessClaims) (string, error) {
	if c.opts.AccessSecret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.opts.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.opts.AccessTTL)),
	}
	return sign(claims, c.opts.AccessSecret)
}

// SignRefresh issues a signed refresh token for the given user id.
func (c *Codec) SignRefresh(userID int64) (string, error) {
	if c.opts.RefreshSecret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.opts.RefreshTTL)),
		},
		UserID: userID,
	}
	return sign(claims, c.opts.RefreshSecret)
}

// VerifyAccess parses and verifies an access token. On failure the returned
// error matches exactly one of ErrExpired, ErrNotYetValid, ErrMalformed, or
// ErrInvalid under errors.Is.
func (c *Codec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	if c.opts.AccessSecret == "" {
		return nil, ErrNoSecret
	}
	var claims AccessClaims
	if err := verify(tokenString, c.opts.AccessSecret, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// VerifyRefresh parses and verifies a refresh token with the same error
// mapping as VerifyAccess.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	if c.opts.RefreshSecret == "" {
		return nil, ErrNoSecret
	}
	var claims RefreshClaims
	if err := verify(tokenString, c.opts.RefreshSecret, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func sign(claims jwt.Claims, secret string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Join(ErrInvalid, err)
	}
	return signed, nil
}

func verify(tokenString, secret string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return mapVerifyError(err)
	}
	return nil
}

// mapVerifyError collapses golang-jwt failures into the package sentinels.
// Expiry is checked before malformation because jwt joins several errors
// and expiry is the actionable one for clients.
func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.Join(ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return errors.Join(ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.Join(ErrMalformed, err)
	default:
		return errors.Join(ErrInvalid, err)
	}
}
