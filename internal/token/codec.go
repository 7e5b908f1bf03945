package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the wire shape shared by access and refresh tokens. Role names
// are embedded at mint time, so role changes only propagate on the next
// login or refresh.
type Claims struct {
	TokenType string   `json:"type"`
	Roles     []string `json:"role"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Codec mints and verifies HS256-signed tokens. It is stateless and safe
// for concurrent use.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(secret string, accessTTL, refreshTTL time.Duration) *Codec {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) CreateAccessToken(subject string, roles []string) (string, error) {
	return c.sign(subject, roles, TypeAccess, c.accessTTL)
}

func (c *Codec) CreateRefreshToken(subject string, roles []string) (string, error) {
	return c.sign(subject, roles, TypeRefresh, c.refreshTTL)
}

func (c *Codec) CreateTokens(subject string, roles []string) (Pair, error) {
	access, err := c.CreateAccessToken(subject, roles)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := c.CreateRefreshToken(subject, roles)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (c *Codec) sign(subject string, roles []string, tokenType string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		TokenType: tokenType,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			// jti makes every mint unique; without it two tokens signed in
			// the same second for the same subject would collide.
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateAccessToken fails closed: any signature, structure, expiry or
// token-type problem yields false.
func (c *Codec) ValidateAccessToken(tokenStr string) bool {
	claims, err := c.decode(tokenStr)
	if err != nil {
		return false
	}
	return claims.TokenType == TypeAccess
}

// LoginFromAccessToken decodes the token and returns its subject. Using a
// non-access token here is a caller bug, not a normal-path miss, so it is
// surfaced as an error rather than an empty subject.
func (c *Codec) LoginFromAccessToken(tokenStr string) (string, error) {
	claims, err := c.decode(tokenStr)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TypeAccess {
		return "", fmt.Errorf("%w: expected %s token, got %q", ErrWrongTokenType, TypeAccess, claims.TokenType)
	}
	return claims.Subject, nil
}

// RolesFromToken extracts the role claim. Signature verification is part of
// decoding; no further checks are applied.
func (c *Codec) RolesFromToken(tokenStr string) ([]string, error) {
	claims, err := c.decode(tokenStr)
	if err != nil {
		return nil, err
	}
	return claims.Roles, nil
}

// RefreshTokens mints a new pair bound to the refresh token's subject and
// the supplied current role set. Expiry of the refresh token itself is not
// checked here: whether a refresh token is still redeemable is owned by the
// session store, which deletes rows on logout-all and rotation.
func (c *Codec) RefreshTokens(refreshToken string, roles []string) (Pair, error) {
	claims, err := c.decodeUnvalidated(refreshToken)
	if err != nil {
		return Pair{}, err
	}
	if claims.TokenType != TypeRefresh {
		return Pair{}, fmt.Errorf("%w: expected %s token, got %q", ErrWrongTokenType, TypeRefresh, claims.TokenType)
	}
	return c.CreateTokens(claims.Subject, roles)
}

// RemainingTTL reports how long the token stays naturally valid, used to
// size revocation entries. An undecodable token gets the full access TTL so
// a blacklist entry can never expire before the thing it blacklists.
func (c *Codec) RemainingTTL(tokenStr string) time.Duration {
	claims, err := c.decodeUnvalidated(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return c.accessTTL
	}
	remaining := claims.ExpiresAt.Time.Sub(c.now())
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}

func (c *Codec) decode(tokenStr string) (*Claims, error) {
	return c.parse(tokenStr)
}

func (c *Codec) decodeUnvalidated(tokenStr string) (*Claims, error) {
	return c.parse(tokenStr, jwt.WithoutClaimsValidation())
}

func (c *Codec) parse(tokenStr string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var (
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired and ErrWrongTokenType are refinements of
	// ErrInvalidToken; errors.Is against ErrInvalidToken matches both.
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrWrongTokenType = fmt.Errorf("%w: wrong token type", ErrInvalidToken)
)
