package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mehmetcc/hospital-equipment-service/internal/account"
)

// Type distinguishes access tokens from refresh tokens so neither can be replayed as the other.
type Type string

const (
	Access  Type = "access"
	Refresh Type = "refresh"
)

var (
	ErrInvalidSignature     = errors.New("token signature is invalid")
	ErrExpired              = errors.New("token is expired")
	ErrMalformed            = errors.New("token is malformed")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrEmptySecret          = errors.New("signing secret is empty")
)

// Subject is the identity a token is minted for.
type Subject struct {
	AccountID uint
	Username  string
	Role      account.Role
}

// Claims is the decoded claim set of a token.
type Claims struct {
	AccountID uint
	Username  string
	Role      account.Role
	Type      Type
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type payload struct {
	UserID   uint         `json:"user_id"`
	Username string       `json:"username,omitempty"`
	Role     account.Role `json:"role,omitempty"`
	Type     Type         `json:"type"`
	jwt.RegisteredClaims
}

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	jwt.SigningMethodHS256.Alg(): jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Alg(): jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Alg(): jwt.SigningMethodHS512,
}

type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	parser *jwt.Parser
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source used for minting and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(secret, algorithm string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	method, ok := signingMethods[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	c := &Codec{
		secret: []byte(secret),
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Now reports the codec's current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

func (c *Codec) MintAccess(sub Subject, ttl time.Duration) (string, Claims, error) {
	return c.mint(payload{
		UserID:   sub.AccountID,
		Username: sub.Username,
		Role:     sub.Role,
		Type:     Access,
	}, ttl)
}

// MintRefresh carries only the account id; a random jti keeps tokens minted within the
// same second distinct.
func (c *Codec) MintRefresh(sub Subject, ttl time.Duration) (string, Claims, error) {
	return c.mint(payload{
		UserID: sub.AccountID,
		Type:   Refresh,
	}, ttl)
}

func (c *Codec) mint(p payload, ttl time.Duration) (string, Claims, error) {
	now := c.now()
	p.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatUint(uint64(p.UserID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	raw, err := jwt.NewWithClaims(c.method, p).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return raw, claimsOf(&p), nil
}

// Decode verifies signature, algorithm and expiry. A token is valid strictly before its exp.
func (c *Codec) Decode(raw string) (Claims, error) {
	var p payload
	tok, err := c.parser.ParseWithClaims(raw, &p, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !tok.Valid {
		return Claims{}, ErrMalformed
	}

	if p.UserID == 0 || p.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%w: missing identity", ErrMalformed)
	}
	switch p.Type {
	case Access:
		if p.Username == "" || !p.Role.Valid() {
			return Claims{}, fmt.Errorf("%w: incomplete access claims", ErrMalformed)
		}
	case Refresh:
	default:
		return Claims{}, fmt.Errorf("%w: unknown token type %q", ErrMalformed, p.Type)
	}
	return claimsOf(&p), nil
}

func claimsOf(p *payload) Claims {
	claims := Claims{
		AccountID: p.UserID,
		Username:  p.Username,
		Role:      p.Role,
		Type:      p.Type,
		ID:        p.ID,
	}
	if p.IssuedAt != nil {
		claims.IssuedAt = p.IssuedAt.Time
	}
	if p.ExpiresAt != nil {
		claims.ExpiresAt = p.ExpiresAt.Time
	}
	return claims
}

// HashToken returns the hex SHA-256 of a raw token. It is a storage lookup key, not a proof of
// authenticity.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
