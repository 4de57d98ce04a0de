package token

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehmetcc/hospital-equipment-service/internal/account"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T) (*Codec, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	c, err := NewCodec(testSecret, "HS256", WithClock(clk.Now))
	require.NoError(t, err)
	return c, clk
}

var alice = Subject{AccountID: 42, Username: "alice", Role: account.Technician}

func TestMintAndDecodeAccess(t *testing.T) {
	c, clk := newTestCodec(t)

	raw, minted, err := c.MintAccess(alice, 15*time.Minute)
	require.NoError(t, err)
	assert.Len(t, strings.Split(raw, "."), 3)
	assert.True(t, clk.Now().Add(15*time.Minute).Equal(minted.ExpiresAt))

	claims, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.AccountID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, account.Technician, claims.Role)
	assert.Equal(t, Access, claims.Type)
	assert.Equal(t, minted.ID, claims.ID)
	assert.True(t, claims.IssuedAt.Equal(clk.Now()))
}

func TestMintRefresh_DistinctWithinSameSecond(t *testing.T) {
	c, _ := newTestCodec(t)

	a, _, err := c.MintRefresh(alice, time.Hour)
	require.NoError(t, err)
	b, _, err := c.MintRefresh(alice, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	claims, err := c.Decode(a)
	require.NoError(t, err)
	assert.Equal(t, Refresh, claims.Type)
	assert.Equal(t, uint(42), claims.AccountID)
	assert.Empty(t, claims.Username)
}

func TestDecode_ExpiryBoundary(t *testing.T) {
	c, clk := newTestCodec(t)
	raw, _, err := c.MintAccess(alice, 15*time.Minute)
	require.NoError(t, err)

	clk.Advance(15*time.Minute - time.Second)
	_, err = c.Decode(raw)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = c.Decode(raw)
	assert.ErrorIs(t, err, ErrExpired)

	clk.Advance(time.Hour)
	_, err = c.Decode(raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDecode_TamperedSignature(t *testing.T) {
	c, _ := newTestCodec(t)
	raw, _, err := c.MintAccess(alice, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = c.Decode(parts[0] + "." + parts[1] + "." + string(sig))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecode_WrongSecret(t *testing.T) {
	c, clk := newTestCodec(t)
	other, err := NewCodec("fedcba9876543210fedcba9876543210", "HS256", WithClock(clk.Now))
	require.NoError(t, err)

	raw, _, err := other.MintAccess(alice, time.Minute)
	require.NoError(t, err)
	_, err = c.Decode(raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecode_AlgorithmPinned(t *testing.T) {
	c, clk := newTestCodec(t)
	hs512, err := NewCodec(testSecret, "HS512", WithClock(clk.Now))
	require.NoError(t, err)

	raw, _, err := hs512.MintAccess(alice, time.Minute)
	require.NoError(t, err)
	_, err = c.Decode(raw)
	assert.Error(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id":  42,
		"username": "alice",
		"role":     "ADMIN",
		"type":     "access",
		"iat":      clk.Now().Unix(),
		"exp":      clk.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Decode(unsigned)
	assert.Error(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	c, clk := newTestCodec(t)

	for _, raw := range []string{"", "not-a-token", "a.b", "a.b.c"} {
		_, err := c.Decode(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}

	sign := func(claims jwt.MapClaims) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return raw
	}
	iat, exp := clk.Now().Unix(), clk.Now().Add(time.Hour).Unix()

	missingExp := sign(jwt.MapClaims{"user_id": 42, "type": "refresh", "iat": iat})
	_, err := c.Decode(missingExp)
	assert.Error(t, err)

	unknownType := sign(jwt.MapClaims{"user_id": 42, "type": "session", "iat": iat, "exp": exp})
	_, err = c.Decode(unknownType)
	assert.ErrorIs(t, err, ErrMalformed)

	unknownRole := sign(jwt.MapClaims{"user_id": 42, "username": "alice", "role": "ROOT", "type": "access", "iat": iat, "exp": exp})
	_, err = c.Decode(unknownRole)
	assert.ErrorIs(t, err, ErrMalformed)

	noSubject := sign(jwt.MapClaims{"type": "refresh", "iat": iat, "exp": exp})
	_, err = c.Decode(noSubject)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewCodec_Rejects(t *testing.T) {
	_, err := NewCodec("", "HS256")
	assert.ErrorIs(t, err, ErrEmptySecret)

	for _, alg := range []string{"RS256", "none", "hs256", ""} {
		_, err := NewCodec(testSecret, alg)
		assert.ErrorIs(t, err, ErrUnsupportedAlgorithm, alg)
	}
}

func TestHashToken(t *testing.T) {
	c, _ := newTestCodec(t)
	a, _, err := c.MintRefresh(alice, time.Hour)
	require.NoError(t, err)
	b, _, err := c.MintRefresh(alice, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, HashToken(a), HashToken(a))
	assert.NotEqual(t, HashToken(a), HashToken(b))
	assert.Len(t, HashToken(a), 64)
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashToken(""),
	)
}

func TestDecode_EveryLastSignatureCharTamperRejected(t *testing.T) {
	c, _ := newTestCodec(t)
	raw, _, err := c.MintAccess(alice, time.Minute)
	require.NoError(t, err)

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	cut := strings.LastIndex(raw, ".")
	sig := raw[cut+1:]
	last := sig[len(sig)-1]

	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == last {
			continue
		}
		tampered := raw[:len(raw)-1] + string(alphabet[i])
		_, err := c.Decode(tampered)
		require.Error(t, err, "last signature char %q accepted", alphabet[i])
		assert.True(t,
			errors.Is(err, ErrMalformed) || errors.Is(err, ErrInvalidSignature),
			"unexpected error for %q: %v", alphabet[i], err,
		)
	}
}
