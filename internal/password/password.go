package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Algorithm identifies the one-way function used for new password digests.
type Algorithm string

const (
	Bcrypt   Algorithm = "bcrypt"
	Argon2id Algorithm = "argon2id"
)

const argon2Version = 19

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")
	ErrInvalidHash          = errors.New("invalid password hash")
	ErrInvalidConfig        = errors.New("invalid password hasher config")
)

// Argon2idParams controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Config struct {
	Algorithm  Algorithm
	BcryptCost int
	Argon2id   Argon2idParams
	// Concurrency caps how many hash/verify calls run at once.
	Concurrency int
}

func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	parallelism := threads
	if parallelism > 4 {
		parallelism = 4
	}
	return Config{
		Algorithm:  Bcrypt,
		BcryptCost: bcrypt.DefaultCost,
		Argon2id: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
		Concurrency: threads,
	}
}

// Hasher hashes and verifies account passwords.
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	// Verify never fails loudly: malformed digests, unknown algorithms and
	// cancelled contexts all report false.
	Verify(ctx context.Context, plaintext, digest string) bool
	NeedsRehash(digest string) bool
}

type hasher struct {
	cfg Config
	sem *semaphore.Weighted
}

func NewHasher(cfg Config) (Hasher, error) {
	switch cfg.Algorithm {
	case Bcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("%w: bcrypt cost %d", ErrInvalidConfig, cfg.BcryptCost)
		}
	case Argon2id:
		p := cfg.Argon2id
		if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 || p.SaltLength < 8 || p.KeyLength < 16 {
			return nil, fmt.Errorf("%w: argon2id params", ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &hasher{cfg: cfg, sem: semaphore.NewWeighted(int64(cfg.Concurrency))}, nil
}

func (h *hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	if h.cfg.Algorithm == Argon2id {
		return hashArgon2id(plaintext, h.cfg.Argon2id)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cfg.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *hasher) Verify(ctx context.Context, plaintext, digest string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	switch algorithmOf(digest) {
	case Bcrypt:
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	case Argon2id:
		ok, err := h.verifyArgon2id(plaintext, digest)
		return err == nil && ok
	default:
		return false
	}
}

func (h *hasher) NeedsRehash(digest string) bool {
	algo := algorithmOf(digest)
	if algo != h.cfg.Algorithm {
		return true
	}
	switch algo {
	case Bcrypt:
		cost, err := bcrypt.Cost([]byte(digest))
		return err != nil || cost < h.cfg.BcryptCost
	case Argon2id:
		params, _, _, err := decodeArgon2id(digest)
		if err != nil {
			return true
		}
		want := h.cfg.Argon2id
		return params.MemoryKiB < want.MemoryKiB ||
			params.Iterations < want.Iterations ||
			params.KeyLength < want.KeyLength
	}
	return true
}

func algorithmOf(digest string) Algorithm {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return Argon2id
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return Bcrypt
	}
	return ""
}

// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
func hashArgon2id(plaintext string, p Argon2idParams) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		p.MemoryKiB,
		p.Iterations,
		p.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func (h *hasher) verifyArgon2id(plaintext, digest string) (bool, error) {
	params, salt, expected, err := decodeArgon2id(digest)
	if err != nil {
		return false, err
	}
	// Refuse attacker-supplied digests that would cost far more than our own settings.
	limits := h.cfg.Argon2id
	if limits.MemoryKiB == 0 {
		limits = DefaultConfig().Argon2id
	}
	if uint64(params.MemoryKiB) > 2*uint64(limits.MemoryKiB) ||
		uint64(params.Iterations) > 2*uint64(limits.Iterations) ||
		int(params.Parallelism) > 2*int(limits.Parallelism) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(plaintext), salt, params.Iterations, params.MemoryKiB, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decodeArgon2id(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}, salt, key, nil
}
