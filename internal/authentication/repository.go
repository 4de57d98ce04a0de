package authentication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token record not found")
	ErrConflict             = errors.New("refresh token hash already recorded")
	ErrUnresponsiveDatabase = errors.New("error occurred during access to refresh_token table")
)

// RefreshTokenRepository is the token hash store. Every method is a single-row or single-statement
// operation, so concurrent callers rely on row atomicity rather than process locks.
type RefreshTokenRepository interface {
	Record(ctx context.Context, accountID uint, tokenHash string, expiresAt time.Time) error
	Find(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) error
	// Consume flips an unrevoked, unexpired record to revoked and reports whether this call did it.
	Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	RevokeAllForAccount(ctx context.Context, accountID uint) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type refreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Record(ctx context.Context, accountID uint, tokenHash string, expiresAt time.Time) error {
	record := &RefreshToken{
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
	}
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Create(record).
		Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" &&
			strings.Contains(pgErr.ConstraintName, "token_hash") {
			return ErrConflict
		}
		return fmt.Errorf("%w: %w", ErrUnresponsiveDatabase, err)
	}
	return nil
}

func (r *refreshTokenRepository) Find(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var record RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&record).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresponsiveDatabase, err)
	}
	return &record, nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	err := r.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).
		Error
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnresponsiveDatabase, err)
	}
	return nil
}

func (r *refreshTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("token_hash = ? AND revoked = ? AND expires_at > ?", tokenHash, false, now.UTC()).
		Update("revoked", true)
	if res.Error != nil {
		return false, fmt.Errorf("%w: %w", ErrUnresponsiveDatabase, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *refreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("user_id = ? AND revoked = ?", accountID, false).
		Update("revoked", true)
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnresponsiveDatabase, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", before.UTC()).
		Delete(&RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnresponsiveDatabase, res.Error)
	}
	return res.RowsAffected, nil
}
