package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

var (
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountNotCreated     = errors.New("account not created")
	ErrAccountNotUpdated     = errors.New("account not updated")
	ErrAccountNotDeleted     = errors.New("account not deleted")
	ErrUnresponsiveDatabase  = errors.New("error occurred during access to user_account table")
)

type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	ReadByID(ctx context.Context, id uint) (*Account, error)
	ReadByUsername(ctx context.Context, username string) (*Account, error)
	Update(ctx context.Context, account *Account) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uint, digest string) error
	Delete(ctx context.Context, id uint) error
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		if dup := duplicateOf(err); dup != nil {
			return dup
		}
		return ErrAccountNotCreated
	}
	return nil
}

func (r *accountRepository) ReadByID(ctx context.Context, id uint) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).
		First(&account, id).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, ErrUnresponsiveDatabase
	}
	return &account, nil
}

func (r *accountRepository) ReadByUsername(ctx context.Context, username string) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&account).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, ErrUnresponsiveDatabase
	}
	return &account, nil
}

// Update writes the mutable profile columns. Save is avoided since it upserts a missing row.
func (r *accountRepository) Update(ctx context.Context, account *Account) error {
	res := r.db.WithContext(ctx).
		Model(account).
		Select("email", "full_name", "role", "is_active").
		Updates(account)
	if res.Error != nil {
		if dup := duplicateOf(res.Error); dup != nil {
			return dup
		}
		return ErrAccountNotUpdated
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", id).
		UpdateColumn("last_login", at)
	if res.Error != nil {
		return ErrUnresponsiveDatabase
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) UpdatePasswordHash(ctx context.Context, id uint, digest string) error {
	res := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", id).
		Update("password_hash", digest)
	if res.Error != nil {
		return ErrAccountNotUpdated
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Delete is a hard delete; refresh_token rows go with it through ON DELETE CASCADE.
func (r *accountRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&Account{}, id)
	if res.Error != nil {
		return ErrAccountNotDeleted
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func duplicateOf(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "username"):
		return ErrUsernameAlreadyExists
	case strings.Contains(pgErr.ConstraintName, "email"):
		return ErrEmailAlreadyExists
	}
	return nil
}
