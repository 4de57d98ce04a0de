package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mehmetcc/hospital-equipment-service/internal/password"
)

var (
	ErrHashingPasswordFailed = errors.New("hashing password failed")
	ErrInvalidEmailFormat    = errors.New("invalid email format")
	ErrInvalidRole           = errors.New("invalid role")
)

// SessionRevoker ends every refresh session of an account.
type SessionRevoker interface {
	RevokeAllForAccount(ctx context.Context, accountID uint) (int64, error)
}

type AccountService interface {
	CreateAccount(ctx context.Context, input NewAccount) (*Account, error)
	EnsureAdmin(ctx context.Context, input NewAccount) (bool, error)
	ReadAccountByID(ctx context.Context, id uint) (*Account, error)
	ReadAccountByUsername(ctx context.Context, username string) (*Account, error)
	UpdateAccount(ctx context.Context, id uint, update AccountUpdate) (*Account, error)
	ChangePassword(ctx context.Context, id uint, plaintext string) error
	UpdatePasswordHash(ctx context.Context, id uint, digest string) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	DeleteAccount(ctx context.Context, id uint) error
}

type accountService struct {
	repo    AccountRepository
	hasher  password.Hasher
	revoker SessionRevoker
	logger  *zap.Logger
}

func NewAccountService(
	repo AccountRepository,
	hasher password.Hasher,
	revoker SessionRevoker,
	logger *zap.Logger,
) AccountService {
	return &accountService{
		repo:    repo,
		hasher:  hasher,
		revoker: revoker,
		logger:  logger,
	}
}

/** CREATE */
func (s *accountService) CreateAccount(ctx context.Context, input NewAccount) (*Account, error) {
	if err := s.validate(&input); err != nil {
		s.logger.Warn("validation failed", zap.String("username", input.Username), zap.Error(err))
		return nil, err
	}

	digest, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return nil, ErrHashingPasswordFailed
	}

	account := &Account{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: digest,
		FullName:     input.FullName,
		Role:         input.Role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		s.logger.Error("failed to create account in repository", zap.String("username", input.Username), zap.Error(err))
		return nil, err
	}
	s.logger.Info("account created",
		zap.Uint("user_id", account.ID),
		zap.String("username", account.Username),
		zap.String("role", string(account.Role)),
	)
	return account, nil
}

// EnsureAdmin creates the bootstrap administrator unless an account with that username exists.
func (s *accountService) EnsureAdmin(ctx context.Context, input NewAccount) (bool, error) {
	_, err := s.repo.ReadByUsername(ctx, input.Username)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrAccountNotFound):
		return false, err
	}

	input.Role = Admin
	if _, err := s.CreateAccount(ctx, input); err != nil {
		if errors.Is(err, ErrUsernameAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *accountService) validate(input *NewAccount) error {
	input.Username = strings.TrimSpace(input.Username)
	if err := CheckUsername(input.Username); err != nil {
		return err
	}
	if err := validateEmail(input.Email); err != nil {
		return err
	}
	if input.Role == "" {
		input.Role = Viewer
	}
	if !input.Role.Valid() {
		return ErrInvalidRole
	}
	return CheckPassword(input.Password)
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > 100 {
		return ErrInvalidEmailFormat
	}
	return nil
}

/** READ */
func (s *accountService) ReadAccountByID(ctx context.Context, id uint) (*Account, error) {
	account, err := s.repo.ReadByID(ctx, id)
	if err != nil {
		s.logger.Debug("failed to get account by ID", zap.Uint("user_id", id), zap.Error(err))
		return nil, err
	}
	return account, nil
}

func (s *accountService) ReadAccountByUsername(ctx context.Context, username string) (*Account, error) {
	account, err := s.repo.ReadByUsername(ctx, username)
	if err != nil {
		s.logger.Debug("failed to get account by username", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	return account, nil
}

/** UPDATE */
func (s *accountService) UpdateAccount(ctx context.Context, id uint, update AccountUpdate) (*Account, error) {
	if update.Email != nil {
		if err := validateEmail(*update.Email); err != nil {
			return nil, err
		}
	}
	if update.Role != nil && !update.Role.Valid() {
		return nil, ErrInvalidRole
	}

	account, err := s.repo.ReadByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to update account, account not found", zap.Uint("user_id", id), zap.Error(err))
		return nil, err
	}

	wasActive := account.IsActive
	if update.Email != nil {
		account.Email = *update.Email
	}
	if update.FullName != nil {
		account.FullName = update.FullName
	}
	if update.Role != nil {
		account.Role = *update.Role
	}
	if update.IsActive != nil {
		account.IsActive = *update.IsActive
	}

	if err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to update account in repository", zap.Uint("user_id", id), zap.Error(err))
		return nil, err
	}

	if wasActive && !account.IsActive {
		if err := s.revokeSessions(ctx, id); err != nil {
			return nil, err
		}
	}
	return account, nil
}

// ChangePassword replaces the password and ends every existing session.
func (s *accountService) ChangePassword(ctx context.Context, id uint, plaintext string) error {
	if err := CheckPassword(plaintext); err != nil {
		s.logger.Warn("invalid password format", zap.Uint("user_id", id), zap.Error(err))
		return err
	}

	digest, err := s.hasher.Hash(ctx, plaintext)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return ErrHashingPasswordFailed
	}

	if err := s.repo.UpdatePasswordHash(ctx, id, digest); err != nil {
		s.logger.Error("failed to update password in repository", zap.Uint("user_id", id), zap.Error(err))
		return err
	}
	return s.revokeSessions(ctx, id)
}

func (s *accountService) UpdatePasswordHash(ctx context.Context, id uint, digest string) error {
	if err := s.repo.UpdatePasswordHash(ctx, id, digest); err != nil {
		s.logger.Error("failed to store rehashed password", zap.Uint("user_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *accountService) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	if err := s.repo.UpdateLastLogin(ctx, id, at.UTC()); err != nil {
		s.logger.Error("failed to update last login", zap.Uint("user_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *accountService) revokeSessions(ctx context.Context, id uint) error {
	n, err := s.revoker.RevokeAllForAccount(ctx, id)
	if err != nil {
		s.logger.Error("failed to revoke sessions", zap.Uint("user_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("sessions revoked", zap.Uint("user_id", id), zap.Int64("count", n))
	return nil
}

/** DELETE */
func (s *accountService) DeleteAccount(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete account", zap.Uint("user_id", id), zap.Error(err))
		return err
	}
	return nil
}
