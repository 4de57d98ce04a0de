package authentication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mehmetcc/hospital-equipment-service/internal/account"
	"github.com/mehmetcc/hospital-equipment-service/internal/password"
	"github.com/mehmetcc/hospital-equipment-service/internal/token"
)

const (
	TokenTypeBearer   = "bearer"
	maxRecordAttempts = 3
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLoginFailed        = errors.New("login failed")
)

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	TokenType       string
	AccessExpiresAt time.Time
}

type Session struct {
	TokenPair
	Account *account.Account
}

type AuthenticationService interface {
	Login(ctx context.Context, username, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Authorize(ctx context.Context, accessToken string) (*token.Claims, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutEverywhere(ctx context.Context, accountID uint) error
}

type authenticationService struct {
	accountService account.AccountService
	recordRepo     RefreshTokenRepository
	codec          *token.Codec
	hasher         password.Hasher
	metrics        *Metrics
	logger         *zap.Logger

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration

	dummyOnce   sync.Once
	dummyDigest string
}

func NewAuthenticationService(
	accountService account.AccountService,
	recordRepo RefreshTokenRepository,
	codec *token.Codec,
	hasher password.Hasher,
	metrics *Metrics,
	logger *zap.Logger,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthenticationService {
	return &authenticationService{
		accountService:  accountService,
		recordRepo:      recordRepo,
		codec:           codec,
		hasher:          hasher,
		metrics:         metrics,
		logger:          logger,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

func (a *authenticationService) Login(ctx context.Context, username, plaintext string) (*Session, error) {
	user, err := a.accountService.ReadAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			// Keep timing in line with the known-user path.
			a.hasher.Verify(ctx, plaintext, a.dummy())
			a.logger.Debug("login rejected: unknown username", zap.String("username", username))
			a.metrics.login(outcomeRejected)
			return nil, ErrInvalidCredentials
		}
		a.metrics.login(outcomeError)
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	if !a.hasher.Verify(ctx, plaintext, user.PasswordHash) {
		if err := ctx.Err(); err != nil {
			a.metrics.login(outcomeError)
			return nil, err
		}
		a.logger.Debug("login rejected: wrong password", zap.Uint("user_id", user.ID))
		a.metrics.login(outcomeRejected)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		a.logger.Warn("login rejected: account inactive", zap.Uint("user_id", user.ID))
		a.metrics.login(outcomeRejected)
		return nil, ErrInvalidCredentials
	}

	pair, err := a.issue(ctx, user)
	if err != nil {
		a.logger.Error("failed to issue tokens", zap.Uint("user_id", user.ID), zap.Error(err))
		a.metrics.login(outcomeError)
		return nil, err
	}

	now := a.codec.Now().UTC()
	// last-login stamping is best effort; the session is already issued
	if err := a.accountService.TouchLastLogin(ctx, user.ID, now); err != nil {
		a.logger.Warn("last login not recorded", zap.Uint("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
	}
	a.rehash(ctx, user, plaintext)

	a.logger.Info("login succeeded", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	a.metrics.login(outcomeSuccess)
	return &Session{TokenPair: *pair, Account: user}, nil
}

// Refresh rotates a refresh token: the presented one is consumed and a new pair is issued.
func (a *authenticationService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	// 1) Verify signature, expiry and type
	claims, err := a.codec.Decode(refreshToken)
	if err != nil {
		a.logger.Debug("refresh rejected: decode failed", zap.Error(err))
		return nil, a.rejectRefresh()
	}
	if claims.Type != token.Refresh {
		a.logger.Debug("refresh rejected: wrong token type", zap.String("type", string(claims.Type)))
		return nil, a.rejectRefresh()
	}

	// 2) Look up the stored fingerprint
	hash := token.HashToken(refreshToken)
	record, err := a.recordRepo.Find(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			a.logger.Warn("refresh rejected: unknown token", zap.Uint("user_id", claims.AccountID))
			return nil, a.rejectRefresh()
		}
		a.metrics.refresh(outcomeError)
		return nil, err
	}
	now := a.codec.Now()
	if !record.IsValid(now) || record.AccountID != claims.AccountID {
		a.logger.Warn("refresh rejected: token revoked or expired",
			zap.Uint("user_id", claims.AccountID),
			zap.Bool("revoked", record.Revoked),
		)
		return nil, a.rejectRefresh()
	}

	// 3) Account must still be allowed in
	user, err := a.accountService.ReadAccountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, a.rejectRefresh()
		}
		a.metrics.refresh(outcomeError)
		return nil, err
	}
	if !user.IsActive {
		a.logger.Warn("refresh rejected: account inactive", zap.Uint("user_id", user.ID))
		return nil, a.rejectRefresh()
	}

	// 4) Consume the old token; only one concurrent caller wins
	won, err := a.recordRepo.Consume(ctx, hash, now)
	if err != nil {
		a.metrics.refresh(outcomeError)
		return nil, err
	}
	if !won {
		a.logger.Warn("refresh rejected: token already rotated", zap.Uint("user_id", user.ID))
		return nil, a.rejectRefresh()
	}

	// 5) Issue the replacement pair
	pair, err := a.issue(ctx, user)
	if err != nil {
		a.logger.Error("failed to issue tokens", zap.Uint("user_id", user.ID), zap.Error(err))
		a.metrics.refresh(outcomeError)
		return nil, err
	}
	a.metrics.refresh(outcomeSuccess)
	return pair, nil
}

// Authorize checks an access token without touching storage.
func (a *authenticationService) Authorize(_ context.Context, accessToken string) (*token.Claims, error) {
	claims, err := a.codec.Decode(accessToken)
	if err != nil {
		a.logger.Debug("authorization rejected", zap.Error(err))
		a.metrics.authorize(outcomeRejected)
		return nil, ErrUnauthorized
	}
	if claims.Type != token.Access {
		a.logger.Debug("authorization rejected: wrong token type", zap.String("type", string(claims.Type)))
		a.metrics.authorize(outcomeRejected)
		return nil, ErrUnauthorized
	}
	a.metrics.authorize(outcomeSuccess)
	return &claims, nil
}

// Logout revokes the record matching the token's hash. Unknown or garbage tokens match nothing
// and succeed.
func (a *authenticationService) Logout(ctx context.Context, refreshToken string) error {
	if err := a.recordRepo.Revoke(ctx, token.HashToken(refreshToken)); err != nil {
		a.logger.Error("failed to revoke refresh token", zap.Error(err))
		return err
	}
	a.metrics.logout()
	return nil
}

func (a *authenticationService) LogoutEverywhere(ctx context.Context, accountID uint) error {
	n, err := a.recordRepo.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		a.logger.Error("failed to revoke refresh tokens", zap.Uint("user_id", accountID), zap.Error(err))
		return err
	}
	a.logger.Info("all sessions revoked", zap.Uint("user_id", accountID), zap.Int64("count", n))
	return nil
}

func (a *authenticationService) issue(ctx context.Context, user *account.Account) (*TokenPair, error) {
	sub := token.Subject{AccountID: user.ID, Username: user.Username, Role: user.Role}

	access, accessClaims, err := a.codec.MintAccess(sub, a.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		refresh, refreshClaims, err := a.codec.MintRefresh(sub, a.refreshTokenTTL)
		if err != nil {
			return nil, err
		}
		err = a.recordRepo.Record(ctx, user.ID, token.HashToken(refresh), refreshClaims.ExpiresAt)
		switch {
		case err == nil:
			return &TokenPair{
				AccessToken:     access,
				RefreshToken:    refresh,
				TokenType:       TokenTypeBearer,
				AccessExpiresAt: accessClaims.ExpiresAt,
			}, nil
		case errors.Is(err, ErrConflict) && attempt < maxRecordAttempts:
			a.logger.Warn("refresh token hash collision, retrying", zap.Int("attempt", attempt))
		default:
			return nil, err
		}
	}
}

func (a *authenticationService) rehash(ctx context.Context, user *account.Account, plaintext string) {
	if !a.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	digest, err := a.hasher.Hash(ctx, plaintext)
	if err != nil {
		a.logger.Warn("password rehash failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}
	if err := a.accountService.UpdatePasswordHash(ctx, user.ID, digest); err != nil {
		return
	}
	user.PasswordHash = digest
}

func (a *authenticationService) rejectRefresh() error {
	a.metrics.refresh(outcomeRejected)
	return ErrInvalidToken
}

func (a *authenticationService) dummy() string {
	a.dummyOnce.Do(func() {
		digest, err := a.hasher.Hash(context.Background(), "dummy-password-for-timing")
		if err != nil {
			a.logger.Warn("could not prepare dummy digest", zap.Error(err))
			return
		}
		a.dummyDigest = digest
	})
	return a.dummyDigest
}
