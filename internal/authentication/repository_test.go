package authentication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestRefreshTokenRepository_Record(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "refresh_token" .* RETURNING "token_id"`).
		WillReturnRows(sqlmock.NewRows([]string{"token_id"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), 3, testHash, time.Now().Add(time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RecordConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "refresh_token"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_refresh_token_token_hash"})
	mock.ExpectRollback()
	err := repo.Record(context.Background(), 3, testHash, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrConflict)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "refresh_token"`).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "fk_refresh_token_account"})
	mock.ExpectRollback()
	err = repo.Record(context.Background(), 99, testHash, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrUnresponsiveDatabase)
	assert.NotErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Find(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	expires := time.Now().Add(time.Hour).UTC()

	mock.ExpectQuery(`SELECT \* FROM "refresh_token" WHERE token_hash = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "user_id", "token_hash", "expires_at", "revoked", "created_at"}).
			AddRow(5, 3, testHash, expires, false, time.Now()))
	record, err := repo.Find(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, uint(3), record.AccountID)
	assert.False(t, record.Revoked)
	assert.True(t, record.IsValid(time.Now()))

	mock.ExpectQuery(`SELECT \* FROM "refresh_token"`).
		WillReturnRows(sqlmock.NewRows([]string{"token_id"}))
	_, err = repo.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)

	mock.ExpectQuery(`SELECT \* FROM "refresh_token"`).
		WillReturnError(errors.New("connection refused"))
	_, err = repo.Find(context.Background(), testHash)
	assert.ErrorIs(t, err, ErrUnresponsiveDatabase)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Consume(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "refresh_token" SET "revoked"=\$1 WHERE token_hash = \$2 AND revoked = \$3 AND expires_at > \$4`).
		WithArgs(true, testHash, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	won, err := repo.Consume(context.Background(), testHash, now)
	require.NoError(t, err)
	assert.True(t, won)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "refresh_token" SET "revoked"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	won, err = repo.Consume(context.Background(), testHash, now)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	for _, affected := range []int64{1, 0} {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "refresh_token" SET "revoked"=\$1 WHERE token_hash = \$2`).
			WillReturnResult(sqlmock.NewResult(0, affected))
		mock.ExpectCommit()
		assert.NoError(t, repo.Revoke(context.Background(), testHash))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeAllAndDeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "refresh_token" SET "revoked"=\$1 WHERE user_id = \$2 AND revoked = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()
	n, err := repo.RevokeAllForAccount(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "refresh_token" WHERE expires_at <= \$1`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	n, err = repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
