package authentication

import (
	"time"

	"github.com/mehmetcc/hospital-equipment-service/internal/account"
)

// RefreshToken is the stored fingerprint of an issued refresh token. The raw token is never kept.
type RefreshToken struct {
	ID        uint             `gorm:"column:token_id;primaryKey;autoIncrement"`
	AccountID uint             `gorm:"column:user_id;index;not null"`
	Account   *account.Account `gorm:"foreignKey:AccountID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	TokenHash string           `gorm:"size:64;uniqueIndex;not null"`
	ExpiresAt time.Time        `gorm:"index;not null"`
	Revoked   bool             `gorm:"index;not null"`
	CreatedAt time.Time
}

func (RefreshToken) TableName() string {
	return "refresh_token"
}

// IsValid reports whether the record may still authorize a refresh at now.
func (r *RefreshToken) IsValid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}
