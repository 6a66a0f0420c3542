package model

import "time"

// ConsumedNonce records a spent proof nonce. The unique (nonce, user_address)
// index is the sole replay guard: concurrent consumers racing on the same
// nonce are resolved by the constraint, not by in-process locking.
type ConsumedNonce struct {
	Model
	Nonce       string    `gorm:"type:varchar(128);not null;uniqueIndex:nonce_user" json:"nonce" immutable:"true"`
	UserAddress string    `gorm:"type:varchar(64);not null;uniqueIndex:nonce_user" json:"userAddress" immutable:"true"`
	ServiceID   string    `gorm:"type:varchar(64);not null" json:"serviceId" immutable:"true"`
	Amount      string    `gorm:"type:varchar(78);not null" json:"amount" immutable:"true"`
	Network     string    `gorm:"type:varchar(64);not null" json:"network" immutable:"true"`
	UsedAt      time.Time `gorm:"not null" json:"usedAt" immutable:"true"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expiresAt" immutable:"true"`
}
