package model

import "time"

// IdempotencyKey maps a request fingerprint to the one transaction it
// produced. Rows are written once and never updated or deleted.
type IdempotencyKey struct {
	ID            uint64    `gorm:"primaryKey"`
	Fingerprint   string    `gorm:"size:64;not null;uniqueIndex"`
	TransactionID uint64    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (IdempotencyKey) TableName() string { return "idempotency_key" }
