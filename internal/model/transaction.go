package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction status values. A transaction is created pending and moves
// to exactly one terminal status, never back.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Transaction struct {
	ID                      uint64          `gorm:"primaryKey"`
	ExternalID              string          `gorm:"size:36;not null;uniqueIndex"`
	AccountExternalIDDebit  string          `gorm:"size:36;not null"`
	AccountExternalIDCredit string          `gorm:"size:36;not null"`
	TransferTypeID          int             `gorm:"not null"`
	Amount                  decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Status                  string          `gorm:"size:16;not null;default:'pending'"`
	CreatedAt               time.Time       `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "transaction" }

// IsTerminal reports whether the transaction already carries a decision.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusApproved || t.Status == StatusRejected
}
