package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContractStateRow is the configuration singleton, including the monotonic
// seed counter and the persisted schema version.
type ContractStateRow struct {
	ID                   uint   `gorm:"primaryKey"`
	SchemaVersion        int    `gorm:"not null"`
	Owner                string `gorm:"not null"`
	PaymentToken         string `gorm:"not null"`
	MinterContract       string `gorm:"not null"`
	MinDeposit           string `gorm:"not null"`
	MaxSessionDurationMS int64  `gorm:"column:max_session_duration_ms"`
	SeedID               uint64 `gorm:"not null"`
	UpdatedAt            time.Time
}

func (ContractStateRow) TableName() string { return "contract_states" }

// FreeCredit mirrors the free_credits table (one row per account).
type FreeCredit struct {
	Account   string `gorm:"primaryKey"`
	Day       uint64 `gorm:"not null"`
	Amount    uint16 `gorm:"not null"`
	UpdatedAt time.Time
}

func (FreeCredit) TableName() string { return "free_credits" }

// PaidCredit mirrors the paid_credits table (one row per account).
type PaidCredit struct {
	Account   string `gorm:"primaryKey"`
	Amount    uint16 `gorm:"not null"`
	UpdatedAt time.Time
}

func (PaidCredit) TableName() string { return "paid_credits" }

// GameCost mirrors the game_costs table. The price is a decimal base-unit
// string because 24-decimal amounts overflow integer columns.
type GameCost struct {
	BundleSize   uint16 `gorm:"primaryKey"`
	PerGamePrice string `gorm:"not null"`
	UpdatedAt    time.Time
}

func (GameCost) TableName() string { return "game_costs" }

// GameSession mirrors the game_sessions table (at most one per account).
type GameSession struct {
	Account     string `gorm:"primaryKey"`
	SessionID   string `gorm:"type:uuid;not null"`
	SeedID      uint64 `gorm:"not null"`
	StartTimeMS int64  `gorm:"column:start_time_ms;not null"`
	CreatedAt   time.Time
}

func (GameSession) TableName() string { return "game_sessions" }

func (session *GameSession) BeforeCreate(tx *gorm.DB) error {
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	return nil
}

// DepositReceipt mirrors the deposit_receipts table.
type DepositReceipt struct {
	ReceiptID   string         `gorm:"type:uuid;primaryKey"`
	Payer       string         `gorm:"not null;index:idx_receipts_payer_created,priority:1"`
	Amount      string         `gorm:"not null"`
	GamesBought uint16         `gorm:"not null"`
	Remainder   string         `gorm:"not null"`
	Memo        datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_receipts_payer_created,priority:2"`
}

func (DepositReceipt) TableName() string { return "deposit_receipts" }

func (receipt *DepositReceipt) BeforeCreate(tx *gorm.DB) error {
	if receipt.ReceiptID == "" {
		receipt.ReceiptID = uuid.NewString()
	}
	return nil
}
