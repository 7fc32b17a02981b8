package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LiquidationStatus tracks the outcome of a submitted liquidation.
type LiquidationStatus string

const (
	LiquidationStatusConfirmed LiquidationStatus = "confirmed"
	LiquidationStatusFailed    LiquidationStatus = "failed"
)

// ScanRun is the persisted summary of one full vault scan.
type ScanRun struct {
	ID                    uuid.UUID
	HeadTS                time.Time
	VaultsScanned         int
	LiquidationsAttempted int
	LiquidationsSucceeded int
	ErrorCount            int
	OraclePrice           decimal.Decimal
	LowestRatioPct        *decimal.Decimal
	CreatedAt             time.Time
}

// LiquidationRecord captures a single submitted liquidation for auditing.
// Amount is in whole synthetic tokens, ExpectedPayout in whole collateral
// tokens.
type LiquidationRecord struct {
	ID             int64
	RunID          uuid.UUID
	VaultOwner     string
	Amount         decimal.Decimal
	ExpectedPayout decimal.Decimal
	TxHash         string
	Status         LiquidationStatus
	Error          *string
	CreatedAt      time.Time
}
