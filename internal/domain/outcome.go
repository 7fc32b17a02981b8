package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// VaultError records a failure isolated to a single vault within a scan.
type VaultError struct {
	VaultOwner string
	Err        error
}

// RunOutcome aggregates one full scan of the vault registry.
type RunOutcome struct {
	ID                    uuid.UUID
	HeadTime              time.Time
	VaultsScanned         int
	LiquidationsAttempted int
	LiquidationsSucceeded int
	Errors                []VaultError

	// OraclePrice and LowestRatio capture the market context of the scan for
	// history and export; LowestRatio is nil when no minted vault was seen.
	OraclePrice *big.Int
	LowestRatio *big.Rat
}

// NewRunOutcome starts an outcome for the given head block time.
func NewRunOutcome(head time.Time) *RunOutcome {
	return &RunOutcome{ID: uuid.New(), HeadTime: head}
}

// RecordError appends a per-vault failure without aborting the scan.
func (o *RunOutcome) RecordError(owner string, err error) {
	o.Errors = append(o.Errors, VaultError{VaultOwner: owner, Err: err})
}

// ObserveRatio tracks the lowest collateral ratio seen during the scan.
func (o *RunOutcome) ObserveRatio(r *big.Rat) {
	if r == nil {
		return
	}
	if o.LowestRatio == nil || r.Cmp(o.LowestRatio) < 0 {
		o.LowestRatio = new(big.Rat).Set(r)
	}
}
