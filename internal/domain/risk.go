package domain

import "math/big"

// VerdictReason classifies the outcome of a risk evaluation.
type VerdictReason string

const (
	ReasonNotMinted          VerdictReason = "not_minted"
	ReasonAboveThreshold     VerdictReason = "above_threshold"
	ReasonAlreadyLiquidating VerdictReason = "already_liquidating"
	ReasonEligible           VerdictReason = "eligible"
)

// RiskVerdict is the output of evaluating one vault against a snapshot.
// CollateralRatio is an exact rational in percent units (150% == 150/1); it
// is nil when the vault has nothing minted.
type RiskVerdict struct {
	Eligible        bool
	CollateralRatio *big.Rat
	Reason          VerdictReason
}

// LiquidationPlan is the sized liquidation for an eligible vault.
// AmountToLiquidate is in synthetic-token base units, ExpectedPayout in
// collateral base units. A zero-size plan is never profitable.
type LiquidationPlan struct {
	AmountToLiquidate *big.Int
	ExpectedPayout    *big.Int
	Profitable        bool
}
