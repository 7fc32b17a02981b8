package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Policy is the single parameter object the evaluator and sizer are pure
// functions over. It is built once at startup from configuration; every
// multiplier is kept as an exact rational so no call site re-derives scaling.
type Policy struct {
	// CollateralRatioThresholdPct is the highest collateral ratio (percent)
	// at which a vault is still open to step-in, e.g. 200.
	CollateralRatioThresholdPct *big.Rat
	// SettlementRatioPct is the collateral ratio (percent) a liquidation aims
	// to restore the vault to, e.g. 300.
	SettlementRatioPct *big.Rat
	// StepInRatio is the engine's step-in bonus multiplier (>1), e.g. 1.6.
	StepInRatio *big.Rat
	// PayoutRatio is the collateral bonus multiplier paid to the liquidator
	// (>1), e.g. 1.125.
	PayoutRatio *big.Rat
	// MinimumPayout is the smallest acceptable payout in collateral base
	// units; plans below it are not profitable.
	MinimumPayout *big.Int

	TokenDecimals      int32
	CollateralDecimals int32
}

// NewPolicy converts exact decimal parameters into a Policy. minimumPayout is
// expressed in whole collateral tokens and shifted to base units here.
func NewPolicy(thresholdPct, settlementPct, stepIn, payout, minimumPayout decimal.Decimal, tokenDecimals, collateralDecimals int32) (Policy, error) {
	if thresholdPct.Sign() <= 0 {
		return Policy{}, fmt.Errorf("collateral ratio threshold must be positive, got %s", thresholdPct)
	}
	if settlementPct.Cmp(thresholdPct) < 0 {
		return Policy{}, fmt.Errorf("settlement ratio %s%% below liquidation threshold %s%%", settlementPct, thresholdPct)
	}
	if stepIn.Cmp(decimal.NewFromInt(1)) < 0 {
		return Policy{}, fmt.Errorf("step-in ratio must be at least 1, got %s", stepIn)
	}
	if payout.Sign() <= 0 {
		return Policy{}, fmt.Errorf("payout ratio must be positive, got %s", payout)
	}
	if minimumPayout.Sign() < 0 {
		return Policy{}, fmt.Errorf("minimum payout cannot be negative, got %s", minimumPayout)
	}
	if tokenDecimals < 0 || collateralDecimals < 0 {
		return Policy{}, fmt.Errorf("token decimals cannot be negative")
	}

	return Policy{
		CollateralRatioThresholdPct: thresholdPct.Rat(),
		SettlementRatioPct:          settlementPct.Rat(),
		StepInRatio:                 stepIn.Rat(),
		PayoutRatio:                 payout.Rat(),
		MinimumPayout:               minimumPayout.Shift(collateralDecimals).Floor().BigInt(),
		TokenDecimals:               tokenDecimals,
		CollateralDecimals:          collateralDecimals,
	}, nil
}
