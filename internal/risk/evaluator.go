// Package risk holds the vault risk evaluation and liquidation sizing logic.
// Both operations are pure functions over (vault, snapshot, policy) and
// perform no I/O, which keeps them deterministic and directly testable.
package risk

import (
	"math/big"

	"vault-liquidator/internal/domain"
	"vault-liquidator/internal/fixedpoint"
)

var hundred = big.NewInt(100)

// accruedMinted applies the engine's compound interest factor to the vault's
// minted amount: minted * rate / 10^tokenDecimals, truncating. Interest must
// accrue before any ratio is computed or the debt is understated.
func accruedMinted(vault domain.VaultRecord, snap domain.MarketSnapshot, pol domain.Policy) *big.Int {
	accrued := new(big.Int).Mul(vault.Minted, snap.CompoundInterestRate)
	return accrued.Quo(accrued, fixedpoint.Pow10(pol.TokenDecimals))
}

// collateralRatioPct computes the vault's collateral ratio in percent as an
// exact rational: balance * 10^tokenDecimals * 100 / (accrued * price).
func collateralRatioPct(balance, accrued, price *big.Int, pol domain.Policy) (*big.Rat, error) {
	num := new(big.Int).Mul(balance, fixedpoint.Pow10(pol.TokenDecimals))
	num.Mul(num, hundred)
	den := new(big.Int).Mul(accrued, price)
	return fixedpoint.Ratio(num, den)
}

// Evaluate decides whether a vault is open to step-in under the given market
// snapshot and policy. A vault already flagged as being liquidated is always
// eligible; otherwise eligibility requires the collateral ratio to be at or
// below the policy threshold. Ratios at or below 100% remain eligible, they
// are the most urgent case.
func Evaluate(vault domain.VaultRecord, snap domain.MarketSnapshot, pol domain.Policy) (domain.RiskVerdict, error) {
	if vault.Minted == nil || vault.Minted.Sign() == 0 {
		return domain.RiskVerdict{Reason: domain.ReasonNotMinted}, nil
	}

	accrued := accruedMinted(vault, snap, pol)
	ratio, err := collateralRatioPct(vault.CollateralBalance, accrued, snap.OraclePrice, pol)
	if err != nil {
		return domain.RiskVerdict{}, err
	}

	verdict := domain.RiskVerdict{CollateralRatio: ratio}
	switch {
	case vault.IsBeingLiquidated:
		verdict.Eligible = true
		verdict.Reason = domain.ReasonAlreadyLiquidating
	case ratio.Cmp(pol.CollateralRatioThresholdPct) <= 0:
		verdict.Eligible = true
		verdict.Reason = domain.ReasonEligible
	default:
		verdict.Reason = domain.ReasonAboveThreshold
	}
	return verdict, nil
}
