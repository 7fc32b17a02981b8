package risk

import (
	"math/big"

	"vault-liquidator/internal/domain"
	"vault-liquidator/internal/fixedpoint"
)

// Size computes the bounded liquidation amount and expected payout for a
// vault that Evaluate found eligible. The amount is clamped to a non-negative
// value and bounded by the bot's own token balance; the plan is profitable
// only when the expected payout clears the policy's minimum.
func Size(vault domain.VaultRecord, snap domain.MarketSnapshot, pol domain.Policy) (domain.LiquidationPlan, error) {
	accrued := accruedMinted(vault, snap, pol)

	// targetMinted is the debt that restores the vault to the settlement
	// ratio: balance * 10^tokenDecimals * 100 / (price * settlementPct).
	num := new(big.Int).Mul(vault.CollateralBalance, fixedpoint.Pow10(pol.TokenDecimals))
	num.Mul(num, hundred)
	target, err := fixedpoint.Ratio(num, snap.OraclePrice)
	if err != nil {
		return domain.LiquidationPlan{}, err
	}
	target.Quo(target, pol.SettlementRatioPct)

	excess := new(big.Rat).Sub(new(big.Rat).SetInt(accrued), target)
	if excess.Sign() < 0 {
		// Eligible via the is-being-liquidated flag but with no computed
		// excess: a zero-size, non-profitable plan, never a negative amount.
		excess.SetInt64(0)
	}

	amount := fixedpoint.Floor(new(big.Rat).Mul(excess, pol.StepInRatio))
	if amount.Cmp(snap.OwnTokenBalance) > 0 {
		amount = new(big.Int).Set(snap.OwnTokenBalance)
	}

	// Expected payout in collateral base units, including the collateral
	// bonus paid to the liquidator.
	payoutRat := fixedpoint.MulRat(new(big.Int).Mul(amount, snap.OraclePrice), pol.PayoutRatio)
	payoutRat.Quo(payoutRat, new(big.Rat).SetInt(fixedpoint.Pow10(pol.TokenDecimals)))
	payout := fixedpoint.Floor(payoutRat)

	return domain.LiquidationPlan{
		AmountToLiquidate: amount,
		ExpectedPayout:    payout,
		Profitable:        amount.Sign() > 0 && payout.Cmp(pol.MinimumPayout) >= 0,
	}, nil
}
