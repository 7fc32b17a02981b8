package app

import (
	"fmt"
	"math/big"
	"os"
	"text/tabwriter"

	"vault-liquidator/internal/domain"
	"vault-liquidator/internal/fixedpoint"
	"vault-liquidator/internal/risk"
)

// SimulateVault runs the configured policy against a hypothetical vault and
// market without touching the chain or the database. It prints the verdict
// and, when the vault is eligible, the sized liquidation plan.
func (a *App) SimulateVault(opts SimulateOptions) error {
	policy, err := a.Config.BuildPolicy()
	if err != nil {
		return err
	}

	vault := domain.VaultRecord{
		Owner:             "simulated",
		IsBeingLiquidated: opts.IsBeingLiquidated,
	}
	if vault.Minted, err = parseBaseUnits("minted", opts.Minted); err != nil {
		return err
	}
	if vault.CollateralBalance, err = parseBaseUnits("collateral", opts.CollateralBalance); err != nil {
		return err
	}

	snap := domain.MarketSnapshot{}
	if snap.OraclePrice, err = parseBaseUnits("price", opts.OraclePrice); err != nil {
		return err
	}
	if snap.CompoundInterestRate, err = parseBaseUnits("rate", opts.InterestRate); err != nil {
		return err
	}
	if snap.OwnTokenBalance, err = parseBaseUnits("own-balance", opts.OwnTokenBalance); err != nil {
		return err
	}
	snap.OwnNativeBalance = big.NewInt(0)

	verdict, err := risk.Evaluate(vault, snap, policy)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "eligible\t%v\n", verdict.Eligible)
	fmt.Fprintf(w, "reason\t%s\n", verdict.Reason)
	if verdict.CollateralRatio != nil {
		fmt.Fprintf(w, "collateral ratio\t%s%%\n", fixedpoint.RatToDecimal(verdict.CollateralRatio, 4))
	}

	if verdict.Eligible {
		plan, err := risk.Size(vault, snap, policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "amount to liquidate\t%s\n", plan.AmountToLiquidate)
		fmt.Fprintf(w, "expected payout\t%s\n", plan.ExpectedPayout)
		fmt.Fprintf(w, "profitable\t%v\n", plan.Profitable)
	}
	return w.Flush()
}

func parseBaseUnits(name, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s: value is required", name)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s: value must not be negative", name)
	}
	return v, nil
}
