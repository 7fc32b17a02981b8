package cli

import (
	"github.com/spf13/cobra"

	"vault-liquidator/internal/app"
)

var (
	simulateMinted       string
	simulateCollateral   string
	simulatePrice        string
	simulateRate         string
	simulateOwnBalance   string
	simulateBeingLiqFlag bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-vault",
	Short: "Evaluate a hypothetical vault against the configured policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Minted:            simulateMinted,
			CollateralBalance: simulateCollateral,
			OraclePrice:       simulatePrice,
			InterestRate:      simulateRate,
			OwnTokenBalance:   simulateOwnBalance,
			IsBeingLiquidated: simulateBeingLiqFlag,
		}
		return getApp().SimulateVault(opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMinted, "minted", "", "Minted synthetic amount in base units")
	simulateCmd.Flags().StringVar(&simulateCollateral, "collateral", "", "Vault collateral balance in base units")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Oracle price in base units")
	simulateCmd.Flags().StringVar(&simulateRate, "rate", "", "Compound interest rate in base units")
	simulateCmd.Flags().StringVar(&simulateOwnBalance, "own-balance", "", "Liquidator synthetic token balance in base units")
	simulateCmd.Flags().BoolVar(&simulateBeingLiqFlag, "being-liquidated", false, "Treat the vault as already being liquidated")
}
