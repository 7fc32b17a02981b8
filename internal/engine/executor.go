package engine

import (
	"context"
	"math/big"

	"github.com/rs/zerolog"

	"vault-liquidator/internal/domain"
)

// Executor submits sized liquidations. Failures are wrapped per vault so one
// rejected submission never takes down the rest of a batch.
type Executor struct {
	chain  ChainClient
	logger zerolog.Logger
}

// NewExecutor constructs an executor over the chain client.
func NewExecutor(chain ChainClient, logger zerolog.Logger) *Executor {
	return &Executor{
		chain:  chain,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// Execute submits the plan's liquidation against the engine contract and
// returns the mined transaction hash.
func (e *Executor) Execute(ctx context.Context, vault domain.VaultRecord, plan domain.LiquidationPlan) (string, error) {
	txHash, err := e.chain.Liquidate(ctx, vault.Owner, plan.AmountToLiquidate)
	if err != nil {
		return "", &domain.LiquidationError{VaultOwner: vault.Owner, Err: err}
	}

	e.logger.Info().
		Str("vault_owner", vault.Owner).
		Str("amount", plan.AmountToLiquidate.String()).
		Str("expected_payout", plan.ExpectedPayout.String()).
		Str("tx", txHash).
		Msg("vault liquidated")
	return txHash, nil
}

// RefreshBalances re-reads the bot's token and native balances. Called after
// a successful liquidation so sizing for the remaining vaults in the batch
// works from what is actually left.
func (e *Executor) RefreshBalances(ctx context.Context) (token, native *big.Int, err error) {
	token, err = e.chain.TokenBalance(ctx)
	if err != nil {
		return nil, nil, &domain.FetchError{Stage: domain.StageTokenBalance, Err: err}
	}
	native, err = e.chain.NativeBalance(ctx)
	if err != nil {
		return nil, nil, &domain.FetchError{Stage: domain.StageNativeBalance, Err: err}
	}
	return token, native, nil
}
