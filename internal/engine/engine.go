// Package engine holds the I/O-facing collaborators of the run loop: the
// per-block market snapshot fetch and the liquidation executor.
package engine

import (
	"context"
	"math/big"
	"time"
)

// ChainClient is the subset of the chain RPC surface the bot consumes.
type ChainClient interface {
	HeadTime(ctx context.Context) (time.Time, error)
	OraclePrice(ctx context.Context) (*big.Int, error)
	CompoundInterestRate(ctx context.Context) (*big.Int, error)
	TokenBalance(ctx context.Context) (*big.Int, error)
	NativeBalance(ctx context.Context) (*big.Int, error)
	Liquidate(ctx context.Context, vaultOwner string, amount *big.Int) (string, error)
}
