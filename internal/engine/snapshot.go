package engine

import (
	"context"

	"github.com/rs/zerolog"

	"vault-liquidator/internal/domain"
	"vault-liquidator/internal/fixedpoint"
)

// SnapshotOptions carry the decimal scales needed to normalize the oracle
// price onto the engine's canonical token scale.
type SnapshotOptions struct {
	OracleDecimals    int32
	CanonicalDecimals int32
}

// SnapshotFetcher builds the immutable market view one scan runs against.
type SnapshotFetcher struct {
	chain  ChainClient
	opts   SnapshotOptions
	logger zerolog.Logger
}

// NewSnapshotFetcher constructs a snapshot fetcher.
func NewSnapshotFetcher(chain ChainClient, opts SnapshotOptions, logger zerolog.Logger) *SnapshotFetcher {
	return &SnapshotFetcher{
		chain:  chain,
		opts:   opts,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}
}

// Fetch reads oracle price, interest rate, and own balances in that order,
// failing fast on the first unavailable read so the caller never acts on a
// partial market view. Intended to run at most once per detected block.
func (f *SnapshotFetcher) Fetch(ctx context.Context) (domain.MarketSnapshot, error) {
	price, err := f.chain.OraclePrice(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, &domain.FetchError{Stage: domain.StageOraclePrice, Err: err}
	}
	price = fixedpoint.Scale(price, f.opts.OracleDecimals, f.opts.CanonicalDecimals)

	rate, err := f.chain.CompoundInterestRate(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, &domain.FetchError{Stage: domain.StageInterestRate, Err: err}
	}

	tokenBalance, err := f.chain.TokenBalance(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, &domain.FetchError{Stage: domain.StageTokenBalance, Err: err}
	}

	nativeBalance, err := f.chain.NativeBalance(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, &domain.FetchError{Stage: domain.StageNativeBalance, Err: err}
	}

	return domain.MarketSnapshot{
		OraclePrice:          price,
		CompoundInterestRate: rate,
		OwnTokenBalance:      tokenBalance,
		OwnNativeBalance:     nativeBalance,
	}, nil
}
