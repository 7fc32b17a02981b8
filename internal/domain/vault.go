package domain

import "math/big"

// VaultRecord is one collateralized debt position as reported by the vault
// registry. Records are fetched fresh every scan and never mutated locally;
// identity is the owner account.
type VaultRecord struct {
	Owner             string
	Minted            *big.Int
	CollateralBalance *big.Int
	IsBeingLiquidated bool
}

// MarketSnapshot bundles the market state a full scan is evaluated against.
// It is built once per detected block and treated as immutable so every vault
// in a batch sees a consistent market view. OraclePrice is already normalized
// to the engine's canonical token scale.
type MarketSnapshot struct {
	OraclePrice          *big.Int
	CompoundInterestRate *big.Int
	OwnTokenBalance      *big.Int
	OwnNativeBalance     *big.Int
}
