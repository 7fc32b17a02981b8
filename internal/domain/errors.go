package domain

import "fmt"

// SnapshotStage identifies which market read failed.
type SnapshotStage string

const (
	StageOraclePrice   SnapshotStage = "oracle_price"
	StageInterestRate  SnapshotStage = "interest_rate"
	StageTokenBalance  SnapshotStage = "token_balance"
	StageNativeBalance SnapshotStage = "native_balance"
)

// FetchError reports a failed market snapshot read. The run loop skips the
// whole iteration rather than acting on partial data and retries the same
// block on the next tick.
type FetchError struct {
	Stage SnapshotStage
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("snapshot fetch failed at %s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IndexerError reports an unavailable vault listing. The batch is skipped and
// the high-water mark is not advanced.
type IndexerError struct {
	Err error
}

func (e *IndexerError) Error() string {
	return fmt.Sprintf("vault indexer: %v", e.Err)
}

func (e *IndexerError) Unwrap() error { return e.Err }

// LiquidationError reports a rejected liquidation submission. It is isolated
// to one vault and never aborts the remainder of the batch.
type LiquidationError struct {
	VaultOwner string
	Err        error
}

func (e *LiquidationError) Error() string {
	return fmt.Sprintf("liquidate vault %s: %v", e.VaultOwner, e.Err)
}

func (e *LiquidationError) Unwrap() error { return e.Err }
