package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vault-liquidator/internal/alerting"
	"vault-liquidator/internal/domain"
	"vault-liquidator/internal/fixedpoint"
	"vault-liquidator/internal/risk"
	"vault-liquidator/internal/scheduler"
	"vault-liquidator/internal/storage"
)

var ratPct100 = big.NewRat(100, 1)

// HeadReader exposes the chain head timestamp used for new-block detection.
type HeadReader interface {
	HeadTime(ctx context.Context) (time.Time, error)
}

// SnapshotFetcher builds the per-block market view.
type SnapshotFetcher interface {
	Fetch(ctx context.Context) (domain.MarketSnapshot, error)
}

// VaultLister enumerates the engine's vault registry.
type VaultLister interface {
	ListVaults(ctx context.Context, engineAddress string) ([]domain.VaultRecord, error)
}

// LiquidationExecutor submits sized liquidations and refreshes own balances.
type LiquidationExecutor interface {
	Execute(ctx context.Context, vault domain.VaultRecord, plan domain.LiquidationPlan) (string, error)
	RefreshBalances(ctx context.Context) (token, native *big.Int, err error)
}

// Service owns the run loop: block detection, snapshot fetch, vault
// iteration, and outcome aggregation. It is strictly sequential; each
// liquidation changes the token balance the next vault is sized against.
type Service struct {
	scheduler *scheduler.Scheduler
	chain     HeadReader
	fetcher   SnapshotFetcher
	indexer   VaultLister
	executor  LiquidationExecutor
	store     storage.RunStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	policy        domain.Policy
	engineAddress string
	locker        storage.AdvisoryLocker
	lockKey       int64

	// prevHead is the high-water mark: the head block time of the last fully
	// scanned batch. Only the run loop goroutine touches it.
	prevHead time.Time
}

// New constructs the liquidation service.
func New(policy domain.Policy, engineAddress string, sched *scheduler.Scheduler, chain HeadReader, fetcher SnapshotFetcher, indexer VaultLister, executor LiquidationExecutor, store storage.RunStore, notifier alerting.Notifier, lockKey int64, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:     sched,
		chain:         chain,
		fetcher:       fetcher,
		indexer:       indexer,
		executor:      executor,
		store:         store,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Str("engine", engineAddress).Logger(),
		policy:        policy,
		engineAddress: engineAddress,
		locker:        locker,
		lockKey:       lockKey,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Tick)
}

// Tick performs at most one full scan. It is a no-op when the head block has
// not moved since the last completed scan.
func (s *Service) Tick(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.Scan(ctx)
	return err
}

// Scan runs one full batch against the current head. It returns (nil, nil)
// when no new block was detected. The high-water mark only advances after a
// complete batch; any earlier failure leaves it untouched so the same block
// is retried on the next tick.
func (s *Service) Scan(ctx context.Context) (*domain.RunOutcome, error) {
	head, err := s.chain.HeadTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head block time: %w", err)
	}
	if head.Equal(s.prevHead) {
		s.logger.Debug().Time("head", head).Msg("no new head, skipping scan")
		return nil, nil
	}

	snap, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	vaults, err := s.indexer.ListVaults(ctx, s.engineAddress)
	if err != nil {
		return nil, &domain.IndexerError{Err: err}
	}

	outcome := domain.NewRunOutcome(head)
	outcome.OraclePrice = snap.OraclePrice

	for _, vault := range vaults {
		// Honor cancellation between vaults, never mid-submission.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.processVault(ctx, vault, &snap, outcome)
	}

	s.prevHead = head

	if outcome.LiquidationsAttempted == 0 {
		s.logger.Debug().Msg("nothing to do")
	}
	s.logger.Info().
		Str("run_id", outcome.ID.String()).
		Time("head", head).
		Int("vaults_scanned", outcome.VaultsScanned).
		Int("attempted", outcome.LiquidationsAttempted).
		Int("succeeded", outcome.LiquidationsSucceeded).
		Int("errors", len(outcome.Errors)).
		Msg("scan complete")

	s.persistRun(ctx, outcome)
	return outcome, nil
}

// processVault feeds one vault through evaluate, size, and execute. Every
// failure is recorded against the vault and the batch continues.
func (s *Service) processVault(ctx context.Context, vault domain.VaultRecord, snap *domain.MarketSnapshot, outcome *domain.RunOutcome) {
	outcome.VaultsScanned++

	verdict, err := risk.Evaluate(vault, *snap, s.policy)
	if err != nil {
		outcome.RecordError(vault.Owner, err)
		s.logger.Error().Err(err).Str("vault_owner", vault.Owner).Msg("risk evaluation failed")
		return
	}
	outcome.ObserveRatio(verdict.CollateralRatio)

	if !verdict.Eligible {
		return
	}

	ratio := fixedpoint.RatToDecimal(verdict.CollateralRatio, 2)
	if verdict.CollateralRatio.Cmp(ratPct100) <= 0 {
		s.logger.Warn().
			Str("vault_owner", vault.Owner).
			Str("collateral_ratio_pct", ratio.String()).
			Msg("vault at or below 100%, most urgent step-in")
	} else {
		s.logger.Debug().
			Str("vault_owner", vault.Owner).
			Str("collateral_ratio_pct", ratio.String()).
			Str("reason", string(verdict.Reason)).
			Msg("vault open to step-in")
	}

	plan, err := risk.Size(vault, *snap, s.policy)
	if err != nil {
		outcome.RecordError(vault.Owner, err)
		s.logger.Error().Err(err).Str("vault_owner", vault.Owner).Msg("liquidation sizing failed")
		return
	}
	if !plan.Profitable {
		s.logger.Debug().
			Str("vault_owner", vault.Owner).
			Str("expected_payout", plan.ExpectedPayout.String()).
			Msg("ignoring liquidation, payout too low")
		return
	}

	outcome.LiquidationsAttempted++
	s.logger.Info().
		Str("vault_owner", vault.Owner).
		Str("amount", plan.AmountToLiquidate.String()).
		Str("expected_payout", plan.ExpectedPayout.String()).
		Msg("liquidating vault")

	txHash, err := s.executor.Execute(ctx, vault, plan)
	if err != nil {
		outcome.RecordError(vault.Owner, err)
		s.logger.Error().Err(err).Str("vault_owner", vault.Owner).Msg("liquidation failed")
		s.persistLiquidation(ctx, outcome, vault, plan, "", err)
		s.notify(ctx, vault, plan, "", err)
		return
	}

	outcome.LiquidationsSucceeded++
	s.refreshBalances(ctx, snap)
	s.persistLiquidation(ctx, outcome, vault, plan, txHash, nil)
	s.notify(ctx, vault, plan, txHash, nil)
}

// refreshBalances replaces the working snapshot's balance fields so sizing
// for the remaining vaults sees what the bot actually still holds. The
// market fields (price, rate) stay fixed for the whole batch.
func (s *Service) refreshBalances(ctx context.Context, snap *domain.MarketSnapshot) {
	tokenBefore, nativeBefore := snap.OwnTokenBalance, snap.OwnNativeBalance

	token, native, err := s.executor.RefreshBalances(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("balance refresh failed, keeping cached balances")
		return
	}
	snap.OwnTokenBalance = token
	snap.OwnNativeBalance = native

	s.logger.Info().
		Str("token_balance_before", tokenBefore.String()).
		Str("token_balance_after", token.String()).
		Str("native_balance_before", nativeBefore.String()).
		Str("native_balance_after", native.String()).
		Msg("balances after liquidation")
}

func (s *Service) persistRun(ctx context.Context, outcome *domain.RunOutcome) {
	if s.store == nil {
		return
	}

	run := storage.ScanRun{
		ID:                    outcome.ID,
		HeadTS:                outcome.HeadTime,
		VaultsScanned:         outcome.VaultsScanned,
		LiquidationsAttempted: outcome.LiquidationsAttempted,
		LiquidationsSucceeded: outcome.LiquidationsSucceeded,
		ErrorCount:            len(outcome.Errors),
		OraclePrice:           decimal.NewFromBigInt(outcome.OraclePrice, -s.policy.TokenDecimals),
	}
	if outcome.LowestRatio != nil {
		lowest := fixedpoint.RatToDecimal(outcome.LowestRatio, 4)
		run.LowestRatioPct = &lowest
	}

	if err := s.store.InsertScanRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", outcome.ID.String()).Msg("failed to persist scan run")
	}
}

func (s *Service) persistLiquidation(ctx context.Context, outcome *domain.RunOutcome, vault domain.VaultRecord, plan domain.LiquidationPlan, txHash string, execErr error) {
	if s.store == nil {
		return
	}

	record := storage.LiquidationRecord{
		RunID:          outcome.ID,
		VaultOwner:     vault.Owner,
		Amount:         decimal.NewFromBigInt(plan.AmountToLiquidate, -s.policy.TokenDecimals),
		ExpectedPayout: decimal.NewFromBigInt(plan.ExpectedPayout, -s.policy.CollateralDecimals),
		TxHash:         txHash,
		Status:         storage.LiquidationStatusConfirmed,
	}
	if execErr != nil {
		msg := execErr.Error()
		record.Status = storage.LiquidationStatusFailed
		record.Error = &msg
	}

	if err := s.store.InsertLiquidation(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("vault_owner", vault.Owner).Msg("failed to persist liquidation record")
	}
}

func (s *Service) notify(ctx context.Context, vault domain.VaultRecord, plan domain.LiquidationPlan, txHash string, execErr error) {
	if s.notifier == nil {
		return
	}

	note := alerting.Notification{
		EngineAddress:  s.engineAddress,
		VaultOwner:     vault.Owner,
		Amount:         decimal.NewFromBigInt(plan.AmountToLiquidate, -s.policy.TokenDecimals),
		ExpectedPayout: decimal.NewFromBigInt(plan.ExpectedPayout, -s.policy.CollateralDecimals),
		TxHash:         txHash,
	}
	if execErr != nil {
		note.FailureCause = execErr.Error()
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("vault_owner", vault.Owner).Msg("failed to dispatch notification")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
