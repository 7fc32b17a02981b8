package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vault-liquidator/internal/domain"
)

type fakeHead struct {
	head time.Time
	err  error
}

func (f *fakeHead) HeadTime(ctx context.Context) (time.Time, error) {
	return f.head, f.err
}

type fakeFetcher struct {
	snap  domain.MarketSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (domain.MarketSnapshot, error) {
	f.calls++
	if f.err != nil {
		return domain.MarketSnapshot{}, f.err
	}
	return f.snap, nil
}

type fakeLister struct {
	vaults []domain.VaultRecord
	err    error
}

func (f *fakeLister) ListVaults(ctx context.Context, engineAddress string) ([]domain.VaultRecord, error) {
	return f.vaults, f.err
}

type fakeExecutor struct {
	failFor  map[string]error
	executed []string
	token    *big.Int
	native   *big.Int
}

func (f *fakeExecutor) Execute(ctx context.Context, vault domain.VaultRecord, plan domain.LiquidationPlan) (string, error) {
	if err, ok := f.failFor[vault.Owner]; ok {
		return "", err
	}
	f.executed = append(f.executed, vault.Owner)
	return "0xdeadbeef", nil
}

func (f *fakeExecutor) RefreshBalances(ctx context.Context) (*big.Int, *big.Int, error) {
	return f.token, f.native, nil
}

func flatSnapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		OraclePrice:          big.NewInt(1_000_000),
		CompoundInterestRate: big.NewInt(1_000_000),
		OwnTokenBalance:      big.NewInt(10_000_000),
		OwnNativeBalance:     big.NewInt(5_000_000),
	}
}

// eligibleVault sits at a 150% collateral ratio under flatSnapshot.
func eligibleVault(owner string) domain.VaultRecord {
	return domain.VaultRecord{
		Owner:             owner,
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(1_500_000),
	}
}

func healthyVault(owner string) domain.VaultRecord {
	return domain.VaultRecord{
		Owner:             owner,
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(3_500_000),
	}
}

func newTestService(head *fakeHead, fetcher *fakeFetcher, lister *fakeLister, executor *fakeExecutor) *Service {
	pol, _ := domain.NewPolicy(
		decimal.NewFromInt(200),
		decimal.NewFromInt(300),
		decimal.RequireFromString("1.6"),
		decimal.RequireFromString("1.125"),
		decimal.RequireFromString("0.5"),
		6, 6,
	)
	return New(pol, "0x00000000000000000000000000000000000000aa", nil, head, fetcher, lister, executor, nil, nil, 0, zerolog.Nop())
}

func TestScanSkipsUnchangedHead(t *testing.T) {
	head := &fakeHead{head: time.Unix(1_700_000_000, 0).UTC()}
	fetcher := &fakeFetcher{snap: flatSnapshot()}
	lister := &fakeLister{vaults: []domain.VaultRecord{eligibleVault("0xaaa")}}
	executor := &fakeExecutor{token: big.NewInt(10_000_000), native: big.NewInt(5_000_000)}

	svc := newTestService(head, fetcher, lister, executor)

	outcome, err := svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if outcome == nil {
		t.Fatal("expected an outcome for the first scan")
	}
	if got := len(executor.executed); got != 1 {
		t.Fatalf("expected 1 execution, got %d", got)
	}

	outcome, err = svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if outcome != nil {
		t.Fatal("expected nil outcome when the head has not moved")
	}
	if got := len(executor.executed); got != 1 {
		t.Fatalf("same head must not trigger another execution, got %d", got)
	}

	head.head = head.head.Add(30 * time.Second)
	outcome, err = svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("third scan: %v", err)
	}
	if outcome == nil {
		t.Fatal("expected an outcome after the head advanced")
	}
}

func TestScanRetriesSameHeadAfterSnapshotFailure(t *testing.T) {
	head := &fakeHead{head: time.Unix(1_700_000_000, 0).UTC()}
	fetcher := &fakeFetcher{err: &domain.FetchError{Stage: domain.StageOraclePrice, Err: errors.New("rpc down")}}
	lister := &fakeLister{vaults: []domain.VaultRecord{eligibleVault("0xaaa")}}
	executor := &fakeExecutor{token: big.NewInt(10_000_000), native: big.NewInt(5_000_000)}

	svc := newTestService(head, fetcher, lister, executor)

	if _, err := svc.Scan(context.Background()); err == nil {
		t.Fatal("expected snapshot failure to surface")
	}

	// Same head, fetch recovered: the block must be retried, not skipped.
	fetcher.err = nil
	fetcher.snap = flatSnapshot()
	outcome, err := svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("retry scan: %v", err)
	}
	if outcome == nil {
		t.Fatal("expected the failed block to be rescanned")
	}
	if got := len(executor.executed); got != 1 {
		t.Fatalf("expected 1 execution after retry, got %d", got)
	}
}

func TestScanWrapsIndexerErrors(t *testing.T) {
	head := &fakeHead{head: time.Unix(1_700_000_000, 0).UTC()}
	fetcher := &fakeFetcher{snap: flatSnapshot()}
	lister := &fakeLister{err: errors.New("bad gateway")}
	executor := &fakeExecutor{token: big.NewInt(10_000_000), native: big.NewInt(5_000_000)}

	svc := newTestService(head, fetcher, lister, executor)

	_, err := svc.Scan(context.Background())
	var idxErr *domain.IndexerError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected IndexerError, got %v", err)
	}

	// The head must still count as unscanned.
	lister.err = nil
	lister.vaults = []domain.VaultRecord{eligibleVault("0xaaa")}
	outcome, err := svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("retry scan: %v", err)
	}
	if outcome == nil {
		t.Fatal("expected the failed block to be rescanned")
	}
}

func TestScanIsolatesVaultFailures(t *testing.T) {
	head := &fakeHead{head: time.Unix(1_700_000_000, 0).UTC()}
	fetcher := &fakeFetcher{snap: flatSnapshot()}
	lister := &fakeLister{vaults: []domain.VaultRecord{
		eligibleVault("0xaaa"),
		eligibleVault("0xbbb"),
	}}
	executor := &fakeExecutor{
		failFor: map[string]error{"0xaaa": errors.New("gas estimation failed")},
		token:   big.NewInt(10_000_000),
		native:  big.NewInt(5_000_000),
	}

	svc := newTestService(head, fetcher, lister, executor)

	outcome, err := svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if outcome.LiquidationsAttempted != 2 {
		t.Fatalf("expected 2 attempts, got %d", outcome.LiquidationsAttempted)
	}
	if outcome.LiquidationsSucceeded != 1 {
		t.Fatalf("expected 1 success, got %d", outcome.LiquidationsSucceeded)
	}
	if len(outcome.Errors) != 1 || outcome.Errors[0].VaultOwner != "0xaaa" {
		t.Fatalf("expected a single error for 0xaaa, got %+v", outcome.Errors)
	}
	if len(executor.executed) != 1 || executor.executed[0] != "0xbbb" {
		t.Fatalf("expected 0xbbb to be executed after 0xaaa failed, got %v", executor.executed)
	}
}

func TestScanOutcomeCounts(t *testing.T) {
	head := &fakeHead{head: time.Unix(1_700_000_000, 0).UTC()}
	fetcher := &fakeFetcher{snap: flatSnapshot()}
	lister := &fakeLister{vaults: []domain.VaultRecord{
		{Owner: "0xidle", Minted: big.NewInt(0), CollateralBalance: big.NewInt(2_000_000)},
		healthyVault("0xsafe"),
		eligibleVault("0xrisk"),
	}}
	executor := &fakeExecutor{token: big.NewInt(10_000_000), native: big.NewInt(5_000_000)}

	svc := newTestService(head, fetcher, lister, executor)

	outcome, err := svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if outcome.VaultsScanned != 3 {
		t.Fatalf("expected 3 vaults scanned, got %d", outcome.VaultsScanned)
	}
	if outcome.LiquidationsAttempted != 1 {
		t.Fatalf("expected 1 attempt, got %d", outcome.LiquidationsAttempted)
	}
	if outcome.LiquidationsSucceeded != 1 {
		t.Fatalf("expected 1 success, got %d", outcome.LiquidationsSucceeded)
	}
	if len(outcome.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", outcome.Errors)
	}
	if outcome.LowestRatio == nil {
		t.Fatal("expected the lowest ratio to be tracked")
	}
	if want := big.NewRat(150, 1); outcome.LowestRatio.Cmp(want) != 0 {
		t.Fatalf("lowest ratio = %s, want %s", outcome.LowestRatio.RatString(), want.RatString())
	}
}

func TestScanIsDeterministicAcrossInstances(t *testing.T) {
	head := time.Unix(1_700_000_000, 0).UTC()
	vaults := []domain.VaultRecord{
		{Owner: "0xidle", Minted: big.NewInt(0), CollateralBalance: big.NewInt(2_000_000)},
		healthyVault("0xsafe"),
		eligibleVault("0xrisk"),
	}

	scan := func() *domain.RunOutcome {
		svc := newTestService(
			&fakeHead{head: head},
			&fakeFetcher{snap: flatSnapshot()},
			&fakeLister{vaults: vaults},
			&fakeExecutor{token: big.NewInt(10_000_000), native: big.NewInt(5_000_000)},
		)
		outcome, err := svc.Scan(context.Background())
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		return outcome
	}

	first, second := scan(), scan()
	if first.ID == second.ID {
		t.Fatal("each scan must carry its own id")
	}
	if first.VaultsScanned != second.VaultsScanned ||
		first.LiquidationsAttempted != second.LiquidationsAttempted ||
		first.LiquidationsSucceeded != second.LiquidationsSucceeded ||
		len(first.Errors) != len(second.Errors) {
		t.Fatalf("identical inputs produced different outcomes: %+v vs %+v", first, second)
	}
	if first.LowestRatio.Cmp(second.LowestRatio) != 0 {
		t.Fatalf("lowest ratio differs: %s vs %s", first.LowestRatio.RatString(), second.LowestRatio.RatString())
	}
}

func TestScanStopsBetweenVaultsOnCancel(t *testing.T) {
	head := &fakeHead{head: time.Unix(1_700_000_000, 0).UTC()}
	fetcher := &fakeFetcher{snap: flatSnapshot()}
	lister := &fakeLister{vaults: []domain.VaultRecord{eligibleVault("0xaaa")}}
	executor := &fakeExecutor{token: big.NewInt(10_000_000), native: big.NewInt(5_000_000)}

	svc := newTestService(head, fetcher, lister, executor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(executor.executed) != 0 {
		t.Fatalf("cancelled scan must not execute, got %v", executor.executed)
	}
}
