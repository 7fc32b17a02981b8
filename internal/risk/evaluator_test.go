package risk

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"vault-liquidator/internal/domain"
	"vault-liquidator/internal/fixedpoint"
)

func testPolicy(t *testing.T) domain.Policy {
	t.Helper()
	pol, err := domain.NewPolicy(
		decimal.NewFromInt(200),
		decimal.NewFromInt(300),
		decimal.RequireFromString("1.6"),
		decimal.RequireFromString("1.125"),
		decimal.RequireFromString("0.5"),
		6, 6,
	)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	return pol
}

func flatSnapshot(tokenBalance int64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		OraclePrice:          big.NewInt(1_000_000),
		CompoundInterestRate: big.NewInt(1_000_000),
		OwnTokenBalance:      big.NewInt(tokenBalance),
		OwnNativeBalance:     big.NewInt(0),
	}
}

func TestEvaluateNotMinted(t *testing.T) {
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(0),
		CollateralBalance: big.NewInt(1),
		IsBeingLiquidated: true,
	}

	verdict, err := Evaluate(vault, flatSnapshot(10_000_000), testPolicy(t))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Eligible {
		t.Fatal("vault with nothing minted must never be eligible")
	}
	if verdict.Reason != domain.ReasonNotMinted {
		t.Fatalf("reason = %s, want %s", verdict.Reason, domain.ReasonNotMinted)
	}
}

func TestEvaluateUnderThreshold(t *testing.T) {
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(1_500_000),
	}

	verdict, err := Evaluate(vault, flatSnapshot(10_000_000), testPolicy(t))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Eligible || verdict.Reason != domain.ReasonEligible {
		t.Fatalf("verdict = %+v, want eligible", verdict)
	}
	if verdict.CollateralRatio.Cmp(big.NewRat(150, 1)) != 0 {
		t.Fatalf("ratio = %s%%, want 150%%", verdict.CollateralRatio.RatString())
	}
}

func TestEvaluateAboveThreshold(t *testing.T) {
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(3_500_000),
	}

	verdict, err := Evaluate(vault, flatSnapshot(10_000_000), testPolicy(t))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Eligible {
		t.Fatalf("ratio %s%% is above threshold, must not be eligible", verdict.CollateralRatio.RatString())
	}
	if verdict.CollateralRatio.Cmp(big.NewRat(350, 1)) != 0 {
		t.Fatalf("ratio = %s%%, want 350%%", verdict.CollateralRatio.RatString())
	}
	if verdict.Reason != domain.ReasonAboveThreshold {
		t.Fatalf("reason = %s", verdict.Reason)
	}
}

func TestEvaluateAlreadyLiquidatingIgnoresRatio(t *testing.T) {
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(3_500_000),
		IsBeingLiquidated: true,
	}

	verdict, err := Evaluate(vault, flatSnapshot(10_000_000), testPolicy(t))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Eligible || verdict.Reason != domain.ReasonAlreadyLiquidating {
		t.Fatalf("verdict = %+v, want eligible via already-liquidating", verdict)
	}
}

func TestEvaluateInsolventVaultStaysEligible(t *testing.T) {
	// Ratio well below 100%: urgent, not excluded.
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(500_000),
	}

	verdict, err := Evaluate(vault, flatSnapshot(10_000_000), testPolicy(t))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Eligible {
		t.Fatal("insolvent vault must remain eligible")
	}
	if verdict.CollateralRatio.Cmp(big.NewRat(100, 1)) >= 0 {
		t.Fatalf("ratio = %s%%, expected below 100%%", verdict.CollateralRatio.RatString())
	}
}

func TestEvaluateZeroPriceFailsDivisionByZero(t *testing.T) {
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(1_500_000),
	}
	snap := flatSnapshot(10_000_000)
	snap.OraclePrice = big.NewInt(0)

	if _, err := Evaluate(vault, snap, testPolicy(t)); !errors.Is(err, fixedpoint.ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestEvaluateAppliesInterestAccrual(t *testing.T) {
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(1_000_000),
		CollateralBalance: big.NewInt(2_100_000),
	}

	// No accrual: ratio 210%, above the 200% threshold.
	verdict, err := Evaluate(vault, flatSnapshot(10_000_000), testPolicy(t))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Eligible {
		t.Fatal("vault at 210% must not be eligible without accrual")
	}

	// 10% accrued interest pushes the debt up and the ratio under threshold.
	snap := flatSnapshot(10_000_000)
	snap.CompoundInterestRate = big.NewInt(1_100_000)
	verdict, err = Evaluate(vault, snap, testPolicy(t))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Eligible {
		t.Fatalf("accrued debt should make the vault eligible, ratio %s%%", verdict.CollateralRatio.RatString())
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	vault := domain.VaultRecord{
		Owner:             "0xaaa",
		Minted:            big.NewInt(123_456),
		CollateralBalance: big.NewInt(654_321),
	}
	snap := flatSnapshot(10_000_000)
	pol := testPolicy(t)

	first, err := Evaluate(vault, snap, pol)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := Evaluate(vault, snap, pol)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if first.Eligible != second.Eligible || first.Reason != second.Reason ||
		first.CollateralRatio.Cmp(second.CollateralRatio) != 0 {
		t.Fatalf("verdicts differ: %+v vs %+v", first, second)
	}
}
