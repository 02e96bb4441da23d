package stats

import (
	"math/big"
	"testing"

	"microloan/go-client/internal/ledger"
	"microloan/go-client/internal/money"
)

func TestAggregate(t *testing.T) {
	balance, err := money.ParseAmount("2.5")
	if err != nil {
		t.Fatalf("parse balance: %v", err)
	}
	loans := []ledger.Loan{
		{ID: 0, Amount: money.WholeEther(1), Status: ledger.StatusApproved},
		{ID: 1, Amount: money.WholeEther(3), Status: ledger.StatusRepaid},
	}

	got := Aggregate(balance, loans, 700)
	if got.ActiveLoans != 1 || got.TotalBorrowed != "1" || got.TotalRepaid != "3" {
		t.Fatalf("unexpected stats: %+v", got)
	}
	if got.CreditScore != 700 || got.Balance != "2.5" || got.LoanCount != 2 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	loans := []ledger.Loan{
		{Amount: big.NewInt(7), Status: ledger.StatusApproved},
		{Amount: big.NewInt(11), Status: ledger.StatusPending},
		{Amount: big.NewInt(13), Status: ledger.StatusRejected},
	}
	first := Aggregate(big.NewInt(0), loans, 1)
	second := Aggregate(big.NewInt(0), loans, 1)
	if first != second {
		t.Fatalf("aggregation must be pure: %+v vs %+v", first, second)
	}
	if first.ActiveLoans != 1 || first.LoanCount != 3 {
		t.Fatalf("unexpected stats: %+v", first)
	}
	if first.TotalRepaid != "0" {
		t.Fatalf("pending and rejected loans contribute nothing, got %q", first.TotalRepaid)
	}
}

func TestAggregateManySmallLoansExact(t *testing.T) {
	// 0.000000000000000001 ether per loan; floating point would drift.
	loans := make([]ledger.Loan, 1000)
	for i := range loans {
		loans[i] = ledger.Loan{Amount: big.NewInt(1), Status: ledger.StatusApproved}
	}
	got := Aggregate(big.NewInt(0), loans, 0)
	if got.TotalBorrowed != "0.000000000000001" {
		t.Fatalf("unexpected sum: %q", got.TotalBorrowed)
	}
}
