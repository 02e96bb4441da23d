// Package stats derives the account summary from ledger reads. Pure
// computation: the same loan set and balance always produce the same
// result. Sums accumulate in wei and convert to display decimals only
// at the boundary, so many small loans cannot drift.
package stats

import (
	"math/big"

	"microloan/go-client/internal/ledger"
	"microloan/go-client/internal/money"
	"microloan/go-client/pkg/models"
)

func Aggregate(balanceWei *big.Int, loans []ledger.Loan, creditScore uint64) models.UserStats {
	active := 0
	borrowed := new(big.Int)
	repaid := new(big.Int)
	for _, loan := range loans {
		switch loan.Status {
		case ledger.StatusApproved:
			active++
			borrowed.Add(borrowed, loan.Amount)
		case ledger.StatusRepaid:
			repaid.Add(repaid, loan.Amount)
		}
	}
	return models.UserStats{
		Balance:       money.FormatWei(balanceWei),
		LoanCount:     len(loans),
		CreditScore:   creditScore,
		ActiveLoans:   active,
		TotalBorrowed: money.FormatWei(borrowed),
		TotalRepaid:   money.FormatWei(repaid),
	}
}
