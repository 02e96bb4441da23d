// Package app composes the session, registry, orchestrator, and stats
// layers into the client surface the RPC server exposes. It owns the
// reaction to session changes: any change other than a network switch
// invalidates cached per-account reads before consumers hear about it.
package app

import (
	"context"

	"microloan/go-client/pkg/models"
)

// ClientAPI is the operation surface exposed over RPC. Methods return
// display models only; ledger-native types stay below this line.
type ClientAPI interface {
	SessionConnect(ctx context.Context) (models.SessionStatus, error)
	SessionStatus() models.SessionStatus
	SessionDisconnect() models.SessionStatus

	LoansList(ctx context.Context) ([]models.Loan, error)
	LoansRequest(ctx context.Context, input models.LoanRequestInput) (models.Ticket, error)
	LoansRepay(ctx context.Context, loanID uint64) (models.Ticket, error)

	StatsGet(ctx context.Context) (models.UserStats, error)

	NotificationsSince(fromSeq int64) []NotificationEvent
	OperationState() string
}
