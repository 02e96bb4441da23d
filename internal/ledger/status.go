package ledger

import (
	"fmt"

	"microloan/go-client/internal/fault"
	"microloan/go-client/pkg/models"
)

// Status is the loan lifecycle state as recorded by the ledger program.
// The wire form is a small integer; the mapping is closed and anything
// outside it is a protocol fault, never silently coerced.
type Status uint8

const (
	StatusPending Status = iota
	StatusApproved
	StatusRepaid
	StatusRejected
)

func StatusFromCode(code uint8) (Status, error) {
	if code > uint8(StatusRejected) {
		return 0, fault.New(fault.CodeProtocol, fmt.Sprintf("unknown loan status code %d", code))
	}
	return Status(code), nil
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusApproved:
		return "Approved"
	case StatusRepaid:
		return "Repaid"
	case StatusRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) Model() models.LoanStatus {
	return models.LoanStatus(s.String())
}
