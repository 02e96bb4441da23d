// Package models holds the JSON-facing shapes returned by the client
// API. Internal packages compute on ledger-native types (wei integers,
// addresses); these models carry display forms only.
package models

import (
	"fmt"
	"time"
)

type SessionState string

const (
	SessionDisconnected SessionState = "disconnected"
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
)

type LoanStatus string

const (
	LoanPending  LoanStatus = "Pending"
	LoanApproved LoanStatus = "Approved"
	LoanRepaid   LoanStatus = "Repaid"
	LoanRejected LoanStatus = "Rejected"
)

type SessionStatus struct {
	State        SessionState `json:"state"`
	Account      string       `json:"account,omitempty"`
	ShortAccount string       `json:"short_account,omitempty"`
	ChainID      string       `json:"chain_id,omitempty"`
}

type Loan struct {
	ID           uint64     `json:"id"`
	Amount       string     `json:"amount"`
	AmountWei    string     `json:"amount_wei"`
	DurationDays uint32     `json:"duration_days"`
	Purpose      string     `json:"purpose"`
	Status       LoanStatus `json:"status"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

type UserStats struct {
	Balance       string `json:"balance"`
	LoanCount     int    `json:"loan_count"`
	CreditScore   uint64 `json:"credit_score"`
	ActiveLoans   int    `json:"active_loans"`
	TotalBorrowed string `json:"total_borrowed"`
	TotalRepaid   string `json:"total_repaid"`
}

type LoanRequestInput struct {
	Amount       string `json:"amount"`
	DurationDays int    `json:"duration_days"`
	Purpose      string `json:"purpose"`
}

type TicketState string

const (
	TicketSubmitted           TicketState = "submitted"
	TicketPendingConfirmation TicketState = "pending_confirmation"
	TicketConfirmed           TicketState = "confirmed"
	TicketFailed              TicketState = "failed"
)

type Ticket struct {
	OperationID string      `json:"operation_id"`
	Hash        string      `json:"hash,omitempty"`
	Account     string      `json:"account"`
	Kind        string      `json:"kind"`
	State       TicketState `json:"state"`
	FailCode    string      `json:"fail_code,omitempty"`
	FailReason  string      `json:"fail_reason,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// ShortAddress renders an address as 0xabcd…1234 for logs and UI
// surfaces. Inputs shorter than ten characters pass through unchanged.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return fmt.Sprintf("%s…%s", addr[:6], addr[len(addr)-4:])
}
