// Package movement defines the canonical bank transaction record produced
// by the scraping pipeline.
package movement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Movement is one normalized bank transaction. Amounts follow one
// convention everywhere: money leaving the account is negative, money
// entering it is positive, regardless of how the institution displays it.
type Movement struct {
	// BankID identifies the institution the record came from. It is
	// stamped by the orchestrator, never by a driver.
	BankID      string          `json:"bank_id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	// AccountRef distinguishes sub-accounts or cards when a single login
	// exposes more than one.
	AccountRef string `json:"account_reference,omitempty"`
	// Kind is the institution's own movement class, normalized to lower
	// case: "cargo", "abono", "facturado", "no_facturado".
	Kind string `json:"movement_type,omitempty"`
	// RawRef is an opaque reference callers can use for deduplication.
	RawRef string `json:"raw_reference,omitempty"`
}

// Validate reports whether the record satisfies the constraints every
// consumer relies on. The orchestrator runs it on every record before
// returning; a driver bug surfaces here instead of in an export file.
func (m Movement) Validate() error {
	if m.BankID == "" {
		return errors.New("movement missing bank id")
	}
	if m.Date.IsZero() {
		return errors.New("movement missing date")
	}
	if m.Currency == "" {
		return errors.New("movement missing currency")
	}
	return nil
}
