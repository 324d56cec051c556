package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one balance movement on a token ledger.
type LedgerEntry struct {
	Ledger    string    `json:"ledger"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`     // base units, negative for debits
	EntryType string    `json:"entry_type"` // DEBIT, CREDIT, MINT or BURN
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a balance snapshot for one holder on one ledger.
type Account struct {
	ID      string `json:"id"`
	Ledger  string `json:"ledger"`
	Balance int64  `json:"balance"`
}

// EnergyIssuance is the audit record written for every energy credit issue.
type EnergyIssuance struct {
	To           string          `json:"to"`
	Issuer       string          `json:"issuer"`
	EnergyAmount decimal.Decimal `json:"energy_amount"` // kWh
	Credits      int64           `json:"credits"`
	Reason       string          `json:"reason"`
	IssuedAt     time.Time       `json:"issued_at"`
}

// CarbonRecord is one carbon credit issuance in an account's history.
type CarbonRecord struct {
	Amount       int64           `json:"amount"` // milli-credits
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	EnergyType   EnergyType      `json:"energy_type"`
	Timestamp    time.Time       `json:"timestamp"`
}

type CarbonStats struct {
	TotalEarned    int64 `json:"total_earned"`
	TotalRedeemed  int64 `json:"total_redeemed"`
	CurrentBalance int64 `json:"current_balance"`
	RecordCount    int   `json:"record_count"`
}
