package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferCloseReason records why an offer stopped being matchable.
type OfferCloseReason string

const (
	OfferOpen      OfferCloseReason = ""
	OfferFilled    OfferCloseReason = "filled"
	OfferExpired   OfferCloseReason = "expired"
	OfferCancelled OfferCloseReason = "cancelled"
)

// Offer is a standing, partially fillable sell listing.
type Offer struct {
	ID           uint64           `json:"id"`
	Seller       string           `json:"seller"`
	EnergyAmount decimal.Decimal  `json:"energy_amount"` // listed kWh
	Remaining    decimal.Decimal  `json:"remaining"`     // unfilled kWh
	PricePerKWh  decimal.Decimal  `json:"price_per_kwh"` // credit base units per kWh
	EnergyType   EnergyType       `json:"energy_type"`
	Location     string           `json:"location"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
	Active       bool             `json:"active"`
	CloseReason  OfferCloseReason `json:"close_reason,omitempty"`
}

// Matchable reports whether a purchase may be settled against the offer at now.
func (o *Offer) Matchable(now time.Time) bool {
	return o.Active && now.Before(o.ExpiresAt) && o.Remaining.IsPositive()
}

// Trade is an immutable settlement record.
type Trade struct {
	ID           uint64          `json:"id"`
	OfferID      uint64          `json:"offer_id"`
	Buyer        string          `json:"buyer"`
	Seller       string          `json:"seller"`
	EnergyType   EnergyType      `json:"energy_type"`
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	PricePerKWh  decimal.Decimal `json:"price_per_kwh"`
	TotalCost    int64           `json:"total_cost"`
	CarbonIssued int64           `json:"carbon_issued"`
	SettledAt    time.Time       `json:"settled_at"`
}

type MarketStats struct {
	ActiveOffers      int             `json:"active_offers"`
	TotalTransactions uint64          `json:"total_transactions"`
	TotalVolume       decimal.Decimal `json:"total_volume"`
}

// MarketPrice is advisory reference pricing; UpdatedAt is zero until first set.
type MarketPrice struct {
	EnergyType EnergyType      `json:"energy_type"`
	Price      decimal.Decimal `json:"price"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
