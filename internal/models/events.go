package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventKind string

const (
	KindEnergyIssued       EventKind = "energy_issued"
	KindTransferred        EventKind = "transferred"
	KindIssuerAdded        EventKind = "issuer_added"
	KindIssuerRemoved      EventKind = "issuer_removed"
	KindOfferCreated       EventKind = "offer_created"
	KindOfferCancelled     EventKind = "offer_cancelled"
	KindOfferExpired       EventKind = "offer_expired"
	KindPurchaseSettled    EventKind = "purchase_settled"
	KindCarbonIssued       EventKind = "carbon_issued"
	KindCarbonRedeemed     EventKind = "carbon_redeemed"
	KindCarbonRateUpdated  EventKind = "carbon_rate_updated"
	KindMarketPriceUpdated EventKind = "market_price_updated"
	KindProposalCreated    EventKind = "proposal_created"
	KindVoteCast           EventKind = "vote_cast"
	KindProposalExecuted   EventKind = "proposal_executed"
)

// Event is emitted by every committed ledger mutation.
type Event interface {
	Kind() EventKind
	OccurredAt() time.Time
}

type EnergyIssuedEvent struct {
	To           string          `json:"to"`
	Issuer       string          `json:"issuer"`
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	Credits      int64           `json:"credits"`
	Reason       string          `json:"reason"`
	BalanceAfter int64           `json:"balance_after"`
	At           time.Time       `json:"at"`
}

func (e EnergyIssuedEvent) Kind() EventKind       { return KindEnergyIssued }
func (e EnergyIssuedEvent) OccurredAt() time.Time { return e.At }

type TransferEvent struct {
	Ledger string    `json:"ledger"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

func (e TransferEvent) Kind() EventKind       { return KindTransferred }
func (e TransferEvent) OccurredAt() time.Time { return e.At }

type IssuerChangedEvent struct {
	Ledger   string    `json:"ledger"`
	Identity string    `json:"identity"`
	Admin    string    `json:"admin"`
	Added    bool      `json:"added"`
	At       time.Time `json:"at"`
}

func (e IssuerChangedEvent) Kind() EventKind {
	if e.Added {
		return KindIssuerAdded
	}
	return KindIssuerRemoved
}
func (e IssuerChangedEvent) OccurredAt() time.Time { return e.At }

type OfferCreatedEvent struct {
	OfferID      uint64          `json:"offer_id"`
	Seller       string          `json:"seller"`
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	PricePerKWh  decimal.Decimal `json:"price_per_kwh"`
	EnergyType   EnergyType      `json:"energy_type"`
	Location     string          `json:"location"`
	ExpiresAt    time.Time       `json:"expires_at"`
	At           time.Time       `json:"at"`
}

func (e OfferCreatedEvent) Kind() EventKind       { return KindOfferCreated }
func (e OfferCreatedEvent) OccurredAt() time.Time { return e.At }

// OfferClosedEvent covers cancellation and detected expiry.
type OfferClosedEvent struct {
	OfferID   uint64           `json:"offer_id"`
	Seller    string           `json:"seller"`
	Reason    OfferCloseReason `json:"reason"`
	Remaining decimal.Decimal  `json:"remaining"`
	At        time.Time        `json:"at"`
}

func (e OfferClosedEvent) Kind() EventKind {
	if e.Reason == OfferExpired {
		return KindOfferExpired
	}
	return KindOfferCancelled
}
func (e OfferClosedEvent) OccurredAt() time.Time { return e.At }

type PurchaseSettledEvent struct {
	TradeID         uint64          `json:"trade_id"`
	OfferID         uint64          `json:"offer_id"`
	Buyer           string          `json:"buyer"`
	Seller          string          `json:"seller"`
	EnergyAmount    decimal.Decimal `json:"energy_amount"`
	PricePerKWh     decimal.Decimal `json:"price_per_kwh"`
	TotalCost       int64           `json:"total_cost"`
	CarbonIssued    int64           `json:"carbon_issued"`
	RemainingBefore decimal.Decimal `json:"remaining_before"`
	RemainingAfter  decimal.Decimal `json:"remaining_after"`
	OfferActive     bool            `json:"offer_active"`
	At              time.Time       `json:"at"`
}

func (e PurchaseSettledEvent) Kind() EventKind       { return KindPurchaseSettled }
func (e PurchaseSettledEvent) OccurredAt() time.Time { return e.At }

type CarbonIssuedEvent struct {
	To           string          `json:"to"`
	Amount       int64           `json:"amount"`
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	EnergyType   EnergyType      `json:"energy_type"`
	BalanceAfter int64           `json:"balance_after"`
	At           time.Time       `json:"at"`
}

func (e CarbonIssuedEvent) Kind() EventKind       { return KindCarbonIssued }
func (e CarbonIssuedEvent) OccurredAt() time.Time { return e.At }

type CarbonRedeemedEvent struct {
	Account      string    `json:"account"`
	Amount       int64     `json:"amount"`
	Purpose      string    `json:"purpose"`
	BalanceAfter int64     `json:"balance_after"`
	At           time.Time `json:"at"`
}

func (e CarbonRedeemedEvent) Kind() EventKind       { return KindCarbonRedeemed }
func (e CarbonRedeemedEvent) OccurredAt() time.Time { return e.At }

type CarbonRateUpdatedEvent struct {
	EnergyType EnergyType      `json:"energy_type"`
	OldRate    decimal.Decimal `json:"old_rate"`
	NewRate    decimal.Decimal `json:"new_rate"`
	UpdatedBy  string          `json:"updated_by"`
	At         time.Time       `json:"at"`
}

func (e CarbonRateUpdatedEvent) Kind() EventKind       { return KindCarbonRateUpdated }
func (e CarbonRateUpdatedEvent) OccurredAt() time.Time { return e.At }

type MarketPriceUpdatedEvent struct {
	EnergyType EnergyType      `json:"energy_type"`
	OldPrice   decimal.Decimal `json:"old_price"`
	NewPrice   decimal.Decimal `json:"new_price"`
	UpdatedBy  string          `json:"updated_by"`
	At         time.Time       `json:"at"`
}

func (e MarketPriceUpdatedEvent) Kind() EventKind       { return KindMarketPriceUpdated }
func (e MarketPriceUpdatedEvent) OccurredAt() time.Time { return e.At }

type ProposalCreatedEvent struct {
	ProposalID      uint64       `json:"proposal_id"`
	Proposer        string       `json:"proposer"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Type            ProposalType `json:"type"`
	ExecutionTarget string       `json:"execution_target,omitempty"`
	ExecutionData   []byte       `json:"execution_data,omitempty"`
	Deadline        time.Time    `json:"deadline"`
	At              time.Time    `json:"at"`
}

func (e ProposalCreatedEvent) Kind() EventKind       { return KindProposalCreated }
func (e ProposalCreatedEvent) OccurredAt() time.Time { return e.At }

type VoteCastEvent struct {
	ProposalID uint64    `json:"proposal_id"`
	Voter      string    `json:"voter"`
	Vote       VoteType  `json:"vote"`
	Weight     int64     `json:"weight"`
	YesWeight  int64     `json:"yes_weight"`
	NoWeight   int64     `json:"no_weight"`
	At         time.Time `json:"at"`
}

func (e VoteCastEvent) Kind() EventKind       { return KindVoteCast }
func (e VoteCastEvent) OccurredAt() time.Time { return e.At }

type ProposalExecutedEvent struct {
	ProposalID uint64    `json:"proposal_id"`
	ExecutedBy string    `json:"executed_by"`
	YesWeight  int64     `json:"yes_weight"`
	NoWeight   int64     `json:"no_weight"`
	At         time.Time `json:"at"`
}

func (e ProposalExecutedEvent) Kind() EventKind       { return KindProposalExecuted }
func (e ProposalExecutedEvent) OccurredAt() time.Time { return e.At }

// EventEnvelope is the wire form written to the journal and the publisher.
type EventEnvelope struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Event     `json:"payload"`
}

// Wrap assigns ev a fresh envelope id.
func Wrap(ev Event) EventEnvelope {
	return EventEnvelope{
		ID:         uuid.New().String(),
		Kind:       ev.Kind(),
		OccurredAt: ev.OccurredAt(),
		Payload:    ev,
	}
}

// DecodeEvent rebuilds a typed event from a journaled kind and payload.
func DecodeEvent(kind EventKind, payload []byte) (Event, error) {
	var ev Event
	var err error
	switch kind {
	case KindEnergyIssued:
		ev, err = decodeAs[EnergyIssuedEvent](payload)
	case KindTransferred:
		ev, err = decodeAs[TransferEvent](payload)
	case KindIssuerAdded, KindIssuerRemoved:
		ev, err = decodeAs[IssuerChangedEvent](payload)
	case KindOfferCreated:
		ev, err = decodeAs[OfferCreatedEvent](payload)
	case KindOfferCancelled, KindOfferExpired:
		ev, err = decodeAs[OfferClosedEvent](payload)
	case KindPurchaseSettled:
		ev, err = decodeAs[PurchaseSettledEvent](payload)
	case KindCarbonIssued:
		ev, err = decodeAs[CarbonIssuedEvent](payload)
	case KindCarbonRedeemed:
		ev, err = decodeAs[CarbonRedeemedEvent](payload)
	case KindCarbonRateUpdated:
		ev, err = decodeAs[CarbonRateUpdatedEvent](payload)
	case KindMarketPriceUpdated:
		ev, err = decodeAs[MarketPriceUpdatedEvent](payload)
	case KindProposalCreated:
		ev, err = decodeAs[ProposalCreatedEvent](payload)
	case KindVoteCast:
		ev, err = decodeAs[VoteCastEvent](payload)
	case KindProposalExecuted:
		ev, err = decodeAs[ProposalExecutedEvent](payload)
	default:
		return nil, fmt.Errorf("decode event: unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", kind, err)
	}
	if ev.Kind() != kind {
		return nil, fmt.Errorf("decode event: payload is %s, journaled as %s", ev.Kind(), kind)
	}
	return ev, nil
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
