package audit

import (
	"context"

	"github.com/powerchain/backend/internal/models"
	"go.uber.org/zap"
)

type AuditEvent struct {
	EventType string
	Account   string
	Amount    int64
	Status    string
	Details   map[string]string
}

// AuditLogger writes one structured AUDIT line per committed ledger event
// and per rejected mutation. It plugs into the store as an event publisher.
type AuditLogger struct {
	log *zap.Logger
}

func NewAuditLogger(log *zap.Logger) *AuditLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditLogger{log: log.Named("audit")}
}

func (a *AuditLogger) Publish(_ context.Context, events []models.Event) error {
	for _, ev := range events {
		e := describe(ev)
		e.Status = "SUCCESS"
		a.write(e, zap.Time("occurred_at", ev.OccurredAt()))
	}
	return nil
}

// LogRejected records a mutation the ledger refused.
func (a *AuditLogger) LogRejected(operation, account string, err error) {
	a.write(AuditEvent{
		EventType: operation,
		Account:   account,
		Status:    "REJECTED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) write(e AuditEvent, extra ...zap.Field) {
	fields := []zap.Field{
		zap.String("event_type", e.EventType),
		zap.String("account", e.Account),
		zap.Int64("amount", e.Amount),
		zap.String("status", e.Status),
	}
	for k, v := range e.Details {
		fields = append(fields, zap.String(k, v))
	}
	a.log.Info("AUDIT", append(fields, extra...)...)
}

func describe(ev models.Event) AuditEvent {
	e := AuditEvent{EventType: string(ev.Kind()), Details: map[string]string{}}
	switch v := ev.(type) {
	case models.EnergyIssuedEvent:
		e.Account, e.Amount = v.To, v.Credits
		e.Details["issuer"] = v.Issuer
		e.Details["energy_kwh"] = v.EnergyAmount.String()
	case models.TransferEvent:
		e.Account, e.Amount = v.From, v.Amount
		e.Details["ledger"] = v.Ledger
		e.Details["to"] = v.To
	case models.IssuerChangedEvent:
		e.Account = v.Identity
		e.Details["ledger"] = v.Ledger
		e.Details["admin"] = v.Admin
	case models.OfferCreatedEvent:
		e.Account = v.Seller
		e.Details["energy_kwh"] = v.EnergyAmount.String()
		e.Details["price_per_kwh"] = v.PricePerKWh.String()
	case models.OfferClosedEvent:
		e.Account = v.Seller
		e.Details["reason"] = string(v.Reason)
	case models.PurchaseSettledEvent:
		e.Account, e.Amount = v.Buyer, v.TotalCost
		e.Details["seller"] = v.Seller
		e.Details["energy_kwh"] = v.EnergyAmount.String()
	case models.CarbonIssuedEvent:
		e.Account, e.Amount = v.To, v.Amount
	case models.CarbonRedeemedEvent:
		e.Account, e.Amount = v.Account, v.Amount
		e.Details["purpose"] = v.Purpose
	case models.CarbonRateUpdatedEvent:
		e.Account = v.UpdatedBy
		e.Details["energy_type"] = string(v.EnergyType)
		e.Details["rate"] = v.NewRate.String()
	case models.MarketPriceUpdatedEvent:
		e.Account = v.UpdatedBy
		e.Details["energy_type"] = string(v.EnergyType)
		e.Details["price"] = v.NewPrice.String()
	case models.ProposalCreatedEvent:
		e.Account = v.Proposer
	case models.VoteCastEvent:
		e.Account, e.Amount = v.Voter, v.Weight
		e.Details["vote"] = string(v.Vote)
	case models.ProposalExecutedEvent:
		e.Account = v.ExecutedBy
	}
	return e
}
