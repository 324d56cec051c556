package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/powerchain/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EnergyLedgerName identifies the energy credit ledger in entries and events.
const EnergyLedgerName = "energy_credits"

// DefaultCreditsPerKWh is the credit base units minted per kWh.
const DefaultCreditsPerKWh = 100

// energyScale is the finest kWh precision accepted (1 Wh).
const energyScale = 3

type EnergyCreditConfig struct {
	Admin         string
	CreditsPerKWh int64
	InitialSupply int64
}

// EnergyCreditService custodies spendable energy credits. New supply comes
// only from registered issuers attesting metered production.
type EnergyCreditService struct {
	store  *LedgerStore
	ledger *TokenLedger
	log    *zap.Logger

	creditsPerKWh decimal.Decimal
	energyIssued  map[string]decimal.Decimal
	issuances     []models.EnergyIssuance
}

func NewEnergyCreditService(store *LedgerStore, cfg EnergyCreditConfig) (*EnergyCreditService, error) {
	if cfg.CreditsPerKWh <= 0 {
		return nil, fmt.Errorf("energy credits: credits per kWh must be positive")
	}
	s := &EnergyCreditService{
		store:         store,
		ledger:        NewTokenLedger(store, EnergyLedgerName, cfg.Admin),
		log:           store.Logger("energy"),
		creditsPerKWh: decimal.NewFromInt(cfg.CreditsPerKWh),
		energyIssued:  make(map[string]decimal.Decimal),
	}

	if cfg.InitialSupply > 0 {
		tx := store.Begin()
		defer tx.Rollback()
		if err := s.ledger.MintTx(tx, cfg.Admin, cfg.InitialSupply); err != nil {
			return nil, fmt.Errorf("energy credits: initial supply: %w", err)
		}
		if err := tx.Commit(context.Background()); err != nil {
			return nil, fmt.Errorf("energy credits: initial supply: %w", err)
		}
	}
	return s, nil
}

// Ledger exposes the underlying token ledger for balance queries.
func (s *EnergyCreditService) Ledger() *TokenLedger {
	return s.ledger
}

// Issue mints credits for energyAmount kWh of metered production.
func (s *EnergyCreditService) Issue(ctx context.Context, caller, to string, energyAmount decimal.Decimal, reason string) (int64, error) {
	tx := s.store.Begin()
	defer tx.Rollback()

	if !s.ledger.isIssuerTx(caller) {
		return 0, fmt.Errorf("issue energy credits: %w: %s is not an issuer", models.ErrUnauthorized, caller)
	}
	if err := checkEnergyAmount(energyAmount); err != nil {
		return 0, fmt.Errorf("issue energy credits: %w", err)
	}

	credits := s.CreditsFor(energyAmount)
	if credits <= 0 {
		return 0, fmt.Errorf("issue energy credits: %w: %s kWh yields no credits", models.ErrInvalidAmount, energyAmount)
	}
	if err := s.ledger.MintTx(tx, to, credits); err != nil {
		return 0, fmt.Errorf("issue energy credits: %w", err)
	}

	s.recordIssuanceTx(tx, caller, to, energyAmount, credits, reason)

	tx.Emit(models.EnergyIssuedEvent{
		To:           to,
		Issuer:       caller,
		EnergyAmount: energyAmount,
		Credits:      credits,
		Reason:       reason,
		BalanceAfter: s.ledger.balances[to],
		At:           tx.Now(),
	})
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	s.log.Info("energy credits issued",
		zap.String("to", to), zap.String("kwh", energyAmount.String()),
		zap.Int64("credits", credits), zap.String("reason", reason))
	return credits, nil
}

// CreditsFor converts kWh to credit base units, rounding down.
func (s *EnergyCreditService) CreditsFor(energyAmount decimal.Decimal) int64 {
	credits := energyAmount.Mul(s.creditsPerKWh).Floor()
	if credits.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return -1
	}
	return credits.IntPart()
}

func (s *EnergyCreditService) Transfer(ctx context.Context, from, to string, amount int64) error {
	return s.ledger.Transfer(ctx, from, to, amount)
}

func (s *EnergyCreditService) AddIssuer(ctx context.Context, caller, issuer string) error {
	return s.ledger.AddIssuer(ctx, caller, issuer)
}

func (s *EnergyCreditService) RemoveIssuer(ctx context.Context, caller, issuer string) error {
	return s.ledger.RemoveIssuer(ctx, caller, issuer)
}

func (s *EnergyCreditService) BalanceOf(account string) int64 {
	return s.ledger.BalanceOf(account)
}

func (s *EnergyCreditService) TotalSupply() int64 {
	return s.ledger.TotalSupply()
}

// GetEnergyBalance is the cumulative kWh ever issued to account. It is a
// reporting figure and cannot be spent.
func (s *EnergyCreditService) GetEnergyBalance(account string) decimal.Decimal {
	var total decimal.Decimal
	s.store.View(func(time.Time) { total = s.energyIssued[account] })
	return total
}

// Issuances returns the issuance audit trail for account, oldest first.
func (s *EnergyCreditService) Issuances(account string) []models.EnergyIssuance {
	var out []models.EnergyIssuance
	s.store.View(func(time.Time) {
		for _, rec := range s.issuances {
			if rec.To == account {
				out = append(out, rec)
			}
		}
	})
	return out
}

func (s *EnergyCreditService) recordIssuanceTx(tx *LedgerTx, issuer, to string, energyAmount decimal.Decimal, credits int64, reason string) {
	prev, had := s.energyIssued[to]
	s.energyIssued[to] = prev.Add(energyAmount)
	tx.OnRollback(func() {
		if had {
			s.energyIssued[to] = prev
		} else {
			delete(s.energyIssued, to)
		}
	})

	n := len(s.issuances)
	s.issuances = append(s.issuances, models.EnergyIssuance{
		To:           to,
		Issuer:       issuer,
		EnergyAmount: energyAmount,
		Credits:      credits,
		Reason:       reason,
		IssuedAt:     tx.Now(),
	})
	tx.OnRollback(func() { s.issuances = s.issuances[:n] })
}

// ReplayTx reapplies a journaled energy ledger event.
func (s *EnergyCreditService) ReplayTx(tx *LedgerTx, ev models.Event) (bool, error) {
	if ok, err := s.ledger.ReplayTx(tx, ev); ok || err != nil {
		return ok, err
	}
	e, ok := ev.(models.EnergyIssuedEvent)
	if !ok {
		return false, nil
	}
	if err := s.ledger.MintTx(tx, e.To, e.Credits); err != nil {
		return true, err
	}
	s.recordIssuanceTx(tx, e.Issuer, e.To, e.EnergyAmount, e.Credits, e.Reason)
	return true, checkBalanceAfter(s.ledger, e.To, e.BalanceAfter)
}
