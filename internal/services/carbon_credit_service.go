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

const CarbonLedgerName = "carbon_credits"

// CarbonUnitsPerCredit is the number of ledger base units in one carbon
// credit; balances are held in milli-credits.
const CarbonUnitsPerCredit = 1000

type CarbonCreditConfig struct {
	Admin string
	// Rates is carbon credits earned per kWh traded, per energy type.
	Rates map[models.EnergyType]decimal.Decimal
}

// DefaultCarbonRates mirrors the published PowerChain rate card.
func DefaultCarbonRates() map[models.EnergyType]decimal.Decimal {
	return map[models.EnergyType]decimal.Decimal{
		models.EnergySolar:   decimal.RequireFromString("0.05"),
		models.EnergyWind:    decimal.RequireFromString("0.04"),
		models.EnergyStorage: decimal.RequireFromString("0.03"),
		models.EnergyGrid:    decimal.Zero,
	}
}

type carbonAccount struct {
	earned   int64
	redeemed int64
	history  []models.CarbonRecord
}

// CarbonCreditService mints carbon credits only as a consequence of settled
// energy volume, through registered issuers such as the trading ledger.
type CarbonCreditService struct {
	store  *LedgerStore
	ledger *TokenLedger
	log    *zap.Logger

	rates    map[models.EnergyType]decimal.Decimal
	accounts map[string]*carbonAccount
}

func NewCarbonCreditService(store *LedgerStore, cfg CarbonCreditConfig) (*CarbonCreditService, error) {
	rates := DefaultCarbonRates()
	for t, r := range cfg.Rates {
		if !t.Valid() {
			return nil, fmt.Errorf("carbon credits: %w: %q", models.ErrInvalidEnergyType, t)
		}
		if err := checkRate(r); err != nil {
			return nil, fmt.Errorf("carbon credits: rate for %s: %w", t, err)
		}
		rates[t] = r
	}
	return &CarbonCreditService{
		store:    store,
		ledger:   NewTokenLedger(store, CarbonLedgerName, cfg.Admin),
		log:      store.Logger("carbon"),
		rates:    rates,
		accounts: make(map[string]*carbonAccount),
	}, nil
}

func (s *CarbonCreditService) Ledger() *TokenLedger {
	return s.ledger
}

// IssueForEnergy mints credits for energyAmount kWh of the given type.
func (s *CarbonCreditService) IssueForEnergy(ctx context.Context, caller, to string, energyAmount decimal.Decimal, energyType models.EnergyType) (int64, error) {
	tx := s.store.Begin()
	defer tx.Rollback()

	amount, err := s.issueForEnergyTx(tx, caller, to, energyAmount, energyType)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return amount, nil
}

// issueForEnergyTx mints inside an existing transaction. A zero computed
// amount (for example grid energy) mints and records nothing.
func (s *CarbonCreditService) issueForEnergyTx(tx *LedgerTx, caller, to string, energyAmount decimal.Decimal, energyType models.EnergyType) (int64, error) {
	if !s.ledger.isIssuerTx(caller) {
		return 0, fmt.Errorf("issue carbon credits: %w: %s is not an issuer", models.ErrUnauthorized, caller)
	}
	if err := checkEnergyAmount(energyAmount); err != nil {
		return 0, fmt.Errorf("issue carbon credits: %w", err)
	}
	rate, ok := s.rates[energyType]
	if !ok {
		return 0, fmt.Errorf("issue carbon credits: %w: %q", models.ErrInvalidEnergyType, energyType)
	}

	units := energyAmount.Mul(rate).Mul(decimal.NewFromInt(CarbonUnitsPerCredit)).Floor()
	if units.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("issue carbon credits: %w: amount overflow", models.ErrInvalidAmount)
	}
	amount := units.IntPart()
	if amount == 0 {
		return 0, nil
	}

	if err := s.ledger.MintTx(tx, to, amount); err != nil {
		return 0, fmt.Errorf("issue carbon credits: %w", err)
	}

	s.creditAccountTx(tx, to, amount, energyAmount, energyType)

	tx.Emit(models.CarbonIssuedEvent{
		To:           to,
		Amount:       amount,
		EnergyAmount: energyAmount,
		EnergyType:   energyType,
		BalanceAfter: s.ledger.balances[to],
		At:           tx.Now(),
	})
	return amount, nil
}

// Redeem retires amount milli-credits held by account.
func (s *CarbonCreditService) Redeem(ctx context.Context, account string, amount int64, purpose string) error {
	tx := s.store.Begin()
	defer tx.Rollback()

	if err := s.ledger.BurnTx(tx, account, amount); err != nil {
		return fmt.Errorf("redeem carbon credits: %w", err)
	}
	s.debitAccountTx(tx, account, amount)

	tx.Emit(models.CarbonRedeemedEvent{
		Account:      account,
		Amount:       amount,
		Purpose:      purpose,
		BalanceAfter: s.ledger.balances[account],
		At:           tx.Now(),
	})
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("carbon credits redeemed", zap.String("account", account), zap.Int64("amount", amount))
	return nil
}

// SetRate changes the credits-per-kWh rate for one energy type.
func (s *CarbonCreditService) SetRate(ctx context.Context, caller string, energyType models.EnergyType, rate decimal.Decimal) error {
	tx := s.store.Begin()
	defer tx.Rollback()

	if caller != s.ledger.admin {
		return fmt.Errorf("set carbon rate: %w", models.ErrUnauthorized)
	}
	if !energyType.Valid() {
		return fmt.Errorf("set carbon rate: %w: %q", models.ErrInvalidEnergyType, energyType)
	}
	if err := checkRate(rate); err != nil {
		return fmt.Errorf("set carbon rate: %w", err)
	}
	prev := s.setRateTx(tx, energyType, rate)
	tx.Emit(models.CarbonRateUpdatedEvent{
		EnergyType: energyType,
		OldRate:    prev,
		NewRate:    rate,
		UpdatedBy:  caller,
		At:         tx.Now(),
	})
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("carbon rate updated", zap.String("energy_type", string(energyType)),
		zap.String("old", prev.String()), zap.String("new", rate.String()))
	return nil
}

func (s *CarbonCreditService) setRateTx(tx *LedgerTx, energyType models.EnergyType, rate decimal.Decimal) decimal.Decimal {
	prev, had := s.rates[energyType]
	s.rates[energyType] = rate
	tx.OnRollback(func() {
		if had {
			s.rates[energyType] = prev
		} else {
			delete(s.rates, energyType)
		}
	})
	return prev
}

func (s *CarbonCreditService) Rate(energyType models.EnergyType) decimal.Decimal {
	var r decimal.Decimal
	s.store.View(func(time.Time) { r = s.rates[energyType] })
	return r
}

func (s *CarbonCreditService) GetCarbonStats(account string) models.CarbonStats {
	var stats models.CarbonStats
	s.store.View(func(time.Time) {
		stats.CurrentBalance = s.ledger.balances[account]
		if acct, ok := s.accounts[account]; ok {
			stats.TotalEarned = acct.earned
			stats.TotalRedeemed = acct.redeemed
			stats.RecordCount = len(acct.history)
		}
	})
	return stats
}

func (s *CarbonCreditService) History(account string) []models.CarbonRecord {
	var out []models.CarbonRecord
	s.store.View(func(time.Time) {
		if acct, ok := s.accounts[account]; ok {
			out = append(out, acct.history...)
		}
	})
	return out
}

func (s *CarbonCreditService) BalanceOf(account string) int64 {
	return s.ledger.BalanceOf(account)
}

func (s *CarbonCreditService) TotalSupply() int64 {
	return s.ledger.TotalSupply()
}

func (s *CarbonCreditService) AddIssuer(ctx context.Context, caller, issuer string) error {
	return s.ledger.AddIssuer(ctx, caller, issuer)
}

func (s *CarbonCreditService) RemoveIssuer(ctx context.Context, caller, issuer string) error {
	return s.ledger.RemoveIssuer(ctx, caller, issuer)
}

func (s *CarbonCreditService) accountTx(tx *LedgerTx, account string) *carbonAccount {
	acct, ok := s.accounts[account]
	if !ok {
		acct = &carbonAccount{}
		s.accounts[account] = acct
		tx.OnRollback(func() { delete(s.accounts, account) })
	}
	return acct
}

func (s *CarbonCreditService) creditAccountTx(tx *LedgerTx, to string, amount int64, energyAmount decimal.Decimal, energyType models.EnergyType) {
	acct := s.accountTx(tx, to)
	earned, n := acct.earned, len(acct.history)
	acct.earned += amount
	acct.history = append(acct.history, models.CarbonRecord{
		Amount:       amount,
		EnergyAmount: energyAmount,
		EnergyType:   energyType,
		Timestamp:    tx.Now(),
	})
	tx.OnRollback(func() {
		acct.earned = earned
		acct.history = acct.history[:n]
	})
}

func (s *CarbonCreditService) debitAccountTx(tx *LedgerTx, account string, amount int64) {
	acct := s.accountTx(tx, account)
	redeemed := acct.redeemed
	acct.redeemed += amount
	tx.OnRollback(func() { acct.redeemed = redeemed })
}

// ReplayTx reapplies a journaled carbon ledger event.
func (s *CarbonCreditService) ReplayTx(tx *LedgerTx, ev models.Event) (bool, error) {
	if ok, err := s.ledger.ReplayTx(tx, ev); ok || err != nil {
		return ok, err
	}
	switch e := ev.(type) {
	case models.CarbonIssuedEvent:
		if err := s.ledger.MintTx(tx, e.To, e.Amount); err != nil {
			return true, err
		}
		s.creditAccountTx(tx, e.To, e.Amount, e.EnergyAmount, e.EnergyType)
		return true, checkBalanceAfter(s.ledger, e.To, e.BalanceAfter)
	case models.CarbonRedeemedEvent:
		if err := s.ledger.BurnTx(tx, e.Account, e.Amount); err != nil {
			return true, err
		}
		s.debitAccountTx(tx, e.Account, e.Amount)
		return true, checkBalanceAfter(s.ledger, e.Account, e.BalanceAfter)
	case models.CarbonRateUpdatedEvent:
		s.setRateTx(tx, e.EnergyType, e.NewRate)
		return true, nil
	}
	return false, nil
}
