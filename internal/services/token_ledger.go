package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/powerchain/backend/internal/identity"
	"github.com/powerchain/backend/internal/models"
	"go.uber.org/zap"
)

const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
	EntryMint   = "MINT"
	EntryBurn   = "BURN"
)

// TokenLedger is a fungible balance store. Every mutation goes through a
// LedgerTx of the shared store and registers its own undo step.
type TokenLedger struct {
	name  string
	store *LedgerStore
	admin string
	log   *zap.Logger

	balances    map[string]int64
	issuers     map[string]bool
	entries     []models.LedgerEntry
	totalMinted int64
	totalBurned int64
}

func NewTokenLedger(store *LedgerStore, name, admin string) *TokenLedger {
	return &TokenLedger{
		name:     name,
		store:    store,
		admin:    admin,
		log:      store.Logger(name),
		balances: make(map[string]int64),
		issuers:  make(map[string]bool),
	}
}

func (l *TokenLedger) Name() string  { return l.name }
func (l *TokenLedger) Admin() string { return l.admin }

func (l *TokenLedger) BalanceOf(account string) int64 {
	var bal int64
	l.store.View(func(time.Time) { bal = l.balances[account] })
	return bal
}

func (l *TokenLedger) TotalSupply() int64 {
	var supply int64
	l.store.View(func(time.Time) { supply = l.totalMinted - l.totalBurned })
	return supply
}

// Supply returns minted and burned totals together for conservation checks.
func (l *TokenLedger) Supply() (minted, burned int64) {
	l.store.View(func(time.Time) { minted, burned = l.totalMinted, l.totalBurned })
	return minted, burned
}

// Balances returns a copy of every non-zero balance.
func (l *TokenLedger) Balances() map[string]int64 {
	out := make(map[string]int64)
	l.store.View(func(time.Time) {
		for k, v := range l.balances {
			if v != 0 {
				out[k] = v
			}
		}
	})
	return out
}

// Entries returns the movement history of account, oldest first.
func (l *TokenLedger) Entries(account string) []models.LedgerEntry {
	var out []models.LedgerEntry
	l.store.View(func(time.Time) {
		for _, e := range l.entries {
			if e.AccountID == account {
				out = append(out, e)
			}
		}
	})
	return out
}

func (l *TokenLedger) IsIssuer(identity string) bool {
	var ok bool
	l.store.View(func(time.Time) { ok = l.issuers[identity] })
	return ok
}

func (l *TokenLedger) isIssuerTx(identity string) bool {
	return l.issuers[identity]
}

// Transfer moves amount between two holders in its own transaction.
func (l *TokenLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	tx := l.store.Begin()
	defer tx.Rollback()

	if err := l.TransferTx(tx, from, to, amount); err != nil {
		return err
	}
	if from != to {
		tx.Emit(models.TransferEvent{Ledger: l.name, From: from, To: to, Amount: amount, At: tx.Now()})
	}
	return tx.Commit(ctx)
}

// TransferTx checks everything before touching a balance, so a failure leaves
// nothing to undo.
func (l *TokenLedger) TransferTx(tx *LedgerTx, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%s transfer: %w: amount must be positive", l.name, models.ErrInvalidAmount)
	}
	if identity.IsZero(to) || from == "" {
		return fmt.Errorf("%s transfer: %w: invalid counterparty", l.name, models.ErrInvalidAmount)
	}

	fromBal := l.balances[from]
	if fromBal < amount {
		return fmt.Errorf("%s transfer: %w: have %d, need %d", l.name, models.ErrInsufficientBalance, fromBal, amount)
	}
	if from == to {
		return nil
	}

	toBal := l.balances[to]
	if toBal > math.MaxInt64-amount {
		return fmt.Errorf("%s transfer: %w: balance overflow", l.name, models.ErrInvalidAmount)
	}

	l.setBalance(tx, from, fromBal-amount)
	l.setBalance(tx, to, toBal+amount)
	l.appendEntry(tx, from, -amount, EntryDebit, fromBal-amount)
	l.appendEntry(tx, to, amount, EntryCredit, toBal+amount)
	return nil
}

// MintTx creates supply. Authorization is the caller's responsibility.
func (l *TokenLedger) MintTx(tx *LedgerTx, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%s mint: %w: amount must be positive", l.name, models.ErrInvalidAmount)
	}
	if identity.IsZero(to) {
		return fmt.Errorf("%s mint: %w: invalid recipient", l.name, models.ErrInvalidAmount)
	}
	if l.totalMinted > math.MaxInt64-amount {
		return fmt.Errorf("%s mint: %w: supply overflow", l.name, models.ErrInvalidAmount)
	}

	bal := l.balances[to]
	minted := l.totalMinted
	l.totalMinted += amount
	tx.OnRollback(func() { l.totalMinted = minted })
	l.setBalance(tx, to, bal+amount)
	l.appendEntry(tx, to, amount, EntryMint, bal+amount)
	return nil
}

// BurnTx destroys supply held by from.
func (l *TokenLedger) BurnTx(tx *LedgerTx, from string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%s burn: %w: amount must be positive", l.name, models.ErrInvalidAmount)
	}
	bal := l.balances[from]
	if bal < amount {
		return fmt.Errorf("%s burn: %w: have %d, need %d", l.name, models.ErrInsufficientBalance, bal, amount)
	}

	burned := l.totalBurned
	l.totalBurned += amount
	tx.OnRollback(func() { l.totalBurned = burned })
	l.setBalance(tx, from, bal-amount)
	l.appendEntry(tx, from, -amount, EntryBurn, bal-amount)
	return nil
}

func (l *TokenLedger) AddIssuer(ctx context.Context, caller, issuer string) error {
	return l.setIssuer(ctx, caller, issuer, true)
}

func (l *TokenLedger) RemoveIssuer(ctx context.Context, caller, issuer string) error {
	return l.setIssuer(ctx, caller, issuer, false)
}

func (l *TokenLedger) setIssuer(ctx context.Context, caller, issuer string, add bool) error {
	tx := l.store.Begin()
	defer tx.Rollback()

	if caller != l.admin {
		return fmt.Errorf("%s issuers: %w: %s is not the admin", l.name, models.ErrUnauthorized, caller)
	}
	if issuer == "" {
		return fmt.Errorf("%s issuers: %w", l.name, models.ErrInvalidAddress)
	}

	if !l.setIssuerTx(tx, issuer, add) {
		return tx.Commit(ctx)
	}
	tx.Emit(models.IssuerChangedEvent{Ledger: l.name, Identity: issuer, Admin: caller, Added: add, At: tx.Now()})

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	l.log.Info("issuer updated", zap.String("issuer", issuer), zap.Bool("added", add))
	return nil
}

// setIssuerTx reports whether the issuer set changed.
func (l *TokenLedger) setIssuerTx(tx *LedgerTx, issuer string, add bool) bool {
	was := l.issuers[issuer]
	if was == add {
		return false
	}
	if add {
		l.issuers[issuer] = true
	} else {
		delete(l.issuers, issuer)
	}
	tx.OnRollback(func() {
		if was {
			l.issuers[issuer] = true
		} else {
			delete(l.issuers, issuer)
		}
	})
	return true
}

// ReplayTx reapplies transfer and issuer events recorded for this ledger.
// A transfer from the zero address is a mint.
func (l *TokenLedger) ReplayTx(tx *LedgerTx, ev models.Event) (bool, error) {
	switch e := ev.(type) {
	case models.TransferEvent:
		if e.Ledger != l.name {
			return false, nil
		}
		if identity.IsZero(e.From) {
			return true, l.MintTx(tx, e.To, e.Amount)
		}
		return true, l.TransferTx(tx, e.From, e.To, e.Amount)
	case models.IssuerChangedEvent:
		if e.Ledger != l.name {
			return false, nil
		}
		l.setIssuerTx(tx, e.Identity, e.Added)
		return true, nil
	}
	return false, nil
}

// checkBalanceAfter compares a replayed balance with the one journaled.
func checkBalanceAfter(l *TokenLedger, account string, want int64) error {
	if got := l.balances[account]; got != want {
		return fmt.Errorf("%s: %s balance %d after replay, journaled %d", l.name, account, got, want)
	}
	return nil
}

func (l *TokenLedger) setBalance(tx *LedgerTx, account string, balance int64) {
	prev, existed := l.balances[account]
	l.balances[account] = balance
	tx.OnRollback(func() {
		if existed {
			l.balances[account] = prev
		} else {
			delete(l.balances, account)
		}
	})
}

func (l *TokenLedger) appendEntry(tx *LedgerTx, account string, amount int64, entryType string, balance int64) {
	n := len(l.entries)
	l.entries = append(l.entries, models.LedgerEntry{
		Ledger:    l.name,
		AccountID: account,
		Amount:    amount,
		EntryType: entryType,
		Balance:   balance,
		CreatedAt: tx.Now(),
	})
	tx.OnRollback(func() { l.entries = l.entries[:n] })
}
