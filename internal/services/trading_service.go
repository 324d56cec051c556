package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/powerchain/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	priceScale        = 6
	maxLocationLength = 120 // characters
	// maxOfferLifetimeHours bounds expiry even when no MaxExpiryHours is
	// configured, keeping ExpiresAt far from time.Duration overflow.
	maxOfferLifetimeHours = 10 * 365 * 24
)

type TradingConfig struct {
	// Identity is the trading ledger's own account; it must be a carbon
	// credit issuer for settlements to succeed.
	Identity       string
	Admin          string
	DefaultPrices  map[models.EnergyType]decimal.Decimal
	MaxExpiryHours int
}

// DefaultMarketPrices are the reference prices before any update.
func DefaultMarketPrices() map[models.EnergyType]decimal.Decimal {
	return map[models.EnergyType]decimal.Decimal{
		models.EnergySolar:   decimal.RequireFromString("0.19"),
		models.EnergyWind:    decimal.RequireFromString("0.18"),
		models.EnergyStorage: decimal.RequireFromString("0.24"),
		models.EnergyGrid:    decimal.RequireFromString("0.16"),
	}
}

type CreateOfferRequest struct {
	EnergyAmount   decimal.Decimal
	PricePerKWh    decimal.Decimal
	EnergyType     models.EnergyType
	Location       string
	ExpiresInHours int
}

// TradingService is the order book: it lists offers and settles purchases
// against a specific offer, paying through the energy ledger and issuing
// carbon credits through the carbon ledger.
type TradingService struct {
	store  *LedgerStore
	energy *EnergyCreditService
	carbon *CarbonCreditService
	log    *zap.Logger

	identity       string
	admin          string
	maxExpiryHours int

	offers      map[uint64]*models.Offer
	offerOrder  []uint64
	nextOfferID uint64
	trades      []models.Trade

	activeOffers      int
	totalTransactions uint64
	totalVolume       decimal.Decimal
	prices            map[models.EnergyType]models.MarketPrice
}

func NewTradingService(store *LedgerStore, energy *EnergyCreditService, carbon *CarbonCreditService, cfg TradingConfig) (*TradingService, error) {
	if cfg.Identity == "" {
		return nil, fmt.Errorf("trading: identity is required")
	}
	prices := make(map[models.EnergyType]models.MarketPrice)
	for t, p := range DefaultMarketPrices() {
		prices[t] = models.MarketPrice{EnergyType: t, Price: p}
	}
	for t, p := range cfg.DefaultPrices {
		if !t.Valid() {
			return nil, fmt.Errorf("trading: %w: %q", models.ErrInvalidEnergyType, t)
		}
		prices[t] = models.MarketPrice{EnergyType: t, Price: p}
	}

	return &TradingService{
		store:          store,
		energy:         energy,
		carbon:         carbon,
		log:            store.Logger("trading"),
		identity:       cfg.Identity,
		admin:          cfg.Admin,
		maxExpiryHours: cfg.MaxExpiryHours,
		offers:         make(map[uint64]*models.Offer),
		nextOfferID:    1,
		prices:         prices,
	}, nil
}

// Identity is the account the trading ledger acts as on the other ledgers.
func (s *TradingService) Identity() string {
	return s.identity
}

// CreateOffer records a listing. Nothing is escrowed; the seller's backing is
// attested off-ledger.
func (s *TradingService) CreateOffer(ctx context.Context, seller string, req CreateOfferRequest) (uint64, error) {
	if seller == "" {
		return 0, fmt.Errorf("create offer: %w", models.ErrInvalidAddress)
	}
	if err := checkEnergyAmount(req.EnergyAmount); err != nil {
		return 0, fmt.Errorf("create offer: %w", err)
	}
	if err := checkPrice(req.PricePerKWh); err != nil {
		return 0, fmt.Errorf("create offer: %w", err)
	}
	if !req.EnergyType.Valid() {
		return 0, fmt.Errorf("create offer: %w: %q", models.ErrInvalidEnergyType, req.EnergyType)
	}
	if req.ExpiresInHours <= 0 || req.ExpiresInHours > s.expiryLimit() {
		return 0, fmt.Errorf("create offer: %w: expiry of %d hours", models.ErrInvalidAmount, req.ExpiresInHours)
	}
	location := truncateRunes(strings.TrimSpace(req.Location), maxLocationLength)

	tx := s.store.Begin()
	defer tx.Rollback()

	id := s.nextOfferID
	now := tx.Now()
	offer := &models.Offer{
		ID:           id,
		Seller:       seller,
		EnergyAmount: req.EnergyAmount,
		Remaining:    req.EnergyAmount,
		PricePerKWh:  req.PricePerKWh,
		EnergyType:   req.EnergyType,
		Location:     location,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(req.ExpiresInHours) * time.Hour),
		Active:       true,
	}

	s.addOfferTx(tx, offer)

	tx.Emit(models.OfferCreatedEvent{
		OfferID:      id,
		Seller:       seller,
		EnergyAmount: offer.EnergyAmount,
		PricePerKWh:  offer.PricePerKWh,
		EnergyType:   offer.EnergyType,
		Location:     offer.Location,
		ExpiresAt:    offer.ExpiresAt,
		At:           now,
	})
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	s.log.Info("offer created",
		zap.Uint64("offer_id", id), zap.String("seller", seller),
		zap.String("kwh", req.EnergyAmount.String()), zap.String("price", req.PricePerKWh.String()),
		zap.Stringer("type", req.EnergyType))
	return id, nil
}

// PurchaseEnergy settles energyAmount kWh of offerID to buyer. Every step
// runs in one ledger transaction: a failure at any point leaves balances,
// the offer and the carbon ledger untouched. The one exception is detecting
// expiry, which deactivates the offer before OfferExpired is returned.
func (s *TradingService) PurchaseEnergy(ctx context.Context, buyer string, offerID uint64, energyAmount decimal.Decimal) (uint64, error) {
	if buyer == "" {
		return 0, fmt.Errorf("purchase energy: %w", models.ErrInvalidAddress)
	}
	if err := checkEnergyAmount(energyAmount); err != nil {
		return 0, fmt.Errorf("purchase energy: %w", err)
	}

	tx := s.store.Begin()
	defer tx.Rollback()
	now := tx.Now()

	offer, ok := s.offers[offerID]
	if !ok {
		return 0, fmt.Errorf("purchase energy: %w: %d", models.ErrOfferNotFound, offerID)
	}
	if !offer.Active {
		return 0, fmt.Errorf("purchase energy: %w: %d", models.ErrOfferInactive, offerID)
	}
	if !now.Before(offer.ExpiresAt) {
		s.closeOfferTx(tx, offer, models.OfferExpired)
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		s.log.Info("offer expired on purchase attempt", zap.Uint64("offer_id", offerID))
		return 0, fmt.Errorf("purchase energy: %w: %d", models.ErrOfferExpired, offerID)
	}
	if offer.Seller == buyer {
		return 0, fmt.Errorf("purchase energy: %w", models.ErrSelfTrade)
	}
	if energyAmount.GreaterThan(offer.Remaining) {
		return 0, fmt.Errorf("purchase energy: %w: want %s kWh, %s remaining",
			models.ErrInsufficientOfferQuantity, energyAmount, offer.Remaining)
	}

	totalCost, err := tradeCost(energyAmount, offer.PricePerKWh)
	if err != nil {
		return 0, fmt.Errorf("purchase energy: %w", err)
	}

	if err := s.energy.ledger.TransferTx(tx, buyer, offer.Seller, totalCost); err != nil {
		if errors.Is(err, models.ErrInsufficientBalance) {
			return 0, fmt.Errorf("purchase energy: %w: %w", models.ErrPaymentFailed, err)
		}
		return 0, fmt.Errorf("purchase energy: %w", err)
	}

	remainingBefore := s.fillOfferTx(tx, offer, energyAmount)

	carbonIssued, err := s.carbon.issueForEnergyTx(tx, s.identity, buyer, energyAmount, offer.EnergyType)
	if err != nil {
		return 0, fmt.Errorf("purchase energy: %w", err)
	}

	trade := models.Trade{
		ID:           uint64(len(s.trades)) + 1,
		OfferID:      offer.ID,
		Buyer:        buyer,
		Seller:       offer.Seller,
		EnergyType:   offer.EnergyType,
		EnergyAmount: energyAmount,
		PricePerKWh:  offer.PricePerKWh,
		TotalCost:    totalCost,
		CarbonIssued: carbonIssued,
		SettledAt:    now,
	}
	s.recordTradeTx(tx, trade)
	tradeID := trade.ID

	tx.Emit(models.PurchaseSettledEvent{
		TradeID:         tradeID,
		OfferID:         offer.ID,
		Buyer:           buyer,
		Seller:          offer.Seller,
		EnergyAmount:    energyAmount,
		PricePerKWh:     offer.PricePerKWh,
		TotalCost:       totalCost,
		CarbonIssued:    carbonIssued,
		RemainingBefore: remainingBefore,
		RemainingAfter:  offer.Remaining,
		OfferActive:     offer.Active,
		At:              now,
	})
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	s.log.Info("purchase settled",
		zap.Uint64("trade_id", tradeID), zap.Uint64("offer_id", offerID),
		zap.String("buyer", buyer), zap.String("seller", trade.Seller),
		zap.String("kwh", energyAmount.String()), zap.Int64("cost", totalCost),
		zap.Int64("carbon", carbonIssued))
	return tradeID, nil
}

// CancelOffer deactivates an open offer. Only its seller may cancel.
func (s *TradingService) CancelOffer(ctx context.Context, caller string, offerID uint64) error {
	tx := s.store.Begin()
	defer tx.Rollback()

	offer, ok := s.offers[offerID]
	if !ok {
		return fmt.Errorf("cancel offer: %w: %d", models.ErrOfferNotFound, offerID)
	}
	if offer.Seller != caller {
		return fmt.Errorf("cancel offer: %w: not the seller", models.ErrUnauthorized)
	}
	if !offer.Active {
		return fmt.Errorf("cancel offer: %w: %d", models.ErrOfferInactive, offerID)
	}

	s.closeOfferTx(tx, offer, models.OfferCancelled)
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("offer cancelled", zap.Uint64("offer_id", offerID))
	return nil
}

func (s *TradingService) closeOfferTx(tx *LedgerTx, offer *models.Offer, reason models.OfferCloseReason) {
	s.deactivateOfferTx(tx, offer, reason)
	tx.Emit(models.OfferClosedEvent{
		OfferID:   offer.ID,
		Seller:    offer.Seller,
		Reason:    reason,
		Remaining: offer.Remaining,
		At:        tx.Now(),
	})
}

// GetActiveOffers lists matchable offer ids of energyType, oldest first. An
// empty type lists every type. Expired offers are skipped but not closed.
func (s *TradingService) GetActiveOffers(energyType models.EnergyType) []uint64 {
	ids := []uint64{}
	s.store.View(func(now time.Time) {
		for _, id := range s.offerOrder {
			o := s.offers[id]
			if energyType != "" && o.EnergyType != energyType {
				continue
			}
			if o.Matchable(now) {
				ids = append(ids, id)
			}
		}
	})
	return ids
}

func (s *TradingService) GetOffer(offerID uint64) (models.Offer, error) {
	var (
		offer models.Offer
		found bool
	)
	s.store.View(func(time.Time) {
		if o, ok := s.offers[offerID]; ok {
			offer, found = *o, true
		}
	})
	if !found {
		return models.Offer{}, fmt.Errorf("%w: %d", models.ErrOfferNotFound, offerID)
	}
	return offer, nil
}

func (s *TradingService) GetTrade(tradeID uint64) (models.Trade, error) {
	var (
		trade models.Trade
		found bool
	)
	s.store.View(func(time.Time) {
		if tradeID >= 1 && tradeID <= uint64(len(s.trades)) {
			trade, found = s.trades[tradeID-1], true
		}
	})
	if !found {
		return models.Trade{}, fmt.Errorf("%w: %d", models.ErrTradeNotFound, tradeID)
	}
	return trade, nil
}

// TradesByAccount returns trades where account bought or sold, oldest first.
func (s *TradingService) TradesByAccount(account string) []models.Trade {
	out := []models.Trade{}
	s.store.View(func(time.Time) {
		for _, t := range s.trades {
			if t.Buyer == account || t.Seller == account {
				out = append(out, t)
			}
		}
	})
	return out
}

// GetMarketStats reads the running counters; no scan is involved.
func (s *TradingService) GetMarketStats() models.MarketStats {
	var stats models.MarketStats
	s.store.View(func(time.Time) {
		stats = models.MarketStats{
			ActiveOffers:      s.activeOffers,
			TotalTransactions: s.totalTransactions,
			TotalVolume:       s.totalVolume,
		}
	})
	return stats
}

func (s *TradingService) GetMarketPrice(energyType models.EnergyType) (models.MarketPrice, error) {
	var (
		price models.MarketPrice
		found bool
	)
	s.store.View(func(time.Time) { price, found = s.prices[energyType] })
	if !found {
		return models.MarketPrice{}, fmt.Errorf("%w: %q", models.ErrInvalidEnergyType, energyType)
	}
	return price, nil
}

// SetMarketPrice updates the advisory price. The admin or any energy credit
// issuer, acting as a price oracle, may set it.
func (s *TradingService) SetMarketPrice(ctx context.Context, caller string, energyType models.EnergyType, price decimal.Decimal) error {
	if err := checkPrice(price); err != nil {
		return fmt.Errorf("set market price: %w", err)
	}

	tx := s.store.Begin()
	defer tx.Rollback()

	if caller != s.admin && !s.energy.ledger.isIssuerTx(caller) {
		return fmt.Errorf("set market price: %w", models.ErrUnauthorized)
	}
	prev, ok := s.prices[energyType]
	if !ok {
		return fmt.Errorf("set market price: %w: %q", models.ErrInvalidEnergyType, energyType)
	}
	s.setPriceTx(tx, energyType, price)

	tx.Emit(models.MarketPriceUpdatedEvent{
		EnergyType: energyType,
		OldPrice:   prev.Price,
		NewPrice:   price,
		UpdatedBy:  caller,
		At:         tx.Now(),
	})
	return tx.Commit(ctx)
}

// tradeCost is floor(energy × price) in credit base units.
func tradeCost(energyAmount, pricePerKWh decimal.Decimal) (int64, error) {
	cost := energyAmount.Mul(pricePerKWh).Floor()
	if cost.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: cost overflow", models.ErrInvalidAmount)
	}
	if !cost.IsPositive() {
		return 0, fmt.Errorf("%w: purchase too small to cost a credit unit", models.ErrInvalidAmount)
	}
	return cost.IntPart(), nil
}

func (s *TradingService) expiryLimit() int {
	if s.maxExpiryHours > 0 && s.maxExpiryHours < maxOfferLifetimeHours {
		return s.maxExpiryHours
	}
	return maxOfferLifetimeHours
}

// truncateRunes cuts str to at most n characters without splitting one.
func truncateRunes(str string, n int) string {
	if utf8.RuneCountInString(str) <= n {
		return str
	}
	return string([]rune(str)[:n])
}

func (s *TradingService) addOfferTx(tx *LedgerTx, offer *models.Offer) {
	next := s.nextOfferID
	s.nextOfferID = offer.ID + 1
	s.offers[offer.ID] = offer
	s.offerOrder = append(s.offerOrder, offer.ID)
	s.activeOffers++
	tx.OnRollback(func() {
		s.nextOfferID = next
		delete(s.offers, offer.ID)
		s.offerOrder = s.offerOrder[:len(s.offerOrder)-1]
		s.activeOffers--
	})
}

func (s *TradingService) deactivateOfferTx(tx *LedgerTx, offer *models.Offer, reason models.OfferCloseReason) {
	offer.Active = false
	offer.CloseReason = reason
	s.activeOffers--
	tx.OnRollback(func() {
		offer.Active = true
		offer.CloseReason = models.OfferOpen
		s.activeOffers++
	})
}

// fillOfferTx takes energyAmount off the offer, closing it as filled at zero.
// It returns the quantity remaining beforehand.
func (s *TradingService) fillOfferTx(tx *LedgerTx, offer *models.Offer, energyAmount decimal.Decimal) decimal.Decimal {
	remainingBefore, wasActive := offer.Remaining, offer.Active
	offer.Remaining = offer.Remaining.Sub(energyAmount)
	if !offer.Remaining.IsPositive() {
		offer.Remaining = decimal.Zero
		offer.Active = false
		offer.CloseReason = models.OfferFilled
		s.activeOffers--
	}
	tx.OnRollback(func() {
		if wasActive && !offer.Active {
			s.activeOffers++
		}
		offer.Remaining = remainingBefore
		offer.Active = wasActive
		offer.CloseReason = models.OfferOpen
	})
	return remainingBefore
}

func (s *TradingService) recordTradeTx(tx *LedgerTx, trade models.Trade) {
	n, volume := len(s.trades), s.totalVolume
	s.trades = append(s.trades, trade)
	s.totalTransactions++
	s.totalVolume = s.totalVolume.Add(trade.EnergyAmount)
	tx.OnRollback(func() {
		s.trades = s.trades[:n]
		s.totalTransactions--
		s.totalVolume = volume
	})
}

func (s *TradingService) setPriceTx(tx *LedgerTx, energyType models.EnergyType, price decimal.Decimal) {
	prev := s.prices[energyType]
	s.prices[energyType] = models.MarketPrice{EnergyType: energyType, Price: price, UpdatedAt: tx.Now()}
	tx.OnRollback(func() { s.prices[energyType] = prev })
}

// ReplayTx reapplies a journaled order book event. Carbon issued by a
// purchase is replayed by the carbon ledger from its own event.
func (s *TradingService) ReplayTx(tx *LedgerTx, ev models.Event) (bool, error) {
	switch e := ev.(type) {
	case models.OfferCreatedEvent:
		if _, exists := s.offers[e.OfferID]; exists || e.OfferID < s.nextOfferID {
			return true, fmt.Errorf("offer %d replayed out of order", e.OfferID)
		}
		s.addOfferTx(tx, &models.Offer{
			ID:           e.OfferID,
			Seller:       e.Seller,
			EnergyAmount: e.EnergyAmount,
			Remaining:    e.EnergyAmount,
			PricePerKWh:  e.PricePerKWh,
			EnergyType:   e.EnergyType,
			Location:     e.Location,
			CreatedAt:    e.At,
			ExpiresAt:    e.ExpiresAt,
			Active:       true,
		})
		return true, nil
	case models.OfferClosedEvent:
		offer, ok := s.offers[e.OfferID]
		if !ok || !offer.Active {
			return true, fmt.Errorf("close of offer %d: %w", e.OfferID, models.ErrOfferInactive)
		}
		s.deactivateOfferTx(tx, offer, e.Reason)
		return true, nil
	case models.PurchaseSettledEvent:
		offer, ok := s.offers[e.OfferID]
		if !ok || !offer.Active {
			return true, fmt.Errorf("purchase on offer %d: %w", e.OfferID, models.ErrOfferInactive)
		}
		if want := uint64(len(s.trades)) + 1; e.TradeID != want {
			return true, fmt.Errorf("trade %d replayed out of order, expected %d", e.TradeID, want)
		}
		if err := s.energy.ledger.TransferTx(tx, e.Buyer, e.Seller, e.TotalCost); err != nil {
			return true, err
		}
		s.fillOfferTx(tx, offer, e.EnergyAmount)
		if !offer.Remaining.Equal(e.RemainingAfter) || offer.Active != e.OfferActive {
			return true, fmt.Errorf("offer %d: replayed remaining %s, journaled %s", e.OfferID, offer.Remaining, e.RemainingAfter)
		}
		s.recordTradeTx(tx, models.Trade{
			ID:           e.TradeID,
			OfferID:      e.OfferID,
			Buyer:        e.Buyer,
			Seller:       e.Seller,
			EnergyType:   offer.EnergyType,
			EnergyAmount: e.EnergyAmount,
			PricePerKWh:  e.PricePerKWh,
			TotalCost:    e.TotalCost,
			CarbonIssued: e.CarbonIssued,
			SettledAt:    e.At,
		})
		return true, nil
	case models.MarketPriceUpdatedEvent:
		s.setPriceTx(tx, e.EnergyType, e.NewPrice)
		return true, nil
	}
	return false, nil
}
