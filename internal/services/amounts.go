package services

import (
	"fmt"

	"github.com/powerchain/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Decimal inputs are bounded before any comparison, since comparing or
// truncating rescales both operands to a common exponent.
const (
	maxFractionDigits = 18
	maxIntegerDigits  = 12
)

var (
	// maxEnergyAmount is the largest kWh quantity a single request may carry.
	maxEnergyAmount = decimal.New(1, 9)
	// maxPrice caps prices and carbon rates so energy × price fits in int64.
	maxPrice = decimal.New(1, 9)
)

// checkDecimalBounds rejects values with too many fractional digits or too
// large a magnitude. It only reads the coefficient and exponent.
func checkDecimalBounds(d decimal.Decimal) error {
	if d.Exponent() < -maxFractionDigits {
		return fmt.Errorf("%w: more than %d decimal places", models.ErrInvalidAmount, maxFractionDigits)
	}
	if int64(d.NumDigits())+int64(d.Exponent()) > maxIntegerDigits {
		return fmt.Errorf("%w: value out of range", models.ErrInvalidAmount)
	}
	return nil
}

func checkEnergyAmount(amount decimal.Decimal) error {
	if err := checkDecimalBounds(amount); err != nil {
		return fmt.Errorf("energy amount: %w", err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: energy amount must be positive", models.ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(energyScale)) {
		return fmt.Errorf("%w: energy amount %s exceeds %d decimal places", models.ErrInvalidAmount, amount, energyScale)
	}
	if amount.GreaterThan(maxEnergyAmount) {
		return fmt.Errorf("%w: energy amount %s exceeds %s kWh", models.ErrInvalidAmount, amount, maxEnergyAmount)
	}
	return nil
}

func checkPrice(price decimal.Decimal) error {
	if err := checkDecimalBounds(price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", models.ErrInvalidAmount)
	}
	if !price.Equal(price.Truncate(priceScale)) {
		return fmt.Errorf("%w: price %s exceeds %d decimal places", models.ErrInvalidAmount, price, priceScale)
	}
	if price.GreaterThan(maxPrice) {
		return fmt.Errorf("%w: price %s exceeds %s", models.ErrInvalidAmount, price, maxPrice)
	}
	return nil
}

func checkRate(rate decimal.Decimal) error {
	if err := checkDecimalBounds(rate); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("%w: negative rate", models.ErrInvalidAmount)
	}
	if rate.GreaterThan(maxPrice) {
		return fmt.Errorf("%w: rate %s exceeds %s", models.ErrInvalidAmount, rate, maxPrice)
	}
	return nil
}

// validDecimalInput backs the positive_decimal validation tag.
func validDecimalInput(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && checkDecimalBounds(d) == nil && d.IsPositive()
}
