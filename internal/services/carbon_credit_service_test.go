package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/powerchain/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCarbonCreditService_IssueForEnergy(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)

	tests := []struct {
		name       string
		kwh        string
		energyType models.EnergyType
		want       int64
	}{
		{"solar", "100", models.EnergySolar, 5000},
		{"wind", "100", models.EnergyWind, 4000},
		{"storage", "12.345", models.EnergyStorage, 370},
		{"grid earns nothing", "100", models.EnergyGrid, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := m.carbon.BalanceOf(alice)
			got, err := m.carbon.IssueForEnergy(ctx, testTrading, alice, dec(tt.kwh), tt.energyType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, before+tt.want, m.carbon.BalanceOf(alice))
		})
	}

	stats := m.carbon.GetCarbonStats(alice)
	assert.Equal(t, int64(9370), stats.TotalEarned)
	assert.Equal(t, int64(9370), stats.CurrentBalance)
	assert.Equal(t, 3, stats.RecordCount, "zero issuance leaves no record")

	t.Run("non-issuer rejected", func(t *testing.T) {
		_, err := m.carbon.IssueForEnergy(ctx, alice, alice, dec("100"), models.EnergySolar)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
		assert.Equal(t, int64(9370), m.carbon.BalanceOf(alice))
	})

	t.Run("unknown energy type", func(t *testing.T) {
		_, err := m.carbon.IssueForEnergy(ctx, testTrading, alice, dec("1"), models.EnergyType("coal"))
		assert.ErrorIs(t, err, models.ErrInvalidEnergyType)
	})
}

func TestCarbonCreditService_Redeem(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	_, err := m.carbon.IssueForEnergy(ctx, testTrading, bob, dec("200"), models.EnergySolar)
	require.NoError(t, err)

	require.NoError(t, m.carbon.Redeem(ctx, bob, 4000, "offset Q1 emissions"))
	stats := m.carbon.GetCarbonStats(bob)
	assert.Equal(t, int64(10000), stats.TotalEarned)
	assert.Equal(t, int64(4000), stats.TotalRedeemed)
	assert.Equal(t, int64(6000), stats.CurrentBalance)
	assert.Equal(t, int64(6000), m.carbon.TotalSupply())

	err = m.carbon.Redeem(ctx, bob, 6001, "too much")
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)
	assert.Equal(t, int64(4000), m.carbon.GetCarbonStats(bob).TotalRedeemed)

	assert.Contains(t, m.recorder.Kinds(), models.KindCarbonRedeemed)
	assertConserved(t, m.carbon.Ledger())
}

func TestCarbonCreditService_SetRate(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)

	require.NoError(t, m.carbon.SetRate(ctx, testAdmin, models.EnergyGrid, dec("0.01")))
	assert.True(t, dec("0.01").Equal(m.carbon.Rate(models.EnergyGrid)))

	got, err := m.carbon.IssueForEnergy(ctx, testTrading, carol, dec("100"), models.EnergyGrid)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got)

	assert.ErrorIs(t, m.carbon.SetRate(ctx, alice, models.EnergyGrid, decimal.Zero), models.ErrUnauthorized)
	assert.ErrorIs(t, m.carbon.SetRate(ctx, testAdmin, models.EnergyGrid, dec("-1")), models.ErrInvalidAmount)
	assert.ErrorIs(t, m.carbon.SetRate(ctx, testAdmin, models.EnergyGrid, dec("1e20000000")), models.ErrInvalidAmount)
	assert.ErrorIs(t, m.carbon.SetRate(ctx, testAdmin, models.EnergyGrid, dec("1e-20000000")), models.ErrInvalidAmount)
	assert.True(t, dec("0.01").Equal(m.carbon.Rate(models.EnergyGrid)))
}

func TestCarbonCreditService_SetRate_Emits(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	before := len(m.recorder.Events())

	require.NoError(t, m.carbon.SetRate(ctx, testAdmin, models.EnergyWind, dec("0.06")))

	events := m.recorder.Events()
	require.Len(t, events, before+1)
	ev, ok := events[before].(models.CarbonRateUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, models.EnergyWind, ev.EnergyType)
	assert.True(t, dec("0.04").Equal(ev.OldRate))
	assert.True(t, dec("0.06").Equal(ev.NewRate))
	assert.Equal(t, testAdmin, ev.UpdatedBy)
	assert.Equal(t, m.clock.Now(), ev.At)

	assert.Error(t, m.carbon.SetRate(ctx, alice, models.EnergyWind, dec("1")))
	assert.Len(t, m.recorder.Events(), before+1)
}

func TestCarbonCreditService_SetRate_JournalFailure(t *testing.T) {
	journal := &MockJournal{}
	journal.On("Append", mock.Anything, mock.Anything).Return(errors.New("journal offline"))
	failing := NewLedgerStore(WithJournal(journal))
	carbon, err := NewCarbonCreditService(failing, CarbonCreditConfig{Admin: testAdmin})
	require.NoError(t, err)

	err = carbon.SetRate(context.Background(), testAdmin, models.EnergySolar, dec("0.5"))
	assert.ErrorContains(t, err, "journal offline")
	assert.True(t, dec("0.05").Equal(carbon.Rate(models.EnergySolar)))
}

func TestCarbonCreditService_History(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)

	_, err := m.carbon.IssueForEnergy(ctx, testTrading, alice, dec("10"), models.EnergyWind)
	require.NoError(t, err)
	m.clock.Advance(time.Hour)
	_, err = m.carbon.IssueForEnergy(ctx, testTrading, alice, dec("20"), models.EnergySolar)
	require.NoError(t, err)

	history := m.carbon.History(alice)
	require.Len(t, history, 2)
	assert.Equal(t, models.EnergyWind, history[0].EnergyType)
	assert.Equal(t, int64(400), history[0].Amount)
	assert.Equal(t, models.EnergySolar, history[1].EnergyType)
	assert.True(t, history[1].Timestamp.After(history[0].Timestamp))

	assert.Empty(t, m.carbon.History(bob))
}

func TestNewCarbonCreditService_RejectsBadRates(t *testing.T) {
	store := NewLedgerStore()
	_, err := NewCarbonCreditService(store, CarbonCreditConfig{
		Admin: testAdmin,
		Rates: map[models.EnergyType]decimal.Decimal{"coal": dec("1")},
	})
	assert.ErrorIs(t, err, models.ErrInvalidEnergyType)

	_, err = NewCarbonCreditService(store, CarbonCreditConfig{
		Admin: testAdmin,
		Rates: map[models.EnergyType]decimal.Decimal{models.EnergySolar: dec("-0.1")},
	})
	assert.Error(t, err)
}
