package services

import (
	"context"
	"testing"

	"github.com/powerchain/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyCreditService_InitialSupply(t *testing.T) {
	store := NewLedgerStore()
	svc, err := NewEnergyCreditService(store, EnergyCreditConfig{
		Admin:         testAdmin,
		CreditsPerKWh: DefaultCreditsPerKWh,
		InitialSupply: 1_000_000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1_000_000), svc.BalanceOf(testAdmin))
	assert.Equal(t, int64(1_000_000), svc.TotalSupply())

	_, err = NewEnergyCreditService(store, EnergyCreditConfig{Admin: testAdmin})
	assert.Error(t, err, "credits per kWh is required")
}

func TestEnergyCreditService_Issue(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)

	t.Run("issuer mints at the configured rate", func(t *testing.T) {
		credits, err := m.energy.Issue(ctx, testOracle, alice, dec("1000"), "solar array")
		require.NoError(t, err)

		assert.Equal(t, int64(100_000), credits)
		assert.Equal(t, int64(100_000), m.energy.BalanceOf(alice))
		assert.True(t, dec("1000").Equal(m.energy.GetEnergyBalance(alice)))

		issuances := m.energy.Issuances(alice)
		require.Len(t, issuances, 1)
		assert.Equal(t, testOracle, issuances[0].Issuer)
		assert.Equal(t, "solar array", issuances[0].Reason)
		assert.Contains(t, m.recorder.Kinds(), models.KindEnergyIssued)
	})

	t.Run("fractional kWh rounds down", func(t *testing.T) {
		credits, err := m.energy.Issue(ctx, testOracle, bob, dec("0.019"), "trickle")
		require.NoError(t, err)
		assert.Equal(t, int64(1), credits)
		assert.True(t, dec("0.019").Equal(m.energy.GetEnergyBalance(bob)))
	})

	t.Run("non-issuer is unauthorized and supply is unchanged", func(t *testing.T) {
		supply := m.energy.TotalSupply()
		events := len(m.recorder.Events())

		_, err := m.energy.Issue(ctx, carol, carol, dec("50"), "self-issued")
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		assert.Equal(t, supply, m.energy.TotalSupply())
		assert.Equal(t, int64(0), m.energy.BalanceOf(carol))
		assert.Empty(t, m.energy.Issuances(carol))
		assert.Len(t, m.recorder.Events(), events)
	})

	t.Run("invalid amounts", func(t *testing.T) {
		for _, amount := range []string{"0", "-3", "1.0005", "0.001"} {
			_, err := m.energy.Issue(ctx, testOracle, alice, dec(amount), "bad")
			assert.ErrorIs(t, err, models.ErrInvalidAmount, amount)
		}
	})

	t.Run("removed issuer loses the right", func(t *testing.T) {
		require.NoError(t, m.energy.RemoveIssuer(ctx, testAdmin, testOracle))
		_, err := m.energy.Issue(ctx, testOracle, alice, dec("1"), "late")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})
}

func TestEnergyCreditService_Transfer(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	m.fund(t, alice, "10")

	require.NoError(t, m.energy.Transfer(ctx, alice, bob, 250))
	assert.Equal(t, int64(750), m.energy.BalanceOf(alice))
	assert.Equal(t, int64(250), m.energy.BalanceOf(bob))

	assert.ErrorIs(t, m.energy.Transfer(ctx, bob, alice, 251), models.ErrInsufficientBalance)
	assertConserved(t, m.energy.Ledger())
}
