package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/powerchain/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journalRoundTrip encodes events the way the journal stores them and
// decodes them again.
func journalRoundTrip(t *testing.T, events []models.Event) []models.Event {
	t.Helper()
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(models.Wrap(ev).Payload)
		require.NoError(t, err)
		decoded, err := models.DecodeEvent(ev.Kind(), payload)
		require.NoError(t, err)
		out = append(out, decoded)
	}
	return out
}

func assertSameJSON(t *testing.T, want, got any, msg string) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g), msg)
}

func (m *testMarket) restoreFrom(t *testing.T, src *testMarket) {
	t.Helper()
	events := journalRoundTrip(t, src.recorder.Events())
	require.NoError(t, m.store.Restore(events, m.energy, m.carbon, m.trading, m.gov))
	m.clock.mu.Lock()
	m.clock.now = src.clock.Now()
	m.clock.mu.Unlock()
}

func TestLedgerStore_Restore(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	m.fund(t, alice, "500")
	m.fund(t, bob, "300")

	solar := m.offer(t, alice, "100", "0.2", models.EnergySolar, 24)
	wind := m.offer(t, alice, "50", "0.3", models.EnergyWind, 24)
	grid := m.offer(t, bob, "10", "0.5", models.EnergyGrid, 1)

	m.clock.Advance(30 * time.Minute)
	_, err := m.trading.PurchaseEnergy(ctx, bob, solar, dec("40"))
	require.NoError(t, err)
	_, err = m.trading.PurchaseEnergy(ctx, bob, wind, dec("50"))
	require.NoError(t, err)

	m.clock.Advance(time.Hour)
	_, err = m.trading.PurchaseEnergy(ctx, alice, grid, dec("1"))
	require.ErrorIs(t, err, models.ErrOfferExpired)
	require.NoError(t, m.trading.CancelOffer(ctx, alice, solar))

	require.NoError(t, m.carbon.Redeem(ctx, bob, 100, "offset"))
	require.NoError(t, m.carbon.SetRate(ctx, testAdmin, models.EnergyGrid, dec("0.01")))
	require.NoError(t, m.trading.SetMarketPrice(ctx, testAdmin, models.EnergySolar, dec("0.21")))
	require.NoError(t, m.energy.Transfer(ctx, alice, carol, 5))

	require.NoError(t, m.gov.AddIssuer(ctx, testAdmin, testAdmin))
	require.NoError(t, m.gov.IssueTokens(ctx, testAdmin, carol, 250))
	require.NoError(t, m.gov.TransferTokens(ctx, testAdmin, bob, 1000))
	proposal, err := m.gov.CreateProposal(ctx, carol, CreateProposalRequest{
		Title:           "Price grid carbon",
		Description:     "Grid energy earns a small carbon rate",
		Type:            models.ProposalCarbonPolicy,
		ExecutionTarget: "carbon.rates",
		ExecutionData:   []byte(`{"grid":"0.01"}`),
	})
	require.NoError(t, err)
	_, err = m.gov.CastVote(ctx, testAdmin, proposal, models.VoteYes)
	require.NoError(t, err)
	_, err = m.gov.CastVote(ctx, bob, proposal, models.VoteNo)
	require.NoError(t, err)
	m.clock.Advance(votingPeriod)
	require.NoError(t, m.gov.ExecuteProposal(ctx, testAdmin, proposal))
	require.NoError(t, m.energy.RemoveIssuer(ctx, testAdmin, testOracle))

	r := newBareMarket(t)
	r.restoreFrom(t, m)

	for _, ledger := range [][2]*TokenLedger{
		{m.energy.Ledger(), r.energy.Ledger()},
		{m.carbon.Ledger(), r.carbon.Ledger()},
		{m.gov.Tokens(), r.gov.Tokens()},
	} {
		want, got := ledger[0], ledger[1]
		assert.Equal(t, want.Balances(), got.Balances(), want.Name())
		wantMinted, wantBurned := want.Supply()
		gotMinted, gotBurned := got.Supply()
		assert.Equal(t, wantMinted, gotMinted, want.Name())
		assert.Equal(t, wantBurned, gotBurned, want.Name())
		for _, account := range []string{testAdmin, alice, bob, carol} {
			assertSameJSON(t, want.Entries(account), got.Entries(account), want.Name()+" entries of "+account)
		}
	}
	assert.True(t, r.carbon.Ledger().IsIssuer(testTrading))
	assert.False(t, r.energy.Ledger().IsIssuer(testOracle))
	assert.True(t, r.gov.Tokens().IsIssuer(testAdmin))

	assertSameJSON(t, m.energy.Issuances(alice), r.energy.Issuances(alice), "issuances")
	assert.True(t, m.energy.GetEnergyBalance(bob).Equal(r.energy.GetEnergyBalance(bob)))

	assert.Equal(t, m.carbon.GetCarbonStats(bob), r.carbon.GetCarbonStats(bob))
	assertSameJSON(t, m.carbon.History(bob), r.carbon.History(bob), "carbon history")
	assert.True(t, dec("0.01").Equal(r.carbon.Rate(models.EnergyGrid)))

	for _, id := range []uint64{solar, wind, grid} {
		want, err := m.trading.GetOffer(id)
		require.NoError(t, err)
		got, err := r.trading.GetOffer(id)
		require.NoError(t, err)
		assertSameJSON(t, want, got, "offer")
	}
	assertSameJSON(t, m.trading.TradesByAccount(bob), r.trading.TradesByAccount(bob), "trades")
	assertSameJSON(t, m.trading.GetMarketStats(), r.trading.GetMarketStats(), "market stats")
	assertSameJSON(t, m.trading.GetActiveOffers(""), r.trading.GetActiveOffers(""), "active offers")
	wantPrice, err := m.trading.GetMarketPrice(models.EnergySolar)
	require.NoError(t, err)
	gotPrice, err := r.trading.GetMarketPrice(models.EnergySolar)
	require.NoError(t, err)
	assertSameJSON(t, wantPrice, gotPrice, "market price")

	wantProposal, err := m.gov.GetProposal(proposal)
	require.NoError(t, err)
	gotProposal, err := r.gov.GetProposal(proposal)
	require.NoError(t, err)
	assertSameJSON(t, wantProposal, gotProposal, "proposal")
	assert.Equal(t, models.OutcomeExecuted, gotProposal.Outcome)
	assert.Equal(t, m.gov.GetVotingStats(), r.gov.GetVotingStats())
	wantVote, _ := m.gov.GetVote(proposal, bob)
	gotVote, ok := r.gov.GetVote(proposal, bob)
	require.True(t, ok)
	assertSameJSON(t, wantVote, gotVote, "vote")

	assert.Empty(t, r.recorder.Events(), "replay publishes nothing")

	t.Run("restored ledger keeps numbering", func(t *testing.T) {
		next := r.offer(t, alice, "1", "1", models.EnergyWind, 24)
		assert.Equal(t, grid+1, next)
		id, err := r.gov.CreateProposal(ctx, carol, CreateProposalRequest{Title: "Next"})
		require.NoError(t, err)
		assert.Equal(t, proposal+1, id)
	})

	t.Run("replayed executions do not rerun the executor", func(t *testing.T) {
		executor := &MockExecutor{}
		store := NewLedgerStore()
		gov, err := NewGovernanceService(store, GovernanceConfig{
			Admin:         testAdmin,
			InitialSupply: 1_000_000,
			VotingPeriod:  votingPeriod,
			Executor:      executor,
		})
		require.NoError(t, err)

		var govEvents []models.Event
		for _, ev := range m.recorder.Events() {
			switch e := ev.(type) {
			case models.ProposalCreatedEvent, models.VoteCastEvent, models.ProposalExecutedEvent:
				govEvents = append(govEvents, e)
			case models.TransferEvent:
				if e.Ledger == GovernanceLedgerName {
					govEvents = append(govEvents, e)
				}
			case models.IssuerChangedEvent:
				if e.Ledger == GovernanceLedgerName {
					govEvents = append(govEvents, e)
				}
			}
		}
		require.NoError(t, store.Restore(govEvents, gov))
		executor.AssertNotCalled(t, "Execute")
	})
}

func TestLedgerStore_Restore_Failures(t *testing.T) {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	t.Run("unclaimed event", func(t *testing.T) {
		m := newBareMarket(t)
		err := m.store.Restore([]models.Event{
			models.TransferEvent{Ledger: "unknown_ledger", From: alice, To: bob, Amount: 1, At: at},
		}, m.energy, m.carbon, m.trading, m.gov)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "restore event 1 (transferred)")
	})

	t.Run("diverging balance rolls back that event", func(t *testing.T) {
		m := newBareMarket(t)
		err := m.store.Restore([]models.Event{
			models.EnergyIssuedEvent{To: alice, Issuer: testOracle, EnergyAmount: dec("1"), Credits: 100, BalanceAfter: 100, At: at},
			models.EnergyIssuedEvent{To: alice, Issuer: testOracle, EnergyAmount: dec("1"), Credits: 100, BalanceAfter: 999, At: at},
		}, m.energy)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "restore event 2")

		assert.Equal(t, int64(100), m.energy.BalanceOf(alice))
		assert.Equal(t, int64(100), m.energy.TotalSupply())
		assert.Len(t, m.energy.Issuances(alice), 1)
	})

	t.Run("purchase on a missing offer", func(t *testing.T) {
		m := newBareMarket(t)
		err := m.store.Restore([]models.Event{
			models.PurchaseSettledEvent{TradeID: 1, OfferID: 7, Buyer: bob, Seller: alice, EnergyAmount: dec("1"), TotalCost: 1, At: at},
		}, m.trading)
		assert.ErrorIs(t, err, models.ErrOfferInactive)
		assert.Equal(t, 0, len(m.trading.TradesByAccount(bob)))
	})

	t.Run("out of order offers", func(t *testing.T) {
		m := newBareMarket(t)
		created := models.OfferCreatedEvent{OfferID: 1, Seller: alice, EnergyAmount: dec("1"), PricePerKWh: dec("1"), EnergyType: models.EnergySolar, ExpiresAt: at.Add(time.Hour), At: at}
		err := m.store.Restore([]models.Event{created, created}, m.trading)
		require.Error(t, err)
		assert.Equal(t, 1, m.trading.GetMarketStats().ActiveOffers)
	})
}
