package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	events := []Event{
		EnergyIssuedEvent{To: "a", Issuer: "o", EnergyAmount: decimal.RequireFromString("1.5"), Credits: 150, At: at},
		TransferEvent{Ledger: "energy_credits", From: "a", To: "b", Amount: 5, At: at},
		IssuerChangedEvent{Ledger: "carbon_credits", Identity: "t", Added: false, At: at},
		OfferClosedEvent{OfferID: 3, Reason: OfferExpired, Remaining: decimal.NewFromInt(4), At: at},
		CarbonRateUpdatedEvent{EnergyType: EnergyGrid, OldRate: decimal.Zero, NewRate: decimal.RequireFromString("0.01"), At: at},
		ProposalCreatedEvent{ProposalID: 1, Title: "t", Description: "d", ExecutionTarget: "x", ExecutionData: []byte{1, 2}, At: at},
	}

	for _, ev := range events {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			payload, err := json.Marshal(ev)
			require.NoError(t, err)

			decoded, err := DecodeEvent(ev.Kind(), payload)
			require.NoError(t, err)
			assert.Equal(t, ev.Kind(), decoded.Kind())
			assert.True(t, ev.OccurredAt().Equal(decoded.OccurredAt()))

			again, err := json.Marshal(decoded)
			require.NoError(t, err)
			assert.JSONEq(t, string(payload), string(again))
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := DecodeEvent("card_swiped", []byte(`{}`))
		assert.Error(t, err)
	})

	t.Run("kind disagrees with payload", func(t *testing.T) {
		_, err := DecodeEvent(KindIssuerAdded, []byte(`{"ledger":"x","identity":"y","added":false}`))
		assert.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := DecodeEvent(KindVoteCast, []byte(`{"weight":"heavy"}`))
		assert.Error(t, err)
	})
}
