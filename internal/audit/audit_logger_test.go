package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/powerchain/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*AuditLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return NewAuditLogger(zap.New(core)), logs
}

func TestAuditLogger_Publish(t *testing.T) {
	a, logs := newObserved()
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	err := a.Publish(context.Background(), []models.Event{
		models.PurchaseSettledEvent{TradeID: 1, Buyer: "buyer", Seller: "seller", TotalCost: 20, At: at},
		models.VoteCastEvent{ProposalID: 2, Voter: "voter", Vote: models.VoteYes, Weight: 500, At: at},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("AUDIT").All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "purchase_settled", first["event_type"])
	assert.Equal(t, "buyer", first["account"])
	assert.Equal(t, int64(20), first["amount"])
	assert.Equal(t, "seller", first["seller"])
	assert.Equal(t, "SUCCESS", first["status"])

	second := entries[1].ContextMap()
	assert.Equal(t, "vote_cast", second["event_type"])
	assert.Equal(t, "yes", second["vote"])
	assert.Equal(t, int64(500), second["amount"])
}

func TestAuditLogger_LogRejected(t *testing.T) {
	a, logs := newObserved()
	a.LogRejected("purchase_energy", "buyer", errors.New("offer expired"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "REJECTED", fields["status"])
	assert.Equal(t, "offer expired", fields["error"])
}

func TestNewAuditLogger_NilLogger(t *testing.T) {
	a := NewAuditLogger(nil)
	assert.NotPanics(t, func() {
		a.LogRejected("issue", "x", errors.New("unauthorized"))
	})
}
