package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/powerchain/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Append(ctx context.Context, events []models.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, events []models.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, p models.Proposal) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// testClock is a settable clock for expiry and voting deadlines.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testAdmin   = "0x0000000000000000000000000000000000000001"
	testTrading = "0x0000000000000000000000000000000000000002"
	testOracle  = "0x00000000000000000000000000000000000000aa"
	alice       = "0x000000000000000000000000000000000000a11c"
	bob         = "0x0000000000000000000000000000000000000b0b"
	carol       = "0x00000000000000000000000000000000000ca201"
)

// testMarket is a fully wired ledger. newTestMarket registers the trading
// identity as a carbon issuer and testOracle as an energy issuer.
type testMarket struct {
	clock    *testClock
	recorder *EventRecorder
	store    *LedgerStore
	energy   *EnergyCreditService
	carbon   *CarbonCreditService
	trading  *TradingService
	gov      *GovernanceService
}

func newTestMarket(t *testing.T, opts ...StoreOption) *testMarket {
	t.Helper()
	m := newBareMarket(t, opts...)
	ctx := context.Background()
	require.NoError(t, m.carbon.AddIssuer(ctx, testAdmin, testTrading))
	require.NoError(t, m.energy.AddIssuer(ctx, testAdmin, testOracle))
	return m
}

// newBareMarket wires the ledgers with no issuers registered.
func newBareMarket(t *testing.T, opts ...StoreOption) *testMarket {
	t.Helper()
	m := &testMarket{clock: newTestClock(), recorder: &EventRecorder{}}
	opts = append([]StoreOption{WithClock(m.clock.Now), WithPublisher(m.recorder)}, opts...)
	m.store = NewLedgerStore(opts...)

	var err error
	m.energy, err = NewEnergyCreditService(m.store, EnergyCreditConfig{Admin: testAdmin, CreditsPerKWh: DefaultCreditsPerKWh})
	require.NoError(t, err)
	m.carbon, err = NewCarbonCreditService(m.store, CarbonCreditConfig{Admin: testAdmin})
	require.NoError(t, err)
	m.trading, err = NewTradingService(m.store, m.energy, m.carbon, TradingConfig{
		Identity:       testTrading,
		Admin:          testAdmin,
		MaxExpiryHours: 720,
	})
	require.NoError(t, err)
	m.gov, err = NewGovernanceService(m.store, GovernanceConfig{
		Admin:         testAdmin,
		InitialSupply: 1_000_000,
		VotingPeriod:  7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

// fund issues kWh worth of energy credits to account.
func (m *testMarket) fund(t *testing.T, account string, kwh string) {
	t.Helper()
	_, err := m.energy.Issue(context.Background(), testOracle, account, dec(kwh), "meter reading")
	require.NoError(t, err)
}

func (m *testMarket) offer(t *testing.T, seller, kwh, price string, et models.EnergyType, hours int) uint64 {
	t.Helper()
	id, err := m.trading.CreateOffer(context.Background(), seller, CreateOfferRequest{
		EnergyAmount:   dec(kwh),
		PricePerKWh:    dec(price),
		EnergyType:     et,
		Location:       "Kuala Lumpur",
		ExpiresInHours: hours,
	})
	require.NoError(t, err)
	return id
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
