package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/powerchain/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferQRService_GenerateOfferQR(t *testing.T) {
	ctx := context.Background()

	t.Run("code lives until the offer expires", func(t *testing.T) {
		m := newTestMarket(t)
		offerID := m.offer(t, alice, "10", "0.2", models.EnergySolar, 24)
		db, mock := redismock.NewClientMock()
		service := NewOfferQRService(db, m.trading)

		mock.Regexp().ExpectSet(`^offerqr:[A-Za-z0-9_-]+$`, `"offer_id":1,"seller":"`+alice+`"`, 24*time.Hour).SetVal("OK")

		code, image, err := service.GenerateOfferQR(ctx, offerID)
		require.NoError(t, err)
		assert.NotEmpty(t, code)

		png, err := base64.StdEncoding.DecodeString(image)
		require.NoError(t, err)
		assert.Equal(t, "\x89PNG", string(png[:4]))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed offer", func(t *testing.T) {
		m := newTestMarket(t)
		offerID := m.offer(t, alice, "10", "0.2", models.EnergySolar, 24)
		require.NoError(t, m.trading.CancelOffer(ctx, alice, offerID))
		db, _ := redismock.NewClientMock()

		_, _, err := NewOfferQRService(db, m.trading).GenerateOfferQR(ctx, offerID)
		assert.ErrorIs(t, err, models.ErrOfferInactive)
	})

	t.Run("expired offer", func(t *testing.T) {
		m := newTestMarket(t)
		offerID := m.offer(t, alice, "10", "0.2", models.EnergySolar, 1)
		m.clock.Advance(time.Hour)
		db, _ := redismock.NewClientMock()

		_, _, err := NewOfferQRService(db, m.trading).GenerateOfferQR(ctx, offerID)
		assert.ErrorIs(t, err, models.ErrOfferExpired)
	})

	t.Run("unknown offer", func(t *testing.T) {
		m := newTestMarket(t)
		db, _ := redismock.NewClientMock()

		_, _, err := NewOfferQRService(db, m.trading).GenerateOfferQR(ctx, 3)
		assert.ErrorIs(t, err, models.ErrOfferNotFound)
	})

	t.Run("redis failure", func(t *testing.T) {
		m := newTestMarket(t)
		offerID := m.offer(t, alice, "10", "0.2", models.EnergySolar, 24)
		db, mock := redismock.NewClientMock()
		mock.Regexp().ExpectSet(`^offerqr:`, `.*`, 24*time.Hour).SetErr(errors.New("READONLY"))

		_, _, err := NewOfferQRService(db, m.trading).GenerateOfferQR(ctx, offerID)
		assert.Error(t, err)
	})
}

func TestOfferQRService_ResolveOfferQR(t *testing.T) {
	ctx := context.Background()
	m := newTestMarket(t)
	offerID := m.offer(t, alice, "10", "0.2", models.EnergyWind, 24)

	t.Run("valid code", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectGet("offerqr:abc123").SetVal(`{"offer_id":1,"seller":"` + alice + `","nonce":"abc123"}`)

		offer, err := NewOfferQRService(db, m.trading).ResolveOfferQR(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, offerID, offer.ID)
		assert.Equal(t, models.EnergyWind, offer.EnergyType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown or expired code", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectGet("offerqr:gone").RedisNil()

		_, err := NewOfferQRService(db, m.trading).ResolveOfferQR(ctx, "gone")
		assert.ErrorIs(t, err, ErrInvalidShareCode)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectGet("offerqr:bad").SetVal("not json")

		_, err := NewOfferQRService(db, m.trading).ResolveOfferQR(ctx, "bad")
		assert.Error(t, err)
	})
}
