package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"

	"github.com/go-redis/redis/v8"
	"github.com/powerchain/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

var ErrInvalidShareCode = errors.New("invalid or expired share code")

// OfferQRService issues shareable codes for open offers. A code lives in
// Redis until its offer expires.
type OfferQRService struct {
	redis   *redis.Client
	trading *TradingService
}

func NewOfferQRService(redis *redis.Client, trading *TradingService) *OfferQRService {
	return &OfferQRService{
		redis:   redis,
		trading: trading,
	}
}

type offerShare struct {
	OfferID uint64 `json:"offer_id"`
	Seller  string `json:"seller"`
	Nonce   string `json:"nonce"`
}

// GenerateOfferQR returns the share code and a base64 PNG of it.
func (s *OfferQRService) GenerateOfferQR(ctx context.Context, offerID uint64) (string, string, error) {
	offer, err := s.trading.GetOffer(offerID)
	if err != nil {
		return "", "", err
	}

	now := s.trading.store.Now()
	if !offer.Active {
		return "", "", fmt.Errorf("%w: %d", models.ErrOfferInactive, offerID)
	}
	ttl := offer.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return "", "", fmt.Errorf("%w: %d", models.ErrOfferExpired, offerID)
	}

	share := offerShare{OfferID: offer.ID, Seller: offer.Seller, Nonce: s.generateNonce()}
	jsonData, err := json.Marshal(share)
	if err != nil {
		return "", "", err
	}

	code := share.Nonce
	if err := s.redis.Set(ctx, shareKey(code), string(jsonData), ttl).Err(); err != nil {
		return "", "", fmt.Errorf("store share code: %w", err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolveOfferQR maps a share code back to the current state of its offer.
func (s *OfferQRService) ResolveOfferQR(ctx context.Context, code string) (models.Offer, error) {
	data, err := s.redis.Get(ctx, shareKey(code)).Bytes()
	if err == redis.Nil {
		return models.Offer{}, ErrInvalidShareCode
	}
	if err != nil {
		return models.Offer{}, err
	}

	var share offerShare
	if err := json.Unmarshal(data, &share); err != nil {
		return models.Offer{}, fmt.Errorf("decode share code: %w", err)
	}

	return s.trading.GetOffer(share.OfferID)
}

func (s *OfferQRService) generateNonce() string {
	b := make([]byte, 12)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func shareKey(code string) string {
	return fmt.Sprintf("offerqr:%s", code)
}
