package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/powerchain/backend/internal/identity"
	"github.com/powerchain/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

var (
	ErrAccountExists      = errors.New("account already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
)

type Argon2Params struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

type AuthConfig struct {
	SecretKey string
	Expiry    time.Duration
	Argon2    Argon2Params
}

// AuthService binds ledger addresses to passwords and issues bearer tokens
// whose subject is the address. Redis holds revoked token ids.
type AuthService struct {
	db    *sql.DB
	redis *redis.Client
	log   *zap.Logger
	cfg   AuthConfig
	now   func() time.Time
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, log *zap.Logger, cfg AuthConfig) *AuthService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		db:    db,
		redis: redisClient,
		log:   log.Named("auth"),
		cfg:   cfg,
		now:   time.Now,
	}
}

// Claims is the validated content of a bearer token.
type Claims struct {
	Address   string
	TokenID   string
	ExpiresAt time.Time
}

// Register stores an argon2id hash for address and returns the checksummed
// address.
func (s *AuthService) Register(ctx context.Context, address, password string) (string, error) {
	addr, err := identity.Normalize(address)
	if err != nil {
		return "", err
	}
	if identity.IsZero(addr) {
		return "", fmt.Errorf("register: %w: zero address", models.ErrInvalidAddress)
	}

	hashed, err := s.hashPassword(password)
	if err != nil {
		return "", fmt.Errorf("register: hash: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO accounts (address, password_hash, created_at) VALUES ($1, $2, $3)",
		addr, hashed, s.now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("register: %w", err)
	}

	s.log.Info("account registered", zap.String("address", addr))
	return addr, nil
}

// Login verifies the password and returns a signed token.
func (s *AuthService) Login(ctx context.Context, address, password string) (string, Claims, error) {
	addr, err := identity.Normalize(address)
	if err != nil {
		return "", Claims{}, ErrInvalidCredentials
	}

	var hashed string
	err = s.db.QueryRowContext(ctx,
		"SELECT password_hash FROM accounts WHERE address = $1", addr).Scan(&hashed)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Info("login for unknown account", zap.String("address", addr))
		return "", Claims{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", Claims{}, fmt.Errorf("login: %w", err)
	}

	if !s.verifyPassword(password, hashed) {
		s.log.Info("login with wrong password", zap.String("address", addr))
		return "", Claims{}, ErrInvalidCredentials
	}

	return s.generateJWT(addr)
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if s.redis == nil {
		return nil
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, revokedKey(claims.TokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info("token revoked", zap.String("address", claims.Address), zap.String("jti", claims.TokenID))
	return nil
}

// ValidateToken parses the token and rejects revoked ones.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Claims{}, err
	}

	revoked, err := s.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrTokenRevoked
	}
	return claims, nil
}

func (s *AuthService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	return n > 0, nil
}

func (s *AuthService) generateJWT(address string) (string, Claims, error) {
	now := s.now()
	claims := Claims{
		Address:   address,
		TokenID:   uuid.New().String(),
		ExpiresAt: now.Add(s.cfg.Expiry),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": claims.Address,
		"jti": claims.TokenID,
		"iat": now.Unix(),
		"exp": claims.ExpiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

func (s *AuthService) parse(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(s.cfg.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	jti, _ := mc["jti"].(string)
	if jti == "" {
		return Claims{}, fmt.Errorf("%w: missing token id", ErrInvalidToken)
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	return Claims{Address: sub, TokenID: jti, ExpiresAt: exp.Time}, nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	p := s.cfg.Argon2
	salt := make([]byte, p.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (s *AuthService) verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	p := s.cfg.Argon2
	computedHash := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("revoked:%s", tokenID)
}
