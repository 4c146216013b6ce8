// Package jwt проверяет RS256 токены мерчантов для управляющих эндпоинтов платежей.
//
// Токены выпускает портал мерчантов; шлюзу нужен только публичный ключ.
// Приватный ключ загружается опционально (локальная разработка, тесты).
package jwt

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Области доступа токена.
const (
	ScopePaymentsRead  = "payments:read"
	ScopePaymentsWrite = "payments:write"
)

var (
	// ErrInvalidToken — подпись, срок или издатель не прошли проверку.
	ErrInvalidToken = errors.New("невалидный токен")
	// ErrTokenRevoked — токен или все токены мерчанта отозваны.
	ErrTokenRevoked = errors.New("токен отозван")
	// ErrSigningDisabled — менеджер загружен без приватного ключа.
	ErrSigningDisabled = errors.New("приватный ключ не загружен: выпуск токенов недоступен")
)

// Claims — данные токена мерчанта.
type Claims struct {
	jwt.RegisteredClaims
	MerchantID string   `json:"merchant_id"`
	Scopes     []string `json:"scopes,omitempty"`
}

// HasScope проверяет наличие области доступа.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Config — параметры Manager.
type Config struct {
	PublicKeyPath  string
	PrivateKeyPath string // пусто — только проверка
	Issuer         string
	TokenTTL       time.Duration
}

// Manager проверяет и (при наличии приватного ключа) выпускает токены.
type Manager struct {
	publicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
	blacklist  *Blacklist
	issuer     string
	tokenTTL   time.Duration
}

// NewManager загружает ключи из PEM файлов.
func NewManager(cfg Config) (*Manager, error) {
	pub, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки публичного ключа: %w", err)
	}

	m := &Manager{
		publicKey: pub,
		issuer:    cfg.Issuer,
		tokenTTL:  cfg.TokenTTL,
	}
	if m.tokenTTL <= 0 {
		m.tokenTTL = time.Hour
	}

	if cfg.PrivateKeyPath != "" {
		priv, err := LoadPrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("ошибка загрузки приватного ключа: %w", err)
		}
		m.privateKey = priv
	}
	return m, nil
}

// NewManagerWithKeys создает Manager из готовых ключей. priv может быть nil.
func NewManagerWithKeys(pub *rsa.PublicKey, priv *rsa.PrivateKey, issuer string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{publicKey: pub, privateKey: priv, issuer: issuer, tokenTTL: ttl}
}

// SetBlacklist подключает список отзыва.
func (m *Manager) SetBlacklist(bl *Blacklist) {
	m.blacklist = bl
}

// Blacklist возвращает список отзыва (может быть nil).
func (m *Manager) Blacklist() *Blacklist {
	return m.blacklist
}

// TokenTTL — максимальное время жизни токена, используется как TTL инвалидации мерчанта.
func (m *Manager) TokenTTL() time.Duration {
	return m.tokenTTL
}

// Issue выпускает токен мерчанта.
func (m *Manager) Issue(merchantID string, scopes ...string) (string, *Claims, error) {
	if m.privateKey == nil {
		return "", nil, ErrSigningDisabled
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   merchantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
		MerchantID: merchantID,
		Scopes:     scopes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
	if err != nil {
		return "", nil, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, claims, nil
}

// Parse проверяет подпись, срок действия и издателя.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return m.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.MerchantID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Validate — Parse плюс проверка списка отзыва.
func (m *Manager) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if m.blacklist == nil {
		return claims, nil
	}

	revoked, err := m.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	if claims.IssuedAt != nil {
		invalidated, err := m.blacklist.IsMerchantInvalidated(ctx, claims.MerchantID, claims.IssuedAt.Time)
		if err != nil {
			return nil, err
		}
		if invalidated {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// LoadPrivateKey читает RSA приватный ключ (PKCS#1 или PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга приватного ключа: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("ключ не является RSA приватным ключом")
	}
	return rsaKey, nil
}

// LoadPublicKey читает RSA публичный ключ (PKIX или PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("ключ не является RSA публичным ключом")
	}
	return rsaKey, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("не удалось декодировать PEM блок из %s", path)
	}
	return block, nil
}
