package servicetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/commitly/ledger/internal/apperrors"
)

const (
	defaultTokenTTL      = 1 * time.Hour
	defaultSigningMethod = "HS256"
)

// Claims of a service-to-service token: the product backend authenticates to
// the ledger API with one of these, not with user sessions
type Claims struct {
	jwt.RegisteredClaims
	Service string `json:"svc"`
}

// Token manager with sensible defaults
type Config struct {
	// Secret key to sign service tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Token lifetime
	// If not set than default is used
	TTL time.Duration
}

type Manager struct {
	key string
	alg jwt.SigningMethod
	ttl time.Duration
}

func New(cfg Config) (*Manager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultTokenTTL
	}

	return &Manager{
		key: cfg.SecretKey,
		alg: jwt.GetSigningMethod(cfg.Alg),
		ttl: cfg.TTL,
	}, nil
}

// Issue a signed token for the named caller service
func (m *Manager) Issue(service string) (string, error) {
	now := time.Now().Truncate(time.Second)

	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			},
			Service: service,
		},
	)

	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return "", fmt.Errorf("error while signing service token. Err: %w", err)
	}

	return signed, nil
}

// Parse and validate a token, returning the caller service name
func (m *Manager) Parse(token string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrServiceTokenInvalid, err)
	}
	if claims.Service == "" {
		return "", apperrors.ErrServiceTokenInvalid
	}

	return claims.Service, nil
}
