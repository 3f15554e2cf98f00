// Package auth определяет сотрудника, от имени которого выполняется запрос.
//
// Токен подписывается HS256 и несёт идентификатор пользователя. Роль, активность и точка
// продаж всегда берутся из профиля, а не из токена.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken — подпись, формат или алгоритм токена не подходят.
	ErrInvalidToken = errors.New("token inválido")
	// ErrExpiredToken — срок действия токена истёк.
	ErrExpiredToken = errors.New("token expirado")
	// ErrSecretRequired — не задан ключ подписи.
	ErrSecretRequired = errors.New("jwt secret is required")
)

// Claims — содержимое токена сотрудника.
type Claims struct {
	UserID     string `json:"user_id"`
	OrgID      string `json:"org_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issuer подписывает и проверяет токены.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer создаёт Issuer с ключом secret и временем жизни ttl.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue выпускает токен для claims; время выпуска и истечения проставляются здесь.
func (i *Issuer) Issue(claims Claims) (string, error) {
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: user_id is empty", ErrInvalidToken)
	}
	now := i.now()
	claims.Subject = claims.UserID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse проверяет подпись и срок действия токена.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
