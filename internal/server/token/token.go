// Package token реализует peer-токены для sync endpoint.
// Оператор выпускает токен флагом docbowld -issue-token и раздает доверенным peers.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims представляет JWT claims peer-токена
type Claims struct {
	PeerName string `json:"peer_name"`
	jwt.RegisteredClaims
}

// Config содержит конфигурацию для выпуска и проверки токенов
type Config struct {
	Secret []byte
	TTL    time.Duration
}

// Generate создает новый peer-токен
func Generate(cfg Config, peerName string) (string, error) {
	now := time.Now()

	claims := Claims{
		PeerName: peerName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "docbowl",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate проверяет peer-токен и возвращает имя peer
func Validate(cfg Config, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Принимаем только HMAC: не даем подменить алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.PeerName, nil
	}

	return "", fmt.Errorf("invalid token")
}
