package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims 会话令牌载荷。initData 校验通过后签发，
// 客户端后续请求可以带 JWT 而不必每次重传 initData。
type Claims struct {
	TelegramID string `json:"telegram_id"`
	jwt.RegisteredClaims
}

// GenerateToken 签发会话令牌
func GenerateToken(telegramID, secret string, expireHours int) (string, error) {
	if expireHours <= 0 {
		expireHours = 24
	}
	claims := Claims{
		TelegramID: telegramID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 解析并校验会话令牌
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TelegramID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
