package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt читает exp из JWT без проверки подписи: ключа у клиента нет,
// значение годится только для отображения.
func ExpiresAt(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpiry срок действия access-токена чата, если он известен.
func (c *Controller) TokenExpiry(ctx context.Context, chatID int64) (time.Time, bool) {
	access, ok, err := c.store.AccessToken(ctx, chatID)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return ExpiresAt(access)
}
