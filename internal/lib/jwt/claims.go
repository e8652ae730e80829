// Package jwt реализует генерацию и парсинг JWT токенов с пользовательскими claim полями.
//
// Токены используются для защиты административной поверхности сервиса:
// изменение статуса подписки доступно только носителю токена с ролью admin.
package jwt

import "github.com/golang-jwt/jwt/v5"

// CustomClaims описывает пользовательские данные, хранящиеся в JWT.
type CustomClaims struct {
	Username             string `json:"username"` // Имя пользователя
	Role                 string `json:"role"`     // Роль пользователя
	jwt.RegisteredClaims        // Встроенные стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}
