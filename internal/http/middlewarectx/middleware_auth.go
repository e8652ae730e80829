// Package middlewarectx содержит HTTP middleware сервиса: проверку
// административных JWT токенов и ограничение частоты запросов.
//
// JWTAdminMiddleware проверяет наличие и валидность JWT токена в заголовке
// Authorization, требует роль admin и в случае успеха добавляет в контекст
// имя пользователя. Кто и как выдаёт административные токены — зона
// ответственности внешнего сервиса аутентификации.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/license-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/jwt"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// User — ключ для имени пользователя в контексте
	User Key = "username"
)

// JWTAdminMiddleware возвращает HTTP middleware, который пускает дальше
// только запросы с валидным JWT токеном роли admin.
func JWTAdminMiddleware(maker jwt.Maker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTAdminMiddleware"
			authHeader := r.Header.Get("Authorization")

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := maker.ParseToken(tokenStr)
			if err != nil {
				log.Error("invalid token", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid token"))
				return
			}
			if claims.Role != "admin" {
				log.Error("token role is not admin")
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("admin role required"))
				return
			}

			ctx := context.WithValue(r.Context(), User, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
