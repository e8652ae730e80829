// Package override реализует HTTP-обработчик административного изменения
// статуса подписки: выдачу премиума на N дней или сброс в free. Маршрут
// закрыт middleware, требующим JWT с ролью admin.
package override

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/license-gatekeeper/internal/http/middlewarectx"
	"github.com/magabrotheeeer/license-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
	adminservice "github.com/magabrotheeeer/license-gatekeeper/internal/services/admin"
	"github.com/magabrotheeeer/license-gatekeeper/internal/storage/repository"
)

// Handler управляет HTTP-запросами административного изменения подписки.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики изменения статуса
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики административного изменения.
type Service interface {
	Override(ctx context.Context, req models.DummyOverride) (*time.Time, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Изменить статус подписки
// @Description Устанавливает premium на N дней либо сбрасывает подписку в free.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body models.DummyOverride true "Целевой статус подписки"
// @Success 200 {object} response.Response "Статус применён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или срок"
// @Failure 401 {object} response.ErrorResponse "Нет или невалиден токен"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Security BearerAuth
// @Router /admin/override [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.override"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyOverride
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	admin, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || admin == "" {
		log.Error("admin username not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	expiresAt, err := h.service.Override(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, adminservice.ErrDaysRequired):
			log.Error("days required for premium", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("days must be positive for premium status"))
		case errors.Is(err, repository.ErrSubscriptionNotFound):
			log.Info("subscription not found", slog.Int64("product_id", req.ProductID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("subscription not found"))
		default:
			log.Error("failed to override subscription", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("override applied",
		slog.String("admin", admin),
		slog.String("status", req.Status))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status":     req.Status,
		"expires_at": expiresAt,
	}))
}
