// Package release реализует HTTP-обработчик отвязки устройства от API-ключа.
//
// Отвязка — единственный путь вернуть ключ в состояние без привязки.
// Операция идемпотентна: повторная отвязка свободного ключа успешна.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/license-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
	"github.com/magabrotheeeer/license-gatekeeper/internal/storage/repository"
)

// Handler управляет HTTP-запросами на отвязку устройства.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики отвязки
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики отвязки устройства.
type Service interface {
	ReleaseDevice(ctx context.Context, keyValue string) error
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
// @Summary Отвязать устройство от API-ключа
// @Description Безусловно снимает привязку устройства. Идемпотентна.
// @Tags Keys
// @Accept  json
// @Produce  json
// @Param request body models.DummyRelease true "Значение API-ключа"
// @Success 200 {object} response.Response "Привязка снята"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Ключ не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Router /keys/release [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.key.release"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyRelease
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", sl.Redact("api_key", req.APIKey))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.ReleaseDevice(r.Context(), req.APIKey); err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			log.Info("api key not found", sl.Redact("api_key", req.APIKey))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("API key not found"))
			return
		}
		log.Error("failed to release device", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("device released")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"success": true,
		"message": "Device binding released",
	}))
}
