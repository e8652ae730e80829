// Package verify реализует HTTP-обработчик верификации API-ключа.
//
// Handler принимает JSON-запрос со значением ключа и идентификатором
// устройства, валидирует его, прогоняет через сервис верификации и отдаёт
// ответ фиксированной формы для каждого исхода. Неизвестный ключ, отключённый
// продукт и конфликт устройства — обычные ответы с valid=false, а не ошибки
// HTTP: по ответу на неизвестный ключ нельзя отличить, существует ли ключ.
package verify

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

	"github.com/magabrotheeeer/license-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/license-gatekeeper/internal/limiter"
	"github.com/magabrotheeeer/license-gatekeeper/internal/metrics"
	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
	services "github.com/magabrotheeeer/license-gatekeeper/internal/services/verification"
)

// Handler управляет HTTP-запросами на верификацию ключей.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики верификации
	limiter  Limiter             // Поключевой лимит запросов, может быть nil
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики верификации ключа.
type Service interface {
	Verify(ctx context.Context, keyValue, device string) (*services.VerifyResult, error)
}

// Limiter описывает поключевой лимит частоты запросов.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// New создает новый Handler с переданными логгером, сервисом и лимитером.
func New(log *slog.Logger, service Service, keyLimiter Limiter) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		limiter:  keyLimiter,
		validate: validator.New(),
	}
}

// invalidKeyResponse — ответ на неизвестный или пустой ключ.
type invalidKeyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

// blockedResponse — продукт отключён рубильником.
type blockedResponse struct {
	Valid   bool   `json:"valid"`
	Product string `json:"product"`
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

// conflictResponse — ключ привязан к другому устройству.
type conflictResponse struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// verifiedResponse — успешная верификация.
type verifiedResponse struct {
	Valid     bool       `json:"valid"`
	User      string     `json:"user"`
	Product   string     `json:"product"`
	Status    string     `json:"status"`
	DeviceID  string     `json:"device_id"`
	DaysLeft  *int       `json:"days_left,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// ServeHTTP godoc
// @Summary Верифицировать API-ключ
// @Description Проверяет ключ, привязку устройства и статус подписки. Все негативные исходы возвращаются с valid=false.
// @Tags Keys
// @Accept  json
// @Produce  json
// @Param request body models.DummyVerify true "Ключ и идентификатор устройства"
// @Success 200 {object} map[string]any "Результат верификации"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.ErrorResponse "Превышен лимит запросов"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Router /keys/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.key.verify"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyVerify
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

	if h.limiter != nil {
		if err := h.limiter.Allow(r.Context(), req.APIKey); err != nil {
			if errors.Is(err, limiter.ErrRateLimitExceeded) {
				log.Warn("rate limit exceeded", sl.Redact("api_key", req.APIKey))
				w.WriteHeader(http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			log.Error("rate limiter failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
			return
		}
	}

	result, err := h.service.Verify(r.Context(), req.APIKey, req.DeviceID)
	if err != nil {
		log.Error("verification failed", sl.Err(err))
		metrics.VerifyOutcomes.WithLabelValues("error").Inc()
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	metrics.VerifyOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	render.JSON(w, r, h.buildResponse(result))
}

func (h *Handler) buildResponse(result *services.VerifyResult) any {
	switch result.Outcome {
	case services.OutcomeProductBlocked:
		return blockedResponse{
			Product: result.Blocked.ProductName,
			Message: "This product is no longer available",
		}
	case services.OutcomeDeviceConflict:
		return conflictResponse{
			Error:   "API key is bound to a different device",
			Message: "Use the release-device operation to unbind",
		}
	case services.OutcomeVerified:
		v := result.Verified
		resp := verifiedResponse{
			Valid:    true,
			User:     v.User.Username,
			Product:  v.Product.Name,
			Status:   v.Status,
			DeviceID: v.DeviceID,
		}
		if v.Status != models.StatusFree {
			days := v.DaysLeft
			resp.DaysLeft = &days
			resp.ExpiresAt = v.ExpiresAt
		}
		switch {
		case v.TrialActivated:
			metrics.TrialActivations.Inc()
			resp.Message = "Trial activated for 1 day"
		case v.Status == models.StatusFree && !v.TrialAvailable:
			resp.Message = "No trial available for this product"
		}
		return resp
	default:
		return invalidKeyResponse{Error: "Invalid API key"}
	}
}
