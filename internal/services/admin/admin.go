// Package services содержит бизнес-логику административного изменения
// статуса подписки: выдачу премиума на N дней и сброс в free. Переходы
// применяются той же дисциплиной атомарных одно-строчных записей, что и
// внутренние переходы верификации, поэтому не затирают конкурентную
// активацию пробного периода или снятие истёкшей подписки частично.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
)

// ErrDaysRequired возвращается, когда премиум запрошен без положительного
// срока в днях.
var ErrDaysRequired = errors.New("days must be positive for premium status")

// Store определяет метод хранилища для административного перехода.
type Store interface {
	// OverrideStatus атомарно устанавливает статус и дату истечения подписки пары
	// (пользователь, продукт).
	OverrideStatus(ctx context.Context, userUID string, productID int64, status string, expiresAt *time.Time) error
}

// Publisher описывает публикацию событий об изменении подписки.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// OverrideService применяет привилегированные изменения статуса подписки.
type OverrideService struct {
	store  Store
	events Publisher
	log    *slog.Logger
}

// NewOverrideService создает новый экземпляр OverrideService.
// events может быть nil — тогда события не публикуются.
func NewOverrideService(store Store, events Publisher, log *slog.Logger) *OverrideService {
	return &OverrideService{
		store:  store,
		events: events,
		log:    log,
	}
}

// Override применяет запрошенный переход: premium с истечением через
// req.Days дней либо free без даты истечения. Возвращает установленную
// дату истечения (nil для free).
func (s *OverrideService) Override(ctx context.Context, req models.DummyOverride) (*time.Time, error) {
	var expiresAt *time.Time
	if req.Status == models.StatusPremium {
		if req.Days <= 0 {
			return nil, ErrDaysRequired
		}
		t := time.Now().Add(time.Duration(req.Days) * 24 * time.Hour)
		expiresAt = &t
	}

	if err := s.store.OverrideStatus(ctx, req.UserUID, req.ProductID, req.Status, expiresAt); err != nil {
		return nil, err
	}
	s.log.Info("applied subscription override",
		slog.Int64("product_id", req.ProductID),
		slog.String("status", req.Status))

	if s.events != nil {
		event := models.SubscriptionEvent{
			UserUID:   req.UserUID,
			ProductID: req.ProductID,
			Status:    req.Status,
			ExpiresAt: expiresAt,
			Reason:    models.ReasonAdminOverride,
		}
		if err := s.events.Publish(models.RoutingKeySubscriptionChanged, event); err != nil {
			s.log.Warn("failed to publish subscription event", sl.Err(fmt.Errorf("publish: %w", err)))
		}
	}
	return expiresAt, nil
}
