// Package services содержит бизнес-логику верификации API-ключей:
// конвейер resolve → gate → bind → lifecycle и отвязку устройства.
//
// Корректность под конкурирующими запросами держится не на внутренней
// сериализации, а на условных одно-строчных записях хранилища: сервис может
// исполняться в нескольких процессах над общей базой.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
	"github.com/magabrotheeeer/license-gatekeeper/internal/storage/repository"
)

// TrialDuration — длительность пробного периода, активируемого при первой
// верификации свежего ключа.
const TrialDuration = 24 * time.Hour

// bindAttempts ограничивает повтор условной привязки после конкурентной
// отвязки ключа: операция не блокируется бесконечно.
const bindAttempts = 3

// ErrBindContention возвращается, когда привязка устройства не сошлась за
// bindAttempts попыток из-за непрерывной конкуренции bind/release.
var ErrBindContention = errors.New("device binding contention")

// Store определяет методы хранилища, нужные верификации. Все мутации —
// условные: возвращаемый bool сообщает, сработала ли запись этим вызовом.
type Store interface {
	// ResolveKey находит ключ по значению вместе с владельцем, продуктом и подпиской.
	ResolveKey(ctx context.Context, keyValue string) (*models.KeyView, error)
	// BindDevice привязывает устройство, только если привязки ещё нет.
	BindDevice(ctx context.Context, apiKeyID int64, device string) (bool, error)
	// GetBoundDevice возвращает текущую привязку ключа.
	GetBoundDevice(ctx context.Context, apiKeyID int64) (*string, error)
	// ReleaseDevice безусловно снимает привязку, идемпотентно.
	ReleaseDevice(ctx context.Context, keyValue string) error
	// ActivateTrial переводит free в trial, только если пробный период не использован.
	ActivateTrial(ctx context.Context, id int64, expiresAt time.Time) (bool, error)
	// ExpireSubscription снимает подписку в free, только если она всё ещё истекла.
	ExpireSubscription(ctx context.Context, id int64, now time.Time) (bool, error)
	// GetSubscription возвращает подписку по ID.
	GetSubscription(ctx context.Context, id int64) (*models.Subscription, error)
}

// Publisher описывает публикацию событий об изменении подписки.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// VerificationService реализует верификацию ключей и отвязку устройств.
type VerificationService struct {
	store  Store
	events Publisher
	log    *slog.Logger
	now    func() time.Time
}

// NewVerificationService создает новый экземпляр VerificationService.
// events может быть nil — тогда события не публикуются.
func NewVerificationService(store Store, events Publisher, log *slog.Logger) *VerificationService {
	return &VerificationService{
		store:  store,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// Verify выполняет полный конвейер верификации ключа с устройства device.
// Исходы unknown key / blocked / conflict возвращаются как варианты
// результата; ошибкой завершается только недоступность хранилища.
func (s *VerificationService) Verify(ctx context.Context, keyValue, device string) (*VerifyResult, error) {
	now := s.now()

	view, err := s.store.ResolveKey(ctx, keyValue)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return unknownKey(), nil
	}
	if err != nil {
		return nil, err
	}

	// Рубильник продукта проверяется до всего остального: для отключённого
	// продукта не выполняется даже привязка свежего ключа.
	if !view.Product.Active {
		return productBlocked(view.Product.Name), nil
	}

	boundTo, err := s.bindOrCheck(ctx, &view.ApiKey, device)
	if err != nil {
		return nil, err
	}
	if boundTo != nil {
		// Конфликт устройства полностью останавливает конвейер: отклонённый
		// запрос не вызывает и ленивое снятие истёкшей подписки.
		return deviceConflict(*boundTo), nil
	}

	sub, trialActivated, err := s.evaluateLifecycle(ctx, &view.Subscription, &view.Product, now)
	if err != nil {
		return nil, err
	}

	verified := &VerifiedResult{
		User:           view.User,
		Product:        view.Product,
		Status:         sub.Status,
		DeviceID:       device,
		TrialActivated: trialActivated,
		TrialAvailable: view.Product.TrialEnabled && !sub.TrialUsed,
	}
	if sub.Status != models.StatusFree && sub.ExpiresAt != nil {
		verified.ExpiresAt = sub.ExpiresAt
		verified.DaysLeft = DaysLeft(*sub.ExpiresAt, now)
	}
	return &VerifyResult{Outcome: OutcomeVerified, Verified: verified}, nil
}

// bindOrCheck сверяет или устанавливает привязку устройства. Возвращает nil,
// если ключ закреплён за device (в том числе привязан этим вызовом), либо
// устройство-победитель при конфликте. Из конкурентных первых использований
// привязку выигрывает ровно одно устройство, остальные видят конфликт.
func (s *VerificationService) bindOrCheck(ctx context.Context, key *models.ApiKey, device string) (*string, error) {
	bound := key.BoundDevice
	for attempt := 0; attempt < bindAttempts; attempt++ {
		if bound != nil {
			if *bound == device {
				return nil, nil
			}
			return bound, nil
		}

		won, err := s.store.BindDevice(ctx, key.ID, device)
		if err != nil {
			return nil, err
		}
		if won {
			s.log.Info("bound api key to device", slog.Int64("api_key_id", key.ID))
			return nil, nil
		}

		// Условная запись проиграла: перечитываем победителя. Пустая привязка
		// здесь означает конкурентный release, попытка повторяется.
		bound, err = s.store.GetBoundDevice(ctx, key.ID)
		if err != nil {
			return nil, err
		}
	}
	return nil, ErrBindContention
}

// evaluateLifecycle применяет переходы жизненного цикла в порядке их
// приоритета: активация пробного периода, затем ленивое снятие истёкшей
// подписки. Проигравший условную запись перечитывает подписку и видит
// состояние победителя.
func (s *VerificationService) evaluateLifecycle(ctx context.Context, sub *models.Subscription, product *models.Product, now time.Time) (*models.Subscription, bool, error) {
	trialActivated := false

	if sub.Status == models.StatusFree && product.TrialEnabled && !sub.TrialUsed {
		expiresAt := now.Add(TrialDuration)
		won, err := s.store.ActivateTrial(ctx, sub.ID, expiresAt)
		if err != nil {
			return nil, false, err
		}
		if won {
			sub.Status = models.StatusTrial
			sub.ExpiresAt = &expiresAt
			sub.TrialUsed = true
			trialActivated = true
			s.log.Info("activated trial", slog.Int64("subscription_id", sub.ID))
			s.publish(models.ReasonTrialActivated, sub)
		} else {
			sub, err = s.store.GetSubscription(ctx, sub.ID)
			if err != nil {
				return nil, false, err
			}
		}
	}

	if sub.Expired(now) {
		won, err := s.store.ExpireSubscription(ctx, sub.ID, now)
		if err != nil {
			return nil, false, err
		}
		if won {
			sub.Status = models.StatusFree
			sub.ExpiresAt = nil
			s.log.Info("reverted expired subscription", slog.Int64("subscription_id", sub.ID))
			s.publish(models.ReasonExpired, sub)
		} else {
			sub, err = s.store.GetSubscription(ctx, sub.ID)
			if err != nil {
				return nil, false, err
			}
		}
	}

	return sub, trialActivated, nil
}

// ReleaseDevice находит ключ по значению и снимает привязку устройства.
// Ошибка repository.ErrKeyNotFound пробрасывается вызывающему.
func (s *VerificationService) ReleaseDevice(ctx context.Context, keyValue string) error {
	if err := s.store.ReleaseDevice(ctx, keyValue); err != nil {
		return err
	}
	s.log.Info("released device binding")
	return nil
}

func (s *VerificationService) publish(reason string, sub *models.Subscription) {
	if s.events == nil {
		return
	}
	event := models.SubscriptionEvent{
		UserUID:   sub.UserUID,
		ProductID: sub.ProductID,
		Status:    sub.Status,
		ExpiresAt: sub.ExpiresAt,
		Reason:    reason,
	}
	if err := s.events.Publish(models.RoutingKeySubscriptionChanged, event); err != nil {
		s.log.Warn("failed to publish subscription event",
			slog.String("reason", reason), sl.Err(fmt.Errorf("publish: %w", err)))
	}
}
