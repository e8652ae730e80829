package services

import (
	"time"

	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
)

// VerifyOutcome — тег варианта результата верификации.
type VerifyOutcome string

// Возможные исходы верификации. Все четыре — ожидаемые, частые исходы,
// а не ошибки: они возвращаются как обычные значения.
const (
	OutcomeUnknownKey     VerifyOutcome = "unknown_key"
	OutcomeProductBlocked VerifyOutcome = "product_blocked"
	OutcomeDeviceConflict VerifyOutcome = "device_conflict"
	OutcomeVerified       VerifyOutcome = "verified"
)

// VerifyResult — размеченный результат верификации. Заполнено ровно одно из
// полей-вариантов, соответствующее Outcome; у варианта UnknownKey
// дополнительных данных нет.
type VerifyResult struct {
	Outcome  VerifyOutcome
	Blocked  *BlockedResult
	Conflict *ConflictResult
	Verified *VerifiedResult
}

// BlockedResult — продукт отключён рубильником. Никакие записи не менялись,
// включая привязку устройства при первом использовании ключа.
type BlockedResult struct {
	ProductName string // Название отключённого продукта
}

// ConflictResult — ключ привязан к другому устройству. Привязка не тронута,
// оценка подписки не выполнялась.
type ConflictResult struct {
	BoundDevice string // Устройство, к которому ключ привязан сейчас
}

// VerifiedResult — успешная верификация: статус подписки после оценки
// жизненного цикла и устройство, за которым закреплён ключ.
type VerifiedResult struct {
	User           models.User
	Product        models.Product
	Status         string     // Статус подписки: free, trial или premium
	DeviceID       string     // Устройство, подтверждённое или привязанное этим запросом
	DaysLeft       int        // Оставшиеся дни, только для trial/premium
	ExpiresAt      *time.Time // Дата истечения, только для trial/premium
	TrialActivated bool       // Пробный период активирован этим запросом
	TrialAvailable bool       // Доступна ли ещё активация пробного периода
}

func unknownKey() *VerifyResult {
	return &VerifyResult{Outcome: OutcomeUnknownKey}
}

func productBlocked(name string) *VerifyResult {
	return &VerifyResult{Outcome: OutcomeProductBlocked, Blocked: &BlockedResult{ProductName: name}}
}

func deviceConflict(bound string) *VerifyResult {
	return &VerifyResult{Outcome: OutcomeDeviceConflict, Conflict: &ConflictResult{BoundDevice: bound}}
}

// DaysLeft считает оставшиеся дни до expiresAt, округляя вверх до целого дня.
// Результат не бывает отрицательным: даже если снятие истёкшей подписки
// проиграло гонку, наружу не уходит отрицательный остаток.
func DaysLeft(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
