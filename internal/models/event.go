package models

import "time"

// Причины события изменения подписки.
const (
	ReasonTrialActivated = "trial_activated"
	ReasonExpired        = "expired"
	ReasonAdminOverride  = "admin_override"
)

// RoutingKeySubscriptionChanged — ключ маршрутизации событий подписок.
const RoutingKeySubscriptionChanged = "changed"

// SubscriptionEvent публикуется в очередь при каждом переходе подписки:
// активация пробного периода, снятие истёкшей подписки, административное
// изменение статуса. Доставкой уведомлений занимается внешний сервис,
// ядро только публикует факт перехода.
type SubscriptionEvent struct {
	UserUID   string     `json:"user_uid"`
	ProductID int64      `json:"product_id"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}
