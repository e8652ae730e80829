package models

import "time"

// Статусы подписки. Подписка в статусе free не имеет даты истечения,
// trial и premium — обязаны иметь её.
const (
	StatusFree    = "free"
	StatusTrial   = "trial"
	StatusPremium = "premium"
)

// Subscription представляет подписку пользователя на один продукт.
// На пару (пользователь, продукт) существует не более одной подписки.
// TrialUsed взводится один раз при активации пробного периода и назад
// не сбрасывается.
type Subscription struct {
	ID        int64      // Уникальный идентификатор подписки
	UserUID   string     // Идентификатор пользователя-владельца
	ProductID int64      // Идентификатор продукта
	Status    string     // Статус: free, trial или premium
	ExpiresAt *time.Time // Дата истечения, nil для статуса free
	TrialUsed bool       // Был ли уже использован пробный период
}

// Expired сообщает, истекла ли подписка к моменту now.
// Подписка без даты истечения не истекает.
func (s *Subscription) Expired(now time.Time) bool {
	if s.Status == StatusFree || s.ExpiresAt == nil {
		return false
	}
	return s.ExpiresAt.Before(now)
}
