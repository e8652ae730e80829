package models

// Product представляет продукт, к которому выдаются API-ключи.
// Поле Active — это рубильник уровня продукта: при false любая верификация
// ключей этого продукта останавливается до привязки устройства и оценки подписки.
type Product struct {
	ID           int64  // Уникальный идентификатор продукта
	Name         string // Название продукта (уникальное)
	Description  string // Описание продукта
	Active       bool   // Доступен ли продукт
	TrialEnabled bool   // Разрешён ли пробный период
	DurationDays int    // Срок премиум-подписки по умолчанию, в днях
}
