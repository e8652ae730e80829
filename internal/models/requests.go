package models

// DummyVerify используется для приёма данных запроса верификации из JSON.
// Оба поля обязательны: запрос без ключа или без идентификатора устройства
// отклоняется до любого обращения к хранилищу.
type DummyVerify struct {
	APIKey   string `json:"api_key" validate:"required"`   // Значение API-ключа
	DeviceID string `json:"device_id" validate:"required"` // Идентификатор устройства
}

// DummyRelease используется для приёма данных запроса отвязки устройства.
type DummyRelease struct {
	APIKey string `json:"api_key" validate:"required"` // Значение API-ключа
}

// DummyOverride используется для приёма данных административного изменения
// статуса подписки. Days обязательно при status=premium.
type DummyOverride struct {
	UserUID   string `json:"user_id" validate:"required,uuid"`          // Идентификатор пользователя
	ProductID int64  `json:"product_id" validate:"required"`            // Идентификатор продукта
	Status    string `json:"status" validate:"required,oneof=free premium"` // Целевой статус
	Days      int    `json:"days,omitempty"`                            // Срок премиума в днях
}
