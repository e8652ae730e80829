package models

// ApiKey представляет выданный пользователю ключ доступа к продукту.
// KeyValue — непрозрачный секрет-носитель, он никогда не пишется в логи.
// BoundDevice заполняется при первом использовании ключа и сбрасывается
// только явной операцией release.
type ApiKey struct {
	ID          int64   // Уникальный идентификатор записи ключа
	UserUID     string  // Идентификатор пользователя-владельца
	ProductID   int64   // Идентификатор продукта
	KeyValue    string  // Значение ключа (уникальное)
	BoundDevice *string // Привязанное устройство, nil если привязки нет
}

// KeyView — консистентный снимок всех записей, относящихся к одному ключу:
// сам ключ, владелец, продукт и подписка. Собирается одним чтением.
type KeyView struct {
	User         User
	Product      Product
	Subscription Subscription
	ApiKey       ApiKey
}
