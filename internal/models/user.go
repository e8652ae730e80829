// Package models содержит доменные структуры ядра верификации:
// пользователи, продукты, подписки и API-ключи, а также вспомогательные
// типы для приёма данных из JSON-запросов.
package models

// User представляет владельца API-ключа. С точки зрения ядра верификации
// данные пользователя доступны только для чтения.
type User struct {
	UID      string // Уникальный идентификатор пользователя
	Username string // Имя пользователя (уникальное)
	Email    string // Электронная почта
}
