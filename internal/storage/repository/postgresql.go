// Package repository реализует хранилище данных на основе PostgreSQL
// для ядра верификации API-ключей. Все мутации, от которых зависят
// инварианты (привязка устройства, активация пробного периода, снятие
// истёкшей подписки, административное изменение статуса), выражены как
// условные одно-строчные UPDATE: запись меняется только если её текущее
// состояние совпадает с ожидаемым.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Ошибки-сентинелы хранилища. Неизвестный ключ — ожидаемый исход
// верификации, поэтому вызывающий код различает его через errors.Is.
var (
	ErrKeyNotFound          = errors.New("api key not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с ключами и подписками.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'api_keys'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table api_keys missing or query error: %w", err)
	}
	return nil
}
