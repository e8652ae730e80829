package repository

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/license-gatekeeper/internal/migrations"
)

// SetupTestStorage поднимает контейнер PostgreSQL, применяет миграции и
// возвращает готовое хранилище. Если Docker недоступен, тест пропускается.
func SetupTestStorage(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("gatekeeper_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(nat.Port("5432/tcp")),
		).WithDeadline(60*time.Second)),
	)
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(connStr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = storage.DB.Close()
	})

	require.NoError(t, migrations.Run(storage.DB, "../../../migrations"))
	return storage
}

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя и возвращает его uid
func (f *TestDataFactory) CreateUser(t *testing.T, username, email string) string {
	t.Helper()
	userUID := uuid.New().String()
	_, err := f.storage.DB.Exec(`INSERT INTO users (uid, username, email)
		VALUES ($1, $2, $3)`,
		userUID, username, email)
	require.NoError(t, err)
	return userUID
}

// CreateProduct создает тестовый продукт и возвращает его id
func (f *TestDataFactory) CreateProduct(t *testing.T, name string, active, trialEnabled bool) int64 {
	t.Helper()
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO products (name, description, active, trial_enabled, duration_days)
		VALUES ($1, $2, $3, $4, 30) RETURNING id`,
		name, "test product", active, trialEnabled).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateSubscription создает тестовую подписку и возвращает её id
func (f *TestDataFactory) CreateSubscription(t *testing.T, userUID string, productID int64,
	status string, expiresAt *time.Time, trialUsed bool) int64 {
	t.Helper()
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO subscriptions (user_uid, product_id, status, expires_at, trial_used)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		userUID, productID, status, expiresAt, trialUsed).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateAPIKey создает тестовый ключ и возвращает его id
func (f *TestDataFactory) CreateAPIKey(t *testing.T, userUID string, productID int64,
	keyValue string, boundDevice *string) int64 {
	t.Helper()
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO api_keys (user_uid, product_id, key_value, bound_device)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		userUID, productID, keyValue, boundDevice).Scan(&id)
	require.NoError(t, err)
	return id
}
