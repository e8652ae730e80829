package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
	"github.com/magabrotheeeer/license-gatekeeper/internal/storage/repository"
)

// fakeStore — детерминированная реализация Store в памяти с тем же
// контрактом условных записей, что и у PostgreSQL-хранилища: мутация
// проходит только если текущее состояние записи совпадает с ожидаемым.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	products map[int64]models.Product
	subs     map[int64]*models.Subscription
	keys     map[string]*models.ApiKey

	trialActivations int // число сработавших условных активаций
	expireWrites     int // число сработавших условных снятий
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]models.User),
		products: make(map[int64]models.Product),
		subs:     make(map[int64]*models.Subscription),
		keys:     make(map[string]*models.ApiKey),
	}
}

func (f *fakeStore) addFixture(user models.User, product models.Product, sub models.Subscription, key models.ApiKey) {
	f.users[user.UID] = user
	f.products[product.ID] = product
	subCopy := sub
	f.subs[sub.ID] = &subCopy
	keyCopy := key
	f.keys[key.KeyValue] = &keyCopy
}

func (f *fakeStore) ResolveKey(_ context.Context, keyValue string) (*models.KeyView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[keyValue]
	if !ok {
		return nil, fmt.Errorf("fake: %w", repository.ErrKeyNotFound)
	}
	view := models.KeyView{
		User:    f.users[key.UserUID],
		Product: f.products[key.ProductID],
		ApiKey:  *key,
	}
	if key.BoundDevice != nil {
		d := *key.BoundDevice
		view.ApiKey.BoundDevice = &d
	}
	for _, sub := range f.subs {
		if sub.UserUID == key.UserUID && sub.ProductID == key.ProductID {
			view.Subscription = *sub
			if sub.ExpiresAt != nil {
				t := *sub.ExpiresAt
				view.Subscription.ExpiresAt = &t
			}
		}
	}
	return &view, nil
}

func (f *fakeStore) BindDevice(_ context.Context, apiKeyID int64, device string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.keys {
		if key.ID == apiKeyID {
			if key.BoundDevice != nil {
				return false, nil
			}
			d := device
			key.BoundDevice = &d
			return true, nil
		}
	}
	return false, fmt.Errorf("fake: %w", repository.ErrKeyNotFound)
}

func (f *fakeStore) GetBoundDevice(_ context.Context, apiKeyID int64) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.keys {
		if key.ID == apiKeyID {
			if key.BoundDevice == nil {
				return nil, nil
			}
			d := *key.BoundDevice
			return &d, nil
		}
	}
	return nil, fmt.Errorf("fake: %w", repository.ErrKeyNotFound)
}

func (f *fakeStore) ReleaseDevice(_ context.Context, keyValue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[keyValue]
	if !ok {
		return fmt.Errorf("fake: %w", repository.ErrKeyNotFound)
	}
	key.BoundDevice = nil
	return nil
}

func (f *fakeStore) ActivateTrial(_ context.Context, id int64, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return false, fmt.Errorf("fake: %w", repository.ErrSubscriptionNotFound)
	}
	if sub.Status != models.StatusFree || sub.TrialUsed {
		return false, nil
	}
	t := expiresAt
	sub.Status = models.StatusTrial
	sub.ExpiresAt = &t
	sub.TrialUsed = true
	f.trialActivations++
	return true, nil
}

func (f *fakeStore) ExpireSubscription(_ context.Context, id int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return false, fmt.Errorf("fake: %w", repository.ErrSubscriptionNotFound)
	}
	if sub.Status == models.StatusFree || sub.ExpiresAt == nil || !sub.ExpiresAt.Before(now) {
		return false, nil
	}
	sub.Status = models.StatusFree
	sub.ExpiresAt = nil
	f.expireWrites++
	return true, nil
}

func (f *fakeStore) GetSubscription(_ context.Context, id int64) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", repository.ErrSubscriptionNotFound)
	}
	subCopy := *sub
	if sub.ExpiresAt != nil {
		t := *sub.ExpiresAt
		subCopy.ExpiresAt = &t
	}
	return &subCopy, nil
}

func (f *fakeStore) boundDevice(keyValue string) *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[keyValue].BoundDevice == nil {
		return nil
	}
	d := *f.keys[keyValue].BoundDevice
	return &d
}

func (f *fakeStore) subscription(id int64) models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.subs[id]
}

// recordingPublisher собирает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SubscriptionEvent
}

func (p *recordingPublisher) Publish(_ string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message.(models.SubscriptionEvent))
	return nil
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func fixture(store *fakeStore, productActive, trialEnabled, trialUsed bool, status string, expiresAt *time.Time, boundDevice *string) {
	store.addFixture(
		models.User{UID: "u-1", Username: "testuser", Email: "test@example.com"},
		models.Product{ID: 1, Name: "Checker Pro", Active: productActive, TrialEnabled: trialEnabled, DurationDays: 30},
		models.Subscription{ID: 10, UserUID: "u-1", ProductID: 1, Status: status, ExpiresAt: expiresAt, TrialUsed: trialUsed},
		models.ApiKey{ID: 100, UserUID: "u-1", ProductID: 1, KeyValue: "key-abc", BoundDevice: boundDevice},
	)
}

func TestVerify_UnknownKey(t *testing.T) {
	store := newFakeStore()
	fixture(store, true, true, false, models.StatusFree, nil, nil)
	svc := NewVerificationService(store, nil, newNoopLogger())

	for i := 0; i < 3; i++ {
		result, err := svc.Verify(context.Background(), "no-such-key", "D1")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnknownKey, result.Outcome)
	}

	// Повторные запросы с неизвестным ключом ничего не меняют
	assert.Nil(t, store.boundDevice("key-abc"))
	assert.Equal(t, models.StatusFree, store.subscription(10).Status)
	assert.Equal(t, 0, store.trialActivations)
}

func TestVerify_BlockedProductSkipsBinding(t *testing.T) {
	store := newFakeStore()
	fixture(store, false, true, false, models.StatusFree, nil, nil)
	svc := NewVerificationService(store, nil, newNoopLogger())

	result, err := svc.Verify(context.Background(), "key-abc", "D1")
	require.NoError(t, err)

	require.Equal(t, OutcomeProductBlocked, result.Outcome)
	assert.Equal(t, "Checker Pro", result.Blocked.ProductName)
	// Рубильник сильнее привязки первого использования
	assert.Nil(t, store.boundDevice("key-abc"))
	assert.Equal(t, 0, store.trialActivations)
}

func TestVerify_FirstUseBindsThenConflicts(t *testing.T) {
	store := newFakeStore()
	fixture(store, true, false, false, models.StatusFree, nil, nil)
	svc := NewVerificationService(store, nil, newNoopLogger())

	result, err := svc.Verify(context.Background(), "key-abc", "D1")
	require.NoError(t, err)
	require.Equal(t, OutcomeVerified, result.Outcome)
	assert.Equal(t, "D1", result.Verified.DeviceID)
	require.NotNil(t, store.boundDevice("key-abc"))
	assert.Equal(t, "D1", *store.boundDevice("key-abc"))

	result, err = svc.Verify(context.Background(), "key-abc", "D2")
	require.NoError(t, err)
	require.Equal(t, OutcomeDeviceConflict, result.Outcome)
	assert.Equal(t, "D1", result.Conflict.BoundDevice)
	assert.Equal(t, "D1", *store.boundDevice("key-abc"))
}

func TestVerify_SameDeviceIsSteady(t *testing.T) {
	store := newFakeStore()
	d := "D1"
	fixture(store, true, false, true, models.StatusFree, nil, &d)
	svc := NewVerificationService(store, nil, newNoopLogger())

	for i := 0; i < 3; i++ {
		result, err := svc.Verify(context.Background(), "key-abc", "D1")
		require.NoError(t, err)
		require.Equal(t, OutcomeVerified, result.Outcome)
		assert.Equal(t, models.StatusFree, result.Verified.Status)
		// free без доступного пробного периода — сообщение об этом собирает обработчик
		assert.False(t, result.Verified.TrialAvailable)
	}
}

func TestVerify_ConcurrentFirstUseBind(t *testing.T) {
	store := newFakeStore()
	fixture(store, true, false, true, models.StatusFree, nil, nil)
	svc := NewVerificationService(store, nil, newNoopLogger())

	const workers = 50
	results := make([]*VerifyResult, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := svc.Verify(context.Background(), "key-abc", fmt.Sprintf("D%d", i))
			if !assert.NoError(t, err) {
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	winner := store.boundDevice("key-abc")
	require.NotNil(t, winner)

	var verified, conflicts int
	for _, result := range results {
		switch result.Outcome {
		case OutcomeVerified:
			verified++
			assert.Equal(t, *winner, result.Verified.DeviceID)
		case OutcomeDeviceConflict:
			conflicts++
			// Проигравшие видят именно устройство-победитель
			assert.Equal(t, *winner, result.Conflict.BoundDevice)
		default:
			t.Fatalf("unexpected outcome %s", result.Outcome)
		}
	}
	assert.Equal(t, 1, verified)
	assert.Equal(t, workers-1, conflicts)
}

func TestVerify_TrialActivation(t *testing.T) {
	store := newFakeStore()
	fixture(store, true, true, false, models.StatusFree, nil, nil)
	events := &recordingPublisher{}
	svc := NewVerificationService(store, events, newNoopLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	result, err := svc.Verify(context.Background(), "key-abc", "D1")
	require.NoError(t, err)

	require.Equal(t, OutcomeVerified, result.Outcome)
	v := result.Verified
	assert.Equal(t, models.StatusTrial, v.Status)
	assert.True(t, v.TrialActivated)
	require.NotNil(t, v.ExpiresAt)
	assert.Equal(t, now.Add(24*time.Hour), *v.ExpiresAt)
	assert.Equal(t, 1, v.DaysLeft)

	sub := store.subscription(10)
	assert.True(t, sub.TrialUsed)
	assert.Equal(t, models.StatusTrial, sub.Status)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.ReasonTrialActivated, events.events[0].Reason)

	// Повторная верификация в ту же секунду не активирует пробный период заново
	result, err = svc.Verify(context.Background(), "key-abc", "D1")
	require.NoError(t, err)
	require.Equal(t, OutcomeVerified, result.Outcome)
	assert.Equal(t, models.StatusTrial, result.Verified.Status)
	assert.False(t, result.Verified.TrialActivated)
	assert.Equal(t, 1, store.trialActivations)
}

func TestVerify_ConcurrentTrialActivation(t *testing.T) {
	store := newFakeStore()
	fixture(store, true, true, false, models.StatusFree, nil, nil)
	svc := NewVerificationService(store, nil, newNoopLogger())

	const workers = 50
	results := make([]*VerifyResult, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := svc.Verify(context.Background(), "key-abc", "D1")
			if !assert.NoError(t, err) {
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	// Активация сработала ровно один раз, но статус trial видят все:
	// проигравшие перечитывают состояние победителя
	assert.Equal(t, 1, store.trialActivations)
	for _, result := range results {
		require.Equal(t, OutcomeVerified, result.Outcome)
		assert.Equal(t, models.StatusTrial, result.Verified.Status)
	}
}

func TestVerify_LazyExpiryReverts(t *testing.T) {
	for _, status := range []string{models.StatusTrial, models.StatusPremium} {
		t.Run(status, func(t *testing.T) {
			store := newFakeStore()
			d := "D1"
			expired := time.Now().Add(-time.Hour)
			fixture(store, true, false, true, status, &expired, &d)
			events := &recordingPublisher{}
			svc := NewVerificationService(store, events, newNoopLogger())

			result, err := svc.Verify(context.Background(), "key-abc", "D1")
			require.NoError(t, err)

			require.Equal(t, OutcomeVerified, result.Outcome)
			v := result.Verified
			assert.Equal(t, models.StatusFree, v.Status)
			// Истёкшая запись никогда не сообщает остаток дней
			assert.Zero(t, v.DaysLeft)
			assert.Nil(t, v.ExpiresAt)

			sub := store.subscription(10)
			assert.Equal(t, models.StatusFree, sub.Status)
			assert.Nil(t, sub.ExpiresAt)

			require.Len(t, events.events, 1)
			assert.Equal(t, models.ReasonExpired, events.events[0].Reason)
		})
	}
}

func TestVerify_DeviceConflictSuppressesExpiry(t *testing.T) {
	store := newFakeStore()
	d := "D1"
	expired := time.Now().Add(-time.Hour)
	fixture(store, true, false, true, models.StatusPremium, &expired, &d)
	svc := NewVerificationService(store, nil, newNoopLogger())

	result, err := svc.Verify(context.Background(), "key-abc", "D2")
	require.NoError(t, err)

	require.Equal(t, OutcomeDeviceConflict, result.Outcome)
	// Отклонённое устройство не вызывает никаких переходов
	sub := store.subscription(10)
	assert.Equal(t, models.StatusPremium, sub.Status)
	assert.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, 0, store.expireWrites)
}

func TestVerify_PremiumDaysLeft(t *testing.T) {
	store := newFakeStore()
	d := "D1"
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(36 * time.Hour)
	fixture(store, true, true, true, models.StatusPremium, &expiresAt, &d)
	svc := NewVerificationService(store, nil, newNoopLogger())
	svc.now = func() time.Time { return now }

	result, err := svc.Verify(context.Background(), "key-abc", "D1")
	require.NoError(t, err)

	require.Equal(t, OutcomeVerified, result.Outcome)
	assert.Equal(t, models.StatusPremium, result.Verified.Status)
	assert.Equal(t, 2, result.Verified.DaysLeft)
	require.NotNil(t, result.Verified.ExpiresAt)
	assert.Equal(t, expiresAt, *result.Verified.ExpiresAt)
}

func TestReleaseDevice(t *testing.T) {
	store := newFakeStore()
	d := "D1"
	fixture(store, true, true, false, models.StatusFree, nil, &d)
	svc := NewVerificationService(store, nil, newNoopLogger())

	require.NoError(t, svc.ReleaseDevice(context.Background(), "key-abc"))
	assert.Nil(t, store.boundDevice("key-abc"))

	// Идемпотентность: повторная отвязка свободного ключа успешна
	require.NoError(t, svc.ReleaseDevice(context.Background(), "key-abc"))

	err := svc.ReleaseDevice(context.Background(), "no-such-key")
	assert.True(t, errors.Is(err, repository.ErrKeyNotFound))
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      int
	}{
		{"ровно сутки", now.Add(24 * time.Hour), 1},
		{"полтора дня округляются вверх", now.Add(36 * time.Hour), 2},
		{"меньше суток", now.Add(time.Minute), 1},
		{"уже истекло", now.Add(-time.Hour), 0},
		{"тот же момент", now, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysLeft(tt.expiresAt, now))
		})
	}
}
