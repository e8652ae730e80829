package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
)

// ResolveKey находит API-ключ по точному значению и одним чтением собирает
// владельца, продукт и подписку. Возвращает ErrKeyNotFound, если ключа нет.
func (s *Storage) ResolveKey(ctx context.Context, keyValue string) (*models.KeyView, error) {
	const op = "storage.ResolveKey"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.uid, u.username, u.email,
			      p.id, p.name, p.description, p.active, p.trial_enabled, p.duration_days,
			      s.id, s.status, s.expires_at, s.trial_used,
			      k.id, k.bound_device
			  FROM api_keys k
			  JOIN users u ON u.uid = k.user_uid
			  JOIN products p ON p.id = k.product_id
			  JOIN subscriptions s ON s.user_uid = k.user_uid AND s.product_id = k.product_id
			  WHERE k.key_value = $1`
	row := s.DB.QueryRowContext(ctx, query, keyValue)

	var view models.KeyView
	var expiresAt sql.NullTime
	var boundDevice sql.NullString
	err := row.Scan(
		&view.User.UID, &view.User.Username, &view.User.Email,
		&view.Product.ID, &view.Product.Name, &view.Product.Description,
		&view.Product.Active, &view.Product.TrialEnabled, &view.Product.DurationDays,
		&view.Subscription.ID, &view.Subscription.Status, &expiresAt, &view.Subscription.TrialUsed,
		&view.ApiKey.ID, &boundDevice,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	view.Subscription.UserUID = view.User.UID
	view.Subscription.ProductID = view.Product.ID
	view.ApiKey.UserUID = view.User.UID
	view.ApiKey.ProductID = view.Product.ID
	view.ApiKey.KeyValue = keyValue
	if expiresAt.Valid {
		t := expiresAt.Time
		view.Subscription.ExpiresAt = &t
	}
	if boundDevice.Valid {
		d := boundDevice.String
		view.ApiKey.BoundDevice = &d
	}
	return &view, nil
}

// BindDevice привязывает устройство к ключу при условии, что привязки ещё нет.
// Возвращает true, если привязка выполнена этим вызовом, и false, если
// условная запись не сработала (устройство уже привязано — возможно,
// конкурентным запросом).
func (s *Storage) BindDevice(ctx context.Context, apiKeyID int64, device string) (bool, error) {
	const op = "storage.BindDevice"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE api_keys SET bound_device = $1
			  WHERE id = $2 AND bound_device IS NULL`
	result, err := s.DB.ExecContext(ctx, query, device, apiKeyID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected == 1, nil
}

// GetBoundDevice возвращает текущее привязанное устройство ключа, nil если
// привязки нет. Используется после проигранной условной записи, чтобы
// увидеть устройство-победитель.
func (s *Storage) GetBoundDevice(ctx context.Context, apiKeyID int64) (*string, error) {
	const op = "storage.GetBoundDevice"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT bound_device FROM api_keys WHERE id = $1`
	var boundDevice sql.NullString
	err := s.DB.QueryRowContext(ctx, query, apiKeyID).Scan(&boundDevice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !boundDevice.Valid {
		return nil, nil
	}
	d := boundDevice.String
	return &d, nil
}

// ReleaseDevice безусловно снимает привязку устройства с ключа.
// Операция идемпотентна: повторная отвязка уже свободного ключа проходит
// успешно. Возвращает ErrKeyNotFound, если ключа с таким значением нет.
func (s *Storage) ReleaseDevice(ctx context.Context, keyValue string) error {
	const op = "storage.ReleaseDevice"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE api_keys SET bound_device = NULL WHERE key_value = $1`
	result, err := s.DB.ExecContext(ctx, query, keyValue)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrKeyNotFound)
	}
	return nil
}
