package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
)

// GetSubscription возвращает подписку по её ID.
func (s *Storage) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, product_id, status, expires_at, trial_used
			  FROM subscriptions WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)

	var result models.Subscription
	var expiresAt sql.NullTime
	err := row.Scan(&result.ID, &result.UserUID, &result.ProductID,
		&result.Status, &expiresAt, &result.TrialUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		result.ExpiresAt = &t
	}
	return &result, nil
}

// ActivateTrial переводит подписку из free в trial при условии, что пробный
// период ещё не использовался. Условие в WHERE гарантирует не более одной
// активации на подписку за всё время её жизни: из конкурентных верификаций
// свежего ключа запись выполнит ровно одна. Возвращает true, если активация
// выполнена этим вызовом.
func (s *Storage) ActivateTrial(ctx context.Context, id int64, expiresAt time.Time) (bool, error) {
	const op = "storage.ActivateTrial"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = 'trial', expires_at = $1, trial_used = TRUE
			  WHERE id = $2 AND status = 'free' AND trial_used = FALSE`
	result, err := s.DB.ExecContext(ctx, query, expiresAt, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected == 1, nil
}

// ExpireSubscription снимает истёкшую подписку в free. Условие в WHERE
// защищает от затирания конкурентного административного продления: запись
// проходит только пока подписка всё ещё платная и всё ещё истекла.
// Возвращает true, если снятие выполнено этим вызовом.
func (s *Storage) ExpireSubscription(ctx context.Context, id int64, now time.Time) (bool, error) {
	const op = "storage.ExpireSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = 'free', expires_at = NULL
			  WHERE id = $1 AND status IN ('trial', 'premium') AND expires_at < $2`
	result, err := s.DB.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected == 1, nil
}

// OverrideStatus применяет административное изменение статуса подписки пары
// (пользователь, продукт): premium с датой истечения либо free без неё.
// Одна UPDATE-инструкция атомарна по отношению к конкурентным условным
// записям верификации. Возвращает ErrSubscriptionNotFound, если подписки
// для такой пары нет — записи создаются только внешним процессом выдачи.
func (s *Storage) OverrideStatus(ctx context.Context, userUID string, productID int64, status string, expiresAt *time.Time) error {
	const op = "storage.OverrideStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET status = $1, expires_at = $2
			  WHERE user_uid = $3 AND product_id = $4`
	result, err := s.DB.ExecContext(ctx, query, status, expiresAt, userUID, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}
