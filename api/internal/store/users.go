package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"imageverify/api/internal/model"
)

// UserRepo persists users and atomically tracks their daily free quota
// (spec §6 "quota decrement/refund must be atomic").
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetOrCreate inserts a fresh free-tier row the first time a user is seen,
// otherwise returns the existing one.
func (r *UserRepo) GetOrCreate(ctx context.Context, userID int64, handle string, dailyFreeQuota int) (model.User, error) {
	const q = `
		INSERT INTO users (user_id, handle, tier, daily_quota_remaining, quota_reset_date)
		VALUES ($1, $2, 'free', $3, CURRENT_DATE)
		ON CONFLICT (user_id) DO UPDATE SET handle = EXCLUDED.handle
		RETURNING user_id, handle, tier, daily_quota_remaining, quota_reset_date`

	var u model.User
	var tier string
	row := r.db.QueryRowContext(ctx, q, userID, handle, dailyFreeQuota)
	if err := row.Scan(&u.UserID, &u.Handle, &tier, &u.DailyQuotaRemaining, &u.QuotaResetDate); err != nil {
		return model.User{}, fmt.Errorf("users.GetOrCreate: %w", err)
	}
	u.Tier = model.Tier(tier)
	return u, nil
}

// TryConsumeQuota atomically decrements daily_quota_remaining by one,
// resetting it first if quota_reset_date has rolled over, and reports
// whether a unit was actually available (spec §4.1 quota check).
// Pro-tier users are unmetered and always succeed without touching the row.
func (r *UserRepo) TryConsumeQuota(ctx context.Context, userID int64, dailyFreeQuota int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("users.TryConsumeQuota: begin: %w", err)
	}
	defer tx.Rollback()

	var tier string
	var remaining int
	var resetDate time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT tier, daily_quota_remaining, quota_reset_date FROM users WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&tier, &remaining, &resetDate)
	if err != nil {
		return false, fmt.Errorf("users.TryConsumeQuota: select: %w", err)
	}

	if tier == string(model.TierPro) {
		return true, tx.Commit()
	}

	if resetDate.UTC().Truncate(24 * time.Hour).Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		remaining = dailyFreeQuota
	}
	if remaining <= 0 {
		return false, tx.Commit()
	}
	remaining--
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET daily_quota_remaining = $1, quota_reset_date = CURRENT_DATE WHERE user_id = $2`,
		remaining, userID)
	if err != nil {
		return false, fmt.Errorf("users.TryConsumeQuota: update: %w", err)
	}
	return true, tx.Commit()
}

// RefundQuota restores one unit, used when an upload is refused after its
// quota was consumed or a job fails in the worker (spec §7 "a failed job
// must not cost the user their quota").
func (r *UserRepo) RefundQuota(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET daily_quota_remaining = daily_quota_remaining + 1 WHERE user_id = $1 AND tier = 'free'`,
		userID)
	if err != nil {
		return fmt.Errorf("users.RefundQuota: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID int64) (model.User, error) {
	const q = `SELECT user_id, handle, tier, daily_quota_remaining, quota_reset_date FROM users WHERE user_id = $1`
	var u model.User
	var tier string
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&u.UserID, &u.Handle, &tier, &u.DailyQuotaRemaining, &u.QuotaResetDate)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("users.Get: %w", sql.ErrNoRows)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("users.Get: %w", err)
	}
	u.Tier = model.Tier(tier)
	return u, nil
}
