package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userSelect = `
SELECT id, username, password_hash, is_staff, is_superuser, created_at,
       plan, is_active_subscription, activated_at, expires_at,
       device_slot_1, device_slot_2, active_device
  FROM users`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt,
		&u.Plan, &u.IsActiveSubscription, &u.ActivatedAt, &u.ExpiresAt,
		&u.DeviceSlot1, &u.DeviceSlot2, &u.ActiveDevice); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  id, username, password_hash, is_staff, is_superuser, created_at,
  plan, is_active_subscription, activated_at, expires_at, device_slot_1, device_slot_2, active_device
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  username=$2, password_hash=$3, is_staff=$4, is_superuser=$5;`
	plan := u.Plan
	if plan == "" {
		plan = model.PlanNone
	}
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Username, u.PasswordHash, u.IsStaff, u.IsSuperuser, u.CreatedAt,
		plan, u.IsActiveSubscription, u.ActivatedAt, u.ExpiresAt, u.DeviceSlot1, u.DeviceSlot2, u.ActiveDevice)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save user: %w", mapErr(err))
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, userSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, userSelect+` WHERE LOWER(username) = LOWER($1)`, username)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(userSelect+` WHERE id = $1`, tx), id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) SetSubscriptionCache(ctx context.Context, tx repository.Tx, userID string, c repository.SubscriptionCache) error {
	const q = `
UPDATE users
   SET plan = $2,
       is_active_subscription = $3,
       activated_at = COALESCE(activated_at, $4),
       expires_at = $5
 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, model.NormalizePlanCode(c.Plan), c.Active, c.ActivatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("set subscription cache: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) ClearStaleCaches(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `
UPDATE users u
   SET is_active_subscription = FALSE, plan = 'none', expires_at = NULL
 WHERE u.is_active_subscription
   AND NOT EXISTS (
       SELECT 1 FROM subscriptions s
        WHERE s.user_id = u.id AND s.status IN ('trial','active') AND s.ends_at > $1
   );`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, fmt.Errorf("clear stale caches: %w", mapErr(err))
	}
	return tag.RowsAffected(), nil
}

// RebuildCaches derives every user's cache from the live grant with the
// latest end and touches only rows whose cache differs.
func (r *userRepo) RebuildCaches(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `
WITH best AS (
    SELECT DISTINCT ON (s.user_id) s.user_id, p.code, s.ends_at
      FROM subscriptions s JOIN plans p ON p.id = s.plan_id
     WHERE s.status IN ('trial','active') AND s.ends_at > $1
     ORDER BY s.user_id, s.ends_at DESC
), first_start AS (
    SELECT user_id, MIN(started_at) AS started_at
      FROM subscriptions WHERE ends_at IS NOT NULL
     GROUP BY user_id
), target AS (
    SELECT u.id,
           COALESCE(b.code, 'none')             AS plan,
           b.user_id IS NOT NULL                AS active,
           b.ends_at                            AS expires_at,
           COALESCE(u.activated_at, f.started_at) AS activated_at
      FROM users u
      LEFT JOIN best b ON b.user_id = u.id
      LEFT JOIN first_start f ON f.user_id = u.id
)
UPDATE users u
   SET plan = t.plan, is_active_subscription = t.active, expires_at = t.expires_at, activated_at = t.activated_at
  FROM target t
 WHERE u.id = t.id
   AND (u.plan IS DISTINCT FROM t.plan
     OR u.is_active_subscription IS DISTINCT FROM t.active
     OR u.expires_at IS DISTINCT FROM t.expires_at
     OR u.activated_at IS DISTINCT FROM t.activated_at);`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, fmt.Errorf("rebuild caches: %w", mapErr(err))
	}
	return tag.RowsAffected(), nil
}

func (r *userRepo) UpdateDevices(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `UPDATE users SET device_slot_1 = $2, device_slot_2 = $3, active_device = $4 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, u.ID, u.DeviceSlot1, u.DeviceSlot2, u.ActiveDevice)
	if err != nil {
		return fmt.Errorf("update devices: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
