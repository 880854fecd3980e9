package usecase

import (
	"context"
	"errors"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/policy"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ QuotaUseCase = (*quotaUC)(nil)

// QuotaDecision is the verdict of a pre-call check.
type QuotaDecision struct {
	Allowed    bool
	Subscribed bool // the user holds a live grant
	Limit      int
	Used       int // count before this call
}

// QuotaStatus is today's counter for one user.
type QuotaStatus struct {
	Day       time.Time `json:"day"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
}

// QuotaUseCase meters calls into the AI answer pipeline per user per local day.
type QuotaUseCase interface {
	// TryConsume checks whether n more calls fit today without recording them.
	TryConsume(ctx context.Context, userID string, n int) (QuotaDecision, error)
	// Consume records n calls. It fails with a *domain.LimitError when they no longer fit.
	Consume(ctx context.Context, userID string, n int) (int, error)
	// Gate runs fn only when one call fits and records it only when fn succeeds.
	Gate(ctx context.Context, userID string, fn func(ctx context.Context) error) error
	Status(ctx context.Context, userID string) (*QuotaStatus, error)
}

type quotaUC struct {
	users    repository.UserRepository
	usage    repository.UsageRepository
	tm       repository.TransactionManager
	settings Settings
	log      *zerolog.Logger
}

func NewQuotaUseCase(users repository.UserRepository, usage repository.UsageRepository, tm repository.TransactionManager, settings Settings, logger *zerolog.Logger) *quotaUC {
	l := logger.With().Str("component", "QuotaUC").Logger()
	return &quotaUC{users: users, usage: usage, tm: tm, settings: settings.withDefaults(), log: &l}
}

// limitFor reads the daily limit from the cached plan. A lapsed grant has no quota.
func (u *quotaUC) limitFor(ctx context.Context, userID string, now time.Time) (*model.User, int, error) {
	usr, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, 0, err
	}
	if !usr.HasLiveGrant(now) {
		return usr, 0, nil
	}
	return usr, policy.For(usr.Plan).AIDailyLimit, nil
}

func (u *quotaUC) TryConsume(ctx context.Context, userID string, n int) (QuotaDecision, error) {
	defer logging.TraceDuration(u.log, "QuotaUC.TryConsume")()
	if n <= 0 {
		return QuotaDecision{}, domain.ErrInvalidArgument
	}
	now := u.settings.Clock()
	usr, limit, err := u.limitFor(ctx, userID, now)
	if err != nil {
		return QuotaDecision{}, err
	}
	subscribed := usr.HasLiveGrant(now)
	if limit <= 0 {
		metrics.IncQuotaDecision(usr.Plan, false)
		return QuotaDecision{Subscribed: subscribed, Limit: limit}, nil
	}

	used, err := u.usage.GetOrCreate(ctx, repository.NoTX, userID, model.DayOf(now, u.settings.QuotaLocation))
	if err != nil {
		return QuotaDecision{}, err
	}
	d := QuotaDecision{Allowed: used+n <= limit, Subscribed: subscribed, Limit: limit, Used: used}
	metrics.IncQuotaDecision(usr.Plan, d.Allowed)
	return d, nil
}

func (u *quotaUC) Consume(ctx context.Context, userID string, n int) (int, error) {
	defer logging.TraceDuration(u.log, "QuotaUC.Consume")()
	if n <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	now := u.settings.Clock()
	_, limit, err := u.limitFor(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	day := model.DayOf(now, u.settings.QuotaLocation)

	var count int
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		c, ok, err := u.usage.IncrementIfBelow(ctx, tx, userID, day, n, limit)
		if err != nil {
			return err
		}
		count = c
		if !ok {
			return &domain.LimitError{Err: domain.ErrAIQuotaExceeded, Limit: limit, Used: c}
		}
		return nil
	})
	return count, err
}

func (u *quotaUC) Gate(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	d, err := u.TryConsume(ctx, userID, 1)
	if err != nil {
		return err
	}
	if !d.Allowed {
		if !d.Subscribed {
			return domain.ErrSubscriptionRequired
		}
		return &domain.LimitError{Err: domain.ErrAIQuotaExceeded, Limit: d.Limit, Used: d.Used}
	}

	if err := fn(ctx); err != nil {
		metrics.IncAICall(false)
		return err
	}
	metrics.IncAICall(true)

	if _, err := u.Consume(ctx, userID, 1); err != nil {
		var le *domain.LimitError
		if errors.As(err, &le) {
			// a concurrent call took the last slot between check and consume
			logging.With(ctx, u.log).Warn().Int("limit", le.Limit).Int("used", le.Used).Msg("quota boundary race")
		}
		return err
	}
	return nil
}

func (u *quotaUC) Status(ctx context.Context, userID string) (*QuotaStatus, error) {
	defer logging.TraceDuration(u.log, "QuotaUC.Status")()
	now := u.settings.Clock()
	_, limit, err := u.limitFor(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	day := model.DayOf(now, u.settings.QuotaLocation)
	used, err := u.usage.GetOrCreate(ctx, repository.NoTX, userID, day)
	if err != nil {
		return nil, err
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaStatus{Day: day, Limit: limit, Used: used, Remaining: remaining}, nil
}
