package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Compile-time check
var _ AuthUseCase = (*authUC)(nil)

// RateLimiter is the fixed-window throttle used for login attempts.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// AuthUseCase checks credentials and binds sessions to at most two devices.
type AuthUseCase interface {
	// Login verifies credentials and records deviceID as the active device.
	Login(ctx context.Context, username, password, deviceID string) (*model.User, error)
	// Authorize checks that deviceID is the account's active device.
	Authorize(ctx context.Context, userID, deviceID string) (*model.User, error)
	// CreateUser stores a new account with a bcrypt hash. Used by seeding tools.
	CreateUser(ctx context.Context, username, password string, staff bool) (*model.User, error)
}

type authUC struct {
	users    repository.UserRepository
	tm       repository.TransactionManager
	limiter  RateLimiter // nil disables throttling
	keyFn    func(username string) string
	settings Settings
	log      *zerolog.Logger
}

func NewAuthUseCase(users repository.UserRepository, tm repository.TransactionManager, limiter RateLimiter, keyFn func(string) string, settings Settings, logger *zerolog.Logger) *authUC {
	l := logger.With().Str("component", "AuthUC").Logger()
	if keyFn == nil {
		keyFn = func(u string) string { return "login:" + strings.ToLower(strings.TrimSpace(u)) }
	}
	return &authUC{users: users, tm: tm, limiter: limiter, keyFn: keyFn, settings: settings.withDefaults(), log: &l}
}

func (u *authUC) Login(ctx context.Context, username, password, deviceID string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "AuthUC.Login")()
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrInvalidArgument
	}

	if u.limiter != nil && u.settings.LoginRateLimit > 0 {
		ok, err := u.limiter.Allow(ctx, u.keyFn(username), u.settings.LoginRateLimit, u.settings.LoginRateWindow)
		if err != nil {
			// fail open when the limiter store is down
			u.log.Warn().Err(err).Msg("login rate limiter unavailable")
		} else if !ok {
			metrics.IncLogin("throttled")
			return nil, domain.ErrTooManyAttempts
		}
	}

	usr, err := u.users.FindByUsername(ctx, repository.NoTX, username)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncLogin("bad_credentials")
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(password)) != nil {
		metrics.IncLogin("bad_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	if usr.IsPrivileged() {
		metrics.IncLogin("ok")
		return usr, nil
	}
	if _, err := model.NormalizeDeviceID(deviceID); err != nil {
		return nil, err
	}

	var bound *model.User
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		locked, err := u.users.LockByID(ctx, tx, usr.ID)
		if err != nil {
			return err
		}
		if err := locked.BindDevice(deviceID); err != nil {
			return err
		}
		if err := u.users.UpdateDevices(ctx, tx, locked); err != nil {
			return err
		}
		bound = locked
		return nil
	})
	if errors.Is(err, domain.ErrTooManyDevices) {
		metrics.IncLogin("too_many_devices")
		logging.With(ctx, u.log).Info().Str("user_id", usr.ID).Msg("login rejected: both device slots taken")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	metrics.IncLogin("ok")
	return bound, nil
}

func (u *authUC) Authorize(ctx context.Context, userID, deviceID string) (*model.User, error) {
	usr, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if err := usr.AuthorizeDevice(deviceID); err != nil {
		reason := "mismatch"
		if errors.Is(err, domain.ErrDeviceRequired) {
			reason = "missing"
		}
		metrics.IncDeviceRejection(reason)
		return nil, err
	}
	return usr, nil
}

func (u *authUC) CreateUser(ctx context.Context, username, password string, staff bool) (*model.User, error) {
	defer logging.TraceDuration(u.log, "AuthUC.CreateUser")()
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		return nil, domain.ErrInvalidArgument
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	usr := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		IsStaff:      staff,
		Plan:         model.PlanNone,
		CreatedAt:    u.settings.Clock(),
	}
	if err := u.users.Save(ctx, repository.NoTX, usr); err != nil {
		return nil, err
	}
	return usr, nil
}
