package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"edu-access-core/internal/config"
	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/adapter"
	"edu-access-core/internal/infra/i18n"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"
	"edu-access-core/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the use cases the HTTP surface calls into.
type Deps struct {
	Plans    usecase.PlanUseCase
	Coupons  usecase.CouponUseCase
	Subs     usecase.SubscriptionUseCase
	Payments usecase.PaymentUseCase
	Sweep    usecase.SweepUseCase
	Quota    usecase.QuotaUseCase
	Auth     usecase.AuthUseCase
	Answerer adapter.Answerer // already metered
	Tokens   *TokenManager
	Messages *i18n.Catalog // nil keeps the English error strings
	Clock    func() time.Time
}

type Server struct {
	d            Deps
	deviceHeader string
	timeout      time.Duration
	srv          *http.Server
	log          *zerolog.Logger
}

func NewServer(d Deps, cfg config.HTTPConfig, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	if d.Clock == nil {
		d.Clock = time.Now
	}
	hdr := cfg.DeviceHeader
	if hdr == "" {
		hdr = "X-Device-Id"
	}
	s := &Server{d: d, deviceHeader: hdr, timeout: cfg.RequestTimeout, log: &l}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/plans", s.listPlans)
	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh", s.refresh)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/me", s.me)
		r.Get("/coupons/validate", s.validateCoupon)

		r.Get("/subscriptions", s.listSubscriptions)
		r.Post("/subscriptions/trial", s.startTrial)
		r.Post("/subscriptions/purchase", s.purchase)

		r.Get("/payments", s.listPayments)
		r.Post("/payments", s.createPayment)
		r.Get("/payments/{id}", s.getPayment)

		r.Get("/ai/quota", s.quotaStatus)
		r.Post("/ai/ask", s.ask)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireStaff)
			r.Post("/payments/{id}/status", s.confirmPayment)
			r.Post("/sweep", s.runSweep)
			r.Post("/cache/rebuild", s.rebuildCaches)
			r.Post("/coupons", s.createCoupon)
			r.Post("/plans", s.createPlan)
		})
	})
	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type ctxUserKey struct{}

func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxUserKey{}).(*model.User)
	return u
}

// authenticate requires a valid access token and, for regular accounts,
// the device the token was issued for as the account's active device.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			s.writeCode(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := s.d.Tokens.Parse(tok, AccessToken)
		if err != nil {
			s.writeCode(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		device := strings.TrimSpace(r.Header.Get(s.deviceHeader))
		if !claims.Staff {
			if device == "" {
				metrics.IncDeviceRejection("missing")
				s.writeCode(w, r, http.StatusForbidden, "device_required", domain.ErrDeviceRequired.Error())
				return
			}
			if claims.DeviceID != "" && claims.DeviceID != device {
				metrics.IncDeviceRejection("token_mismatch")
				s.writeCode(w, r, http.StatusForbidden, "device_mismatch", domain.ErrDeviceMismatch.Error())
				return
			}
		}

		user, err := s.d.Auth.Authorize(r.Context(), claims.Subject, device)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			s.writeCode(w, r, http.StatusUnauthorized, "unauthorized", "unknown account")
			return
		case errors.Is(err, domain.ErrDeviceRequired):
			s.writeCode(w, r, http.StatusForbidden, "device_required", err.Error())
			return
		default:
			s.writeError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), user.ID)
		if device != "" {
			ctx = logging.WithDeviceID(ctx, device)
		}
		ctx = context.WithValue(ctx, ctxUserKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := userFrom(r.Context())
		if u == nil || !u.IsPrivileged() {
			metrics.IncAdminCommand("admin", "unauthorized")
			s.writeError(w, r, domain.ErrForbidden)
			return
		}
		metrics.IncAdminCommand("admin", "authorized")
		logging.With(r.Context(), s.log).Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}
