package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/policy"
	"edu-access-core/internal/domain/ports/adapter"
	"edu-access-core/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ===== public =====

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.d.Plans.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": mapSlice(plans, toPlanView)})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = r.Header.Get(s.deviceHeader)
	}
	u, err := s.d.Auth.Login(r.Context(), req.Username, req.Password, req.DeviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	device := ""
	if u.ActiveDevice != nil {
		device = *u.ActiveDevice
	}
	pair, err := s.d.Tokens.Issue(u.ID, device, u.IsPrivileged())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair, "user": toUserView(u)})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh re-issues tokens only while the refresh token's device is still active.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	claims, err := s.d.Tokens.Parse(req.RefreshToken, RefreshToken)
	if err != nil {
		s.writeCode(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return
	}
	u, err := s.d.Auth.Authorize(r.Context(), claims.Subject, claims.DeviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.writeCode(w, r, http.StatusUnauthorized, "unauthorized", "unknown account")
			return
		}
		s.writeError(w, r, err)
		return
	}
	pair, err := s.d.Tokens.Issue(u.ID, claims.DeviceID, u.IsPrivileged())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair})
}

// ===== authenticated =====

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	ent, err := s.d.Subs.Entitlements(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserView(u), "entitlements": ent})
}

// validateCoupon answers 200 with valid=false for coupon rejections so
// checkout forms can show the reason inline.
func (s *Server) validateCoupon(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	q := r.URL.Query()
	quote, err := s.d.Coupons.Quote(r.Context(), u.ID, q.Get("code"), q.Get("plan_code"))
	if err != nil {
		if isCouponRejection(err) {
			_, code := classify(err)
			var le *domain.LimitError
			if !errors.As(err, &le) {
				le = nil
			}
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": code, "message": s.localize(r, code, err.Error(), le)})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "quote": quote})
}

func isCouponRejection(err error) bool {
	for _, target := range []error{
		domain.ErrCouponNotFound,
		domain.ErrCouponInactive,
		domain.ErrCouponOutOfWindow,
		domain.ErrCouponUsageCapReached,
		domain.ErrCouponAlreadyUsed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.d.Subs.List(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": mapSlice(subs, toSubscriptionView)})
}

type trialRequest struct {
	PlanCode string `json:"plan_code"`
}

func (s *Server) startTrial(w http.ResponseWriter, r *http.Request) {
	var req trialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.d.Subs.StartTrial(r.Context(), userFrom(r.Context()).ID, req.PlanCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionView(sub))
}

type purchaseRequest struct {
	PlanCode   string `json:"plan_code"`
	CouponCode string `json:"coupon_code"`
}

func (s *Server) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.d.Subs.Purchase(r.Context(), userFrom(r.Context()).ID, req.PlanCode, req.CouponCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionView(sub))
}

type createPaymentRequest struct {
	PlanCode     string `json:"plan_code"`
	PlanID       string `json:"plan_id"`
	DiscountCode string `json:"discount_code"`
	NotesCode    string `json:"notes_code"`
	ReferenceNo  string `json:"reference_no"`
	UserNote     string `json:"user_note"`
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rc, err := s.d.Payments.Create(r.Context(), usecase.CreatePaymentInput{
		UserID:       userFrom(r.Context()).ID,
		PlanCode:     req.PlanCode,
		PlanID:       req.PlanID,
		DiscountCode: req.DiscountCode,
		NotesCode:    req.NotesCode,
		ReferenceNo:  req.ReferenceNo,
		UserNote:     req.UserNote,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"payment_id":       rc.Payment.ID,
		"notes_code":       rc.Payment.NotesCode,
		"final_price":      rc.Payment.FinalPrice,
		"status":           rc.Payment.Status,
		"subscription_id":  rc.Subscription.ID,
		"instructions_url": rc.InstructionsURL,
	})
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	ps, err := s.d.Payments.ListByUser(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": mapSlice(ps, toPaymentView)})
}

// getPayment hides other users' payments behind 404 unless the caller is staff.
func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	p, err := s.d.Payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err == nil && p.UserID != u.ID && !u.IsPrivileged() {
		err = domain.ErrNotFound
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(p))
}

func (s *Server) quotaStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.d.Quota.Status(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type askRequest struct {
	Question string   `json:"question"`
	Sources  []string `json:"sources"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	u := userFrom(r.Context())
	now := s.d.Clock()
	ent := policy.Evaluate(u, now)
	if !ent.Active {
		s.writeError(w, r, domain.ErrSubscriptionRequired)
		return
	}
	if len(req.Sources) == 0 {
		req.Sources = ent.AllowedSources
	}
	pol := policy.For(ent.Plan)
	for _, src := range req.Sources {
		if !pol.Allows(src) {
			s.writeCode(w, r, http.StatusForbidden, "source_not_allowed", "source "+src+" is not included in your plan")
			return
		}
	}

	ans, err := s.d.Answerer.Answer(r.Context(), adapter.Question{UserID: u.ID, Text: req.Question, Sources: req.Sources})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": ans.Text, "citations": ans.Citations})
}

// ===== admin =====

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := model.ParsePaymentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.d.Payments.Confirm(r.Context(), chi.URLParam(r, "id"), st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(p))
}

func (s *Server) runSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.d.Sweep.Sweep(r.Context(), s.d.Clock())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"expired":         res.Expired,
		"caches_cleared":  res.CachesCleared,
		"pending_expired": res.PendingExpired,
		"payments_closed": res.PaymentsClosed,
	})
}

func (s *Server) rebuildCaches(w http.ResponseWriter, r *http.Request) {
	n, err := s.d.Sweep.RebuildCaches(r.Context(), s.d.Clock())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"users_updated": n})
}

type createCouponRequest struct {
	Code      string     `json:"code"`
	Percent   int        `json:"percent"`
	ValidFrom *time.Time `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to"`
	MaxUses   *int       `json:"max_uses"`
}

func (s *Server) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := model.NewCoupon(uuid.NewString(), req.Code, req.Percent, req.ValidFrom, req.ValidTo, req.MaxUses)
	if err == nil {
		err = s.d.Coupons.Create(r.Context(), c)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": c.ID, "code": c.Code, "percent": c.Percent})
}

type createPlanRequest struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	DurationDays int    `json:"duration_days"`
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	p, err := model.NewPlan(uuid.NewString(), req.Code, req.Name, price, req.DurationDays)
	if err == nil {
		err = s.d.Plans.Create(r.Context(), p)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanView(p))
}
