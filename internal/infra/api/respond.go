package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/infra/logging"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Limit   *int   `json:"limit,omitempty"`
	Used    *int   `json:"used,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order with errors.Is; the first match wins.
var errorTable = []errorMapping{
	{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{domain.ErrDeviceRequired, http.StatusBadRequest, "device_required"},
	{domain.ErrUnknownPlan, http.StatusBadRequest, "unknown_plan"},
	{domain.ErrCouponNotFound, http.StatusBadRequest, "coupon_not_found"},
	{domain.ErrCouponInactive, http.StatusBadRequest, "coupon_inactive"},
	{domain.ErrCouponOutOfWindow, http.StatusBadRequest, "coupon_out_of_window"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{domain.ErrSubscriptionRequired, http.StatusPaymentRequired, "subscription_required"},
	{domain.ErrDeviceMismatch, http.StatusForbidden, "device_mismatch"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrTrialAlreadyUsed, http.StatusConflict, "trial_already_used"},
	{domain.ErrActiveSubscriptionExists, http.StatusConflict, "active_subscription_exists"},
	{domain.ErrActivePaidSubscriptionExist, http.StatusConflict, "active_paid_subscription_exists"},
	{domain.ErrCouponAlreadyUsed, http.StatusConflict, "coupon_already_used"},
	{domain.ErrCouponUsageCapReached, http.StatusConflict, "coupon_usage_cap"},
	{domain.ErrDuplicateNotesCode, http.StatusConflict, "duplicate_notes_code"},
	{domain.ErrTooManyDevices, http.StatusConflict, "too_many_devices"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{domain.ErrAIQuotaExceeded, http.StatusTooManyRequests, "ai_limit"},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// classify maps an error to its HTTP status and stable code.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, msg string, le *domain.LimitError) {
	body := errorBody{Code: code, Message: msg}
	if le != nil {
		limit, used := le.Limit, le.Used
		body.Limit, body.Used = &limit, &used
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// writeError renders err. Unexpected errors are logged and hidden from the caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	var le *domain.LimitError
	if !errors.As(err, &le) {
		le = nil
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeErrorBody(w, status, code, s.localize(r, code, msg, le), le)
}

// writeCode renders an error that has no domain sentinel behind it.
func (s *Server) writeCode(w http.ResponseWriter, r *http.Request, status int, code, fallback string) {
	writeErrorBody(w, status, code, s.localize(r, code, fallback, nil), nil)
}

// localize returns the caller's translation of code, or fallback.
func (s *Server) localize(r *http.Request, code, fallback string, le *domain.LimitError) string {
	if s.d.Messages == nil {
		return fallback
	}
	tr := s.d.Messages.Lookup(r.Header.Get("Accept-Language"))
	key := "error." + code
	if !tr.Has(key) {
		return fallback
	}
	if le != nil {
		return tr.T(key, le.Limit, le.Used)
	}
	return tr.T(key)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.ErrInvalidArgument
	}
	return nil
}
