//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edu-access-core/internal/config"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/infra/adapters/ai"
	"edu-access-core/internal/infra/api"
	"edu-access-core/internal/infra/db/memdb"
	"edu-access-core/internal/infra/i18n"
	"edu-access-core/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type apiEnv struct {
	srv  *httptest.Server
	auth usecase.AuthUseCase
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()
	store := memdb.New()
	log := newTestLogger()
	settings := usecase.Settings{TrialLength: 72 * time.Hour, TrialPlan: "basic", InstructionsURL: "https://pay.example.com/transfer"}

	plans := usecase.NewPlanUseCase(store.Plans(), log)
	coupons := usecase.NewCouponUseCase(store.Coupons(), store.Subscriptions(), store.Plans(), settings, log)
	subs := usecase.NewSubscriptionUseCase(store.Plans(), store.Subscriptions(), store.Users(), coupons, store, settings, log)
	pays := usecase.NewPaymentUseCase(store.Payments(), store.Plans(), store.Subscriptions(), store.Users(), coupons, store, settings, log)
	sweep := usecase.NewSweepUseCase(store.Subscriptions(), store.Users(), store.Payments(), store, settings, log)
	quota := usecase.NewQuotaUseCase(store.Users(), store.Usage(), store, settings, log)
	auth := usecase.NewAuthUseCase(store.Users(), store, nil, nil, settings, log)

	basic, err := model.NewPlan("p-basic", "basic", "Basic", decimal.NewFromInt(100), 30)
	require.NoError(t, err)
	require.NoError(t, plans.Create(ctx, basic))

	noop := &ai.NoopAnswerer{}
	s := api.NewServer(api.Deps{
		Plans:    plans,
		Coupons:  coupons,
		Subs:     subs,
		Payments: pays,
		Sweep:    sweep,
		Quota:    quota,
		Auth:     auth,
		Answerer: ai.NewMeteredAnswerer(noop, quota),
		Tokens:   api.NewTokenManager("test-secret", time.Minute, time.Hour),
		Messages: i18n.MustLoadEmbedded(),
	}, config.HTTPConfig{RequestTimeout: 5 * time.Second}, log)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &apiEnv{srv: srv, auth: auth}
}

type call struct {
	method, path, token, device, lang string
	body                              any
}

func (e *apiEnv) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(c.method, e.srv.URL+c.path, rd)
	require.NoError(t, err)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.device != "" {
		req.Header.Set("X-Device-Id", c.device)
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *apiEnv) login(t *testing.T, user, device string) string {
	t.Helper()
	status, body := e.do(t, call{method: "POST", path: "/auth/login", body: map[string]string{
		"username": user, "password": "password123", "device_id": device,
	}})
	require.Equal(t, http.StatusOK, status, "login %s on %s: %v", user, device, body)
	return body["tokens"].(map[string]any)["access_token"].(string)
}

func (e *apiEnv) user(t *testing.T, name string, staff bool) {
	t.Helper()
	_, err := e.auth.CreateUser(context.Background(), name, "password123", staff)
	require.NoError(t, err)
}

func errCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	s, _ := e["code"].(string)
	return s
}

func TestServer_PublicRoutes(t *testing.T) {
	env := newAPIEnv(t)

	t.Run("should report health", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/healthz"})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("should list active plans", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/plans"})
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["plans"], 1)
	})

	t.Run("should require a bearer token", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/me"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", errCode(body))
	})
}

func TestServer_DeviceBinding(t *testing.T) {
	env := newAPIEnv(t)
	env.user(t, "alice", false)

	t.Run("should reject login without a device", func(t *testing.T) {
		status, body := env.do(t, call{method: "POST", path: "/auth/login", body: map[string]string{
			"username": "alice", "password": "password123",
		}})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "device_required", errCode(body))
	})

	tokA := env.login(t, "alice", "A")

	t.Run("should accept the active device", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/me", token: tokA, device: "A"})
		require.Equal(t, http.StatusOK, status)
		ent := body["entitlements"].(map[string]any)
		assert.Equal(t, "none", ent["plan"])
	})

	t.Run("should reject a request without the device header", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/me", token: tokA})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "device_required", errCode(body))
	})

	t.Run("should reject the token on another device", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/me", token: tokA, device: "B"})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "device_mismatch", errCode(body))
	})

	t.Run("should move the session to the newest device", func(t *testing.T) {
		tokB := env.login(t, "alice", "B")

		status, _ := env.do(t, call{method: "GET", path: "/me", token: tokB, device: "B"})
		assert.Equal(t, http.StatusOK, status)
		status, body := env.do(t, call{method: "GET", path: "/me", token: tokA, device: "A"})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "device_mismatch", errCode(body))
	})

	t.Run("should refuse a third device", func(t *testing.T) {
		status, body := env.do(t, call{method: "POST", path: "/auth/login", body: map[string]string{
			"username": "alice", "password": "password123", "device_id": "C",
		}})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "too_many_devices", errCode(body))
	})
}

func TestServer_TrialAndQuota(t *testing.T) {
	env := newAPIEnv(t)
	env.user(t, "bob", false)
	tok := env.login(t, "bob", "phone")
	ask := call{method: "POST", path: "/ai/ask", token: tok, device: "phone", body: map[string]any{"question": "what is ATP?"}}

	t.Run("should demand a subscription before asking", func(t *testing.T) {
		status, body := env.do(t, ask)
		assert.Equal(t, http.StatusPaymentRequired, status)
		assert.Equal(t, "subscription_required", errCode(body))
	})

	t.Run("should grant a single trial", func(t *testing.T) {
		status, body := env.do(t, call{method: "POST", path: "/subscriptions/trial", token: tok, device: "phone", body: map[string]string{}})
		require.Equal(t, http.StatusCreated, status, "%v", body)
		assert.Equal(t, "trial", body["status"])

		status, body = env.do(t, call{method: "POST", path: "/subscriptions/trial", token: tok, device: "phone", body: map[string]string{}})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "trial_already_used", errCode(body))
	})

	t.Run("should refuse sources outside the plan", func(t *testing.T) {
		c := ask
		c.body = map[string]any{"question": "q", "sources": []string{"old_exam"}}
		status, body := env.do(t, c)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "source_not_allowed", errCode(body))
	})

	t.Run("should stop at the daily limit", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			status, body := env.do(t, ask)
			require.Equal(t, http.StatusOK, status, "call %d: %v", i+1, body)
		}
		status, body := env.do(t, ask)
		assert.Equal(t, http.StatusTooManyRequests, status)
		assert.Equal(t, "ai_limit", errCode(body))
		e := body["error"].(map[string]any)
		assert.EqualValues(t, 10, e["limit"])
		assert.EqualValues(t, 10, e["used"])

		status, body = env.do(t, call{method: "GET", path: "/ai/quota", token: tok, device: "phone"})
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 0, body["remaining"])
	})
}

func TestServer_PaymentFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.user(t, "carol", false)
	env.user(t, "admin", true)
	tok := env.login(t, "carol", "laptop")
	staff := env.login(t, "admin", "")

	status, body := env.do(t, call{method: "POST", path: "/payments", token: tok, device: "laptop", body: map[string]string{"plan_code": "basic"}})
	require.Equal(t, http.StatusCreated, status, "%v", body)
	assert.Equal(t, "pending", body["status"])
	assert.Len(t, body["notes_code"], 8)
	paymentID := body["payment_id"].(string)

	t.Run("should let the payer read their payment", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/payments/" + paymentID, token: tok, device: "laptop"})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, paymentID, body["id"])
	})

	t.Run("should keep admin routes for staff", func(t *testing.T) {
		status, body := env.do(t, call{method: "POST", path: "/admin/payments/" + paymentID + "/status", token: tok, device: "laptop", body: map[string]string{"status": "paid"}})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "forbidden", errCode(body))
	})

	t.Run("should reject an unknown status", func(t *testing.T) {
		status, _ := env.do(t, call{method: "POST", path: "/admin/payments/" + paymentID + "/status", token: staff, body: map[string]string{"status": "refunded"}})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("should activate the grant on confirmation", func(t *testing.T) {
		status, body := env.do(t, call{method: "POST", path: "/admin/payments/" + paymentID + "/status", token: staff, body: map[string]string{"status": "paid"}})
		require.Equal(t, http.StatusOK, status, "%v", body)
		assert.Equal(t, "paid", body["status"])

		status, body = env.do(t, call{method: "GET", path: "/me", token: tok, device: "laptop"})
		require.Equal(t, http.StatusOK, status)
		ent := body["entitlements"].(map[string]any)
		assert.Equal(t, "basic", ent["plan"])
		assert.Equal(t, true, ent["is_active_subscription"])
	})

	t.Run("should return 404 for a missing payment", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/payments/nope", token: tok, device: "laptop"})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", errCode(body))
	})
}

func TestServer_CouponValidation(t *testing.T) {
	env := newAPIEnv(t)
	env.user(t, "dave", false)
	env.user(t, "admin", true)
	tok := env.login(t, "dave", "tab")
	staff := env.login(t, "admin", "")

	status, body := env.do(t, call{method: "POST", path: "/admin/coupons", token: staff, body: map[string]any{"code": "save20", "percent": 20}})
	require.Equal(t, http.StatusCreated, status, "%v", body)
	assert.Equal(t, "SAVE20", body["code"])

	t.Run("should quote a valid coupon", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/coupons/validate?code=save20&plan_code=basic", token: tok, device: "tab"})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["valid"])
		quote := body["quote"].(map[string]any)
		final := decimal.RequireFromString(quote["final_price"].(string))
		assert.True(t, final.Equal(decimal.NewFromInt(80)), "got %s", final)
	})

	t.Run("should explain a rejected coupon inline", func(t *testing.T) {
		status, body := env.do(t, call{method: "GET", path: "/coupons/validate?code=nope&plan_code=basic", token: tok, device: "tab"})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, "coupon_not_found", body["reason"])
	})
}

func TestServer_LocalizedErrors(t *testing.T) {
	env := newAPIEnv(t)
	env.user(t, "farid", false)
	creds := map[string]string{"username": "farid", "password": "wrong-password", "device_id": "A"}

	t.Run("should answer in English by default", func(t *testing.T) {
		status, body := env.do(t, call{method: "POST", path: "/auth/login", body: creds})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid_credentials", errCode(body))
		assert.Equal(t, "Wrong username or password.", body["error"].(map[string]any)["message"])
	})

	t.Run("should follow Accept-Language", func(t *testing.T) {
		status, body := env.do(t, call{method: "POST", path: "/auth/login", body: creds, lang: "fa-IR,fa;q=0.9"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid_credentials", errCode(body))
		assert.Equal(t, "نام کاربری یا رمز عبور اشتباه است.", body["error"].(map[string]any)["message"])
	})
}
