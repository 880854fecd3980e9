// Command demo walks one user through trial, payment, AI quota and expiry
// against the in-memory store. No database or Redis is needed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"edu-access-core/internal/application"
	"edu-access-core/internal/config"
	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/adapter"
	aiAdapters "edu-access-core/internal/infra/adapters/ai"
	"edu-access-core/internal/infra/db/memdb"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := logging.New(config.LogConfig{Level: "warn", Format: "console"}, true)

	// a movable clock lets the demo fast-forward past expiry
	now := time.Now()
	settings := usecase.Settings{TrialLength: 72 * time.Hour, TrialPlan: model.PlanBasic, Clock: func() time.Time { return now }}
	core := application.NewCore(application.MemoryStores(memdb.New()), nil, settings, logger)

	if _, err := core.SeedCatalog(ctx); err != nil {
		log.Fatalf("seed: %v", err)
	}
	u, err := core.Auth.CreateUser(ctx, "student", "correct-horse", false)
	if err != nil {
		log.Fatalf("create user: %v", err)
	}
	if _, err := core.Auth.Login(ctx, "student", "correct-horse", "phone-1"); err != nil {
		log.Fatalf("login: %v", err)
	}

	step("1. start trial")
	trial, err := core.Subs.StartTrial(ctx, u.ID, "")
	must(err)
	fmt.Printf("   %s on %s until %s\n", trial.Status, trial.PlanCode, trial.EndsAt.Format(time.RFC3339))

	step("2. ask the AI until the daily limit")
	ask := aiAdapters.NewMeteredAnswerer(&aiAdapters.NoopAnswerer{}, core.Quota)
	for i := 1; ; i++ {
		_, err := ask.Answer(ctx, adapter.Question{UserID: u.ID, Text: "q"})
		var le *domain.LimitError
		if errors.As(err, &le) {
			fmt.Printf("   call %d denied: limit=%d used=%d\n", i, le.Limit, le.Used)
			break
		}
		must(err)
	}

	step("3. pay for premium by bank transfer")
	rc, err := core.Payments.Create(ctx, usecase.CreatePaymentInput{UserID: u.ID, PlanCode: model.PlanPremium})
	must(err)
	fmt.Printf("   payment %s notes_code=%s price=%s\n", rc.Payment.ID, rc.Payment.NotesCode, rc.Payment.FinalPrice.StringFixed(2))

	step("4. staff confirms the transfer")
	_, err = core.Payments.Confirm(ctx, rc.Payment.ID, model.PaymentStatusPaid)
	must(err)
	printEntitlements(ctx, core, u.ID)

	step("5. forty days later the sweep expires the grant")
	now = now.Add(40 * 24 * time.Hour)
	res, err := core.Sweep.Sweep(ctx, now)
	must(err)
	fmt.Printf("   expired=%d caches_cleared=%d\n", res.Expired, res.CachesCleared)
	printEntitlements(ctx, core, u.ID)
}

func printEntitlements(ctx context.Context, core *application.Core, userID string) {
	ent, err := core.Subs.Entitlements(ctx, userID)
	must(err)
	fmt.Printf("   plan=%s active=%t ai_daily_limit=%d sources=%v\n", ent.Plan, ent.Active, ent.AIDailyLimit, ent.AllowedSources)
}

func step(s string) { fmt.Println(s) }

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
