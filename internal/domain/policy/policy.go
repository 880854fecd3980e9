// Package policy maps plan tiers to entitlements. It has no state and no I/O;
// callers pass the cached user fields and the current time.
package policy

import (
	"time"

	"edu-access-core/internal/domain/model"
)

// Content sources a plan may unlock.
const (
	SourceQBank      = "qbank"
	SourceExamReview = "exam_review"
	SourceOldExam    = "old_exam"
)

// Policy is the entitlement row of one tier.
type Policy struct {
	AIDailyLimit   int
	AllowedSources []string
	AllowTBL       bool
	AllowFlipped   bool
}

// Allows reports whether source is unlocked by the policy.
func (p Policy) Allows(source string) bool {
	for _, s := range p.AllowedSources {
		if s == source {
			return true
		}
	}
	return false
}

var table = map[string]Policy{
	model.PlanNone:     {},
	model.PlanBasic:    {AIDailyLimit: 10, AllowedSources: []string{SourceQBank}},
	model.PlanPremium:  {AIDailyLimit: 30, AllowedSources: []string{SourceQBank, SourceExamReview}},
	model.PlanAdvanced: {AIDailyLimit: 100, AllowedSources: []string{SourceQBank, SourceExamReview, SourceOldExam}, AllowTBL: true, AllowFlipped: true},
}

// For returns the policy of planCode; unknown codes get the no-access row.
func For(planCode string) Policy {
	p, ok := table[model.NormalizePlanCode(planCode)]
	if !ok {
		return Policy{}
	}
	// copy so callers cannot mutate the shared table
	p.AllowedSources = append([]string(nil), p.AllowedSources...)
	return p
}

// Visibility is the flashcard listing filter.
type Visibility string

const (
	VisibilityOwn         Visibility = "own"
	VisibilityOwnAndStaff Visibility = "own_and_staff"
)

// CanViewQuestions requires a live grant on a tier with at least one source.
func CanViewQuestions(u *model.User, now time.Time) bool {
	return u.HasLiveGrant(now) && len(For(u.Plan).AllowedSources) > 0
}

// CanViewLessonContent requires a live grant on any tier but none.
func CanViewLessonContent(u *model.User, now time.Time) bool {
	return u.HasLiveGrant(now) && model.NormalizePlanCode(u.Plan) != model.PlanNone
}

// CanUseFlashcards requires a live premium or advanced grant.
func CanUseFlashcards(u *model.User, now time.Time) bool {
	if !u.HasLiveGrant(now) {
		return false
	}
	switch model.NormalizePlanCode(u.Plan) {
	case model.PlanPremium, model.PlanAdvanced:
		return true
	}
	return false
}

// FlashcardVisibility decides whose cards a user may list. It depends on the
// tier only, matching how flashcards are filtered for lapsed users too.
func FlashcardVisibility(u *model.User) Visibility {
	if u == nil {
		return VisibilityOwn
	}
	switch model.NormalizePlanCode(u.Plan) {
	case model.PlanPremium, model.PlanAdvanced:
		return VisibilityOwnAndStaff
	}
	return VisibilityOwn
}

// Entitlements bundles every verdict for one user at one instant.
type Entitlements struct {
	Plan                 string     `json:"plan"`
	Active               bool       `json:"is_active_subscription"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	AllowedSources       []string   `json:"allowed_sources"`
	AIDailyLimit         int        `json:"ai_daily_limit"`
	AllowTBL             bool       `json:"allow_tbl"`
	AllowFlipped         bool       `json:"allow_flipped"`
	CanViewQuestions     bool       `json:"can_view_questions"`
	CanViewLessonContent bool       `json:"can_view_lesson_content"`
	CanUseFlashcards     bool       `json:"can_use_flashcards"`
	FlashcardVisibility  Visibility `json:"flashcard_visibility"`
}

// Evaluate computes the entitlements of u at now.
func Evaluate(u *model.User, now time.Time) Entitlements {
	plan := model.NormalizePlanCode(u.Plan)
	p := For(plan)
	if !u.HasLiveGrant(now) {
		p = Policy{AllowedSources: []string{}}
	}
	return Entitlements{
		Plan:                 plan,
		Active:               u.HasLiveGrant(now),
		ExpiresAt:            u.ExpiresAt,
		AllowedSources:       p.AllowedSources,
		AIDailyLimit:         p.AIDailyLimit,
		AllowTBL:             p.AllowTBL,
		AllowFlipped:         p.AllowFlipped,
		CanViewQuestions:     CanViewQuestions(u, now),
		CanViewLessonContent: CanViewLessonContent(u, now),
		CanUseFlashcards:     CanUseFlashcards(u, now),
		FlashcardVisibility:  FlashcardVisibility(u),
	}
}
