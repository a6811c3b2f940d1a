package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

type ruleSourceStub struct {
	rules   []models.DiscountRule
	askedOn []time.Time
}

func (s *ruleSourceStub) ActiveAsOf(ctx context.Context, date time.Time) ([]models.DiscountRule, error) {
	s.askedOn = append(s.askedOn, date)
	return s.rules, nil
}

type enrollmentSourceStub struct {
	enrollments []models.Enrollment
	calls       int
}

func (s *enrollmentSourceStub) ByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error) {
	s.calls++
	return s.enrollments, nil
}

type applicationStoreStub struct {
	inserted []models.DiscountApplication
}

func (s *applicationStoreStub) Insert(ctx context.Context, ext sqlx.ExtContext, app *models.DiscountApplication) error {
	s.inserted = append(s.inserted, *app)
	return nil
}

func (s *applicationStoreStub) ExistsForReceipt(ctx context.Context, ext sqlx.ExtContext, legacyReceiptID, ruleID string) (bool, error) {
	for _, app := range s.inserted {
		if app.LegacyReceiptID != nil && *app.LegacyReceiptID == legacyReceiptID && app.RuleID == ruleID {
			return true, nil
		}
	}
	return false, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func baseRule(id string, pct int64) models.DiscountRule {
	return models.DiscountRule{
		ID:            id,
		Pattern:       "test rule " + id,
		Type:          models.DiscountTypePercentage,
		Amount:        decimal.NewFromInt(pct),
		EffectiveDate: date(2020, 1, 1),
		IsActive:      true,
	}
}

func enrollment(tod models.TimeOfDay) models.Enrollment {
	return models.Enrollment{TimeOfDay: tod, Status: models.EnrollmentStatusActive}
}

func newTestMatcher(rules *ruleSourceStub, enr *enrollmentSourceStub, apps *applicationStoreStub) *Matcher {
	if enr == nil {
		enr = &enrollmentSourceStub{}
	}
	if apps == nil {
		apps = &applicationStoreStub{}
	}
	return New(rules, enr, apps, nil)
}

func TestResolveTermAllowListPrecedence(t *testing.T) {
	openRule := baseRule("open", 10)
	openRule.AppliesToCycle = models.CycleBachelor

	restricted := baseRule("restricted", 20)
	restricted.AppliesToTerms = []string{"OTHER"}
	restricted.AppliesToCycle = models.CycleBachelor

	rules := &ruleSourceStub{rules: []models.DiscountRule{openRule, restricted}}
	m := newTestMatcher(rules, nil, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		StudentID: "stu-1",
		Term:      models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Cycle:     models.CycleBachelor,
		Amount:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "open", res.Matches[0].Rule.ID)
	assert.True(t, res.DiscountTotal.Equal(decimal.NewFromInt(10)))
}

func TestResolveCycleMismatchSkips(t *testing.T) {
	rule := baseRule("ba-only", 10)
	rule.AppliesToCycle = models.CycleBachelor

	rules := &ruleSourceStub{rules: []models.DiscountRule{rule}}
	m := newTestMatcher(rules, nil, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		Term:   models.Term{Code: "T1", StartDate: date(2024, 1, 15)},
		Cycle:  models.CycleMaster,
		Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.True(t, res.FinalAmount.Equal(decimal.NewFromInt(100)))
}

func TestResolvePricesAtTermStartNotPaymentDate(t *testing.T) {
	early := baseRule("early-2022", 15)
	until := date(2022, 6, 1)
	early.EffectiveDate = date(2022, 1, 1)
	early.EffectiveUntil = &until

	late := baseRule("late-2023", 25)
	late.EffectiveDate = date(2023, 1, 1)

	rules := &ruleSourceStub{rules: []models.DiscountRule{early, late}}
	m := newTestMatcher(rules, nil, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		Term:        models.Term{Code: "2022T1", StartDate: date(2022, 1, 15)},
		PaymentDate: date(2023, 10, 15),
		Amount:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "early-2022", res.Matches[0].Rule.ID)
	require.Len(t, rules.askedOn, 1)
	assert.Equal(t, date(2022, 1, 15), rules.askedOn[0])
}

func TestResolveWeightedAverageBlend(t *testing.T) {
	morning := baseRule("morning-15", 15)
	morning.Schedule = &models.ScheduleFilter{
		TimeOfDay: []models.TimeOfDay{models.TimeOfDayMorning},
		Method:    models.CalcWeightedAverage,
	}
	evening := baseRule("evening-10", 10)
	evening.Schedule = &models.ScheduleFilter{
		TimeOfDay: []models.TimeOfDay{models.TimeOfDayEvening},
		Method:    models.CalcWeightedAverage,
	}

	rules := &ruleSourceStub{rules: []models.DiscountRule{morning, evening}}
	enr := &enrollmentSourceStub{enrollments: []models.Enrollment{
		enrollment(models.TimeOfDayMorning), enrollment(models.TimeOfDayMorning),
		enrollment(models.TimeOfDayEvening), enrollment(models.TimeOfDayEvening),
	}}
	m := newTestMatcher(rules, enr, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		StudentID: "stu-1",
		Term:      models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount:    decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	// 15% on 2 of 4 plus 10% on 2 of 4 blends to 12.5% of the invoice.
	assert.True(t, res.DiscountTotal.Equal(decimal.NewFromInt(50)),
		"got %s", res.DiscountTotal)
	assert.True(t, res.FinalAmount.Equal(decimal.NewFromInt(350)))
	assert.Equal(t, 1, enr.calls, "enrollments should load once")
}

func TestResolveWeightedAverageUnevenSplitIsProportional(t *testing.T) {
	morning := baseRule("morning-15", 15)
	morning.Schedule = &models.ScheduleFilter{
		TimeOfDay: []models.TimeOfDay{models.TimeOfDayMorning},
		Method:    models.CalcWeightedAverage,
	}

	rules := &ruleSourceStub{rules: []models.DiscountRule{morning}}
	enr := &enrollmentSourceStub{enrollments: []models.Enrollment{
		enrollment(models.TimeOfDayMorning),
		enrollment(models.TimeOfDayEvening), enrollment(models.TimeOfDayEvening), enrollment(models.TimeOfDayEvening),
	}}
	m := newTestMatcher(rules, enr, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		Term:   models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount: decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	// 15% weighted by 1/4 of the schedule = 3.75% of 400.
	assert.True(t, res.DiscountTotal.Equal(decimal.NewFromInt(15)),
		"got %s", res.DiscountTotal)
}

func TestResolveMinCoursesGate(t *testing.T) {
	rule := baseRule("bulk-evening", 10)
	rule.Schedule = &models.ScheduleFilter{
		TimeOfDay:  []models.TimeOfDay{models.TimeOfDayEvening},
		MinCourses: 3,
		Method:     models.CalcFlatRate,
	}

	rules := &ruleSourceStub{rules: []models.DiscountRule{rule}}
	enr := &enrollmentSourceStub{enrollments: []models.Enrollment{
		enrollment(models.TimeOfDayEvening), enrollment(models.TimeOfDayEvening),
	}}
	m := newTestMatcher(rules, enr, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		Term:   models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestResolvePerClassFixedAmount(t *testing.T) {
	rule := baseRule("per-class", 0)
	rule.Type = models.DiscountTypeFixed
	rule.Amount = decimal.NewFromInt(5)
	rule.Schedule = &models.ScheduleFilter{
		TimeOfDay: []models.TimeOfDay{models.TimeOfDayEvening},
		Method:    models.CalcPerClass,
	}

	rules := &ruleSourceStub{rules: []models.DiscountRule{rule}}
	enr := &enrollmentSourceStub{enrollments: []models.Enrollment{
		enrollment(models.TimeOfDayEvening), enrollment(models.TimeOfDayEvening), enrollment(models.TimeOfDayEvening),
	}}
	m := newTestMatcher(rules, enr, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		Term:   models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount: decimal.NewFromInt(300),
	})
	require.NoError(t, err)
	assert.True(t, res.DiscountTotal.Equal(decimal.NewFromInt(15)))
}

func TestResolveAdditiveByDefaultExclusiveWins(t *testing.T) {
	a := baseRule("a", 10)
	b := baseRule("b", 5)

	rules := &ruleSourceStub{rules: []models.DiscountRule{a, b}}
	m := newTestMatcher(rules, nil, nil)
	txn := Transaction{
		Term:   models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount: decimal.NewFromInt(100),
	}

	res, err := m.Resolve(context.Background(), txn)
	require.NoError(t, err)
	assert.True(t, res.DiscountTotal.Equal(decimal.NewFromInt(15)), "independent matches combine additively")

	exclusive := baseRule("exclusive", 12)
	exclusive.IsExclusive = true
	rules.rules = append(rules.rules, exclusive)

	res, err = m.Resolve(context.Background(), txn)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "exclusive", res.Matches[0].Rule.ID)
	assert.True(t, res.DiscountTotal.Equal(decimal.NewFromInt(12)))
}

func TestResolveDiscountNeverExceedsAmount(t *testing.T) {
	rule := baseRule("fixed-big", 0)
	rule.Type = models.DiscountTypeFixed
	rule.Amount = decimal.NewFromInt(500)

	rules := &ruleSourceStub{rules: []models.DiscountRule{rule}}
	m := newTestMatcher(rules, nil, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		Term:   models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.True(t, res.FinalAmount.IsZero())
}

func TestApplyPersistsImmutableApplications(t *testing.T) {
	rule := baseRule("ten-off", 10)
	rules := &ruleSourceStub{rules: []models.DiscountRule{rule}}
	apps := &applicationStoreStub{}
	m := newTestMatcher(rules, nil, apps)

	receipt := "R-88123"
	_, err := m.Apply(context.Background(), nil, Transaction{
		StudentID:       "stu-7",
		Term:            models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount:          decimal.NewFromInt(200),
		LegacyReceiptID: &receipt,
	})
	require.NoError(t, err)

	require.Len(t, apps.inserted, 1)
	app := apps.inserted[0]
	assert.Equal(t, "ten-off", app.RuleID)
	assert.Equal(t, models.ApplicationStatusSystemComputed, app.Status)
	assert.True(t, app.DiscountAmount.Equal(decimal.NewFromInt(20)))
	assert.True(t, app.FinalAmount.Equal(decimal.NewFromInt(180)))
	require.NotNil(t, app.LegacyReceiptID)
	assert.Equal(t, "R-88123", *app.LegacyReceiptID)
	assert.NotEmpty(t, app.ID)
}

func TestApplySkipsAlreadyReconciledReceipt(t *testing.T) {
	rule := baseRule("ten-off", 10)
	rules := &ruleSourceStub{rules: []models.DiscountRule{rule}}
	apps := &applicationStoreStub{}
	m := newTestMatcher(rules, nil, apps)

	receipt := "R-88123"
	txn := Transaction{
		StudentID:       "stu-7",
		Term:            models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount:          decimal.NewFromInt(200),
		LegacyReceiptID: &receipt,
	}

	_, err := m.Apply(context.Background(), nil, txn)
	require.NoError(t, err)
	_, err = m.Apply(context.Background(), nil, txn)
	require.NoError(t, err)
	assert.Len(t, apps.inserted, 1, "a receipt reconciles against a rule once")
}

func TestResolveSkipsInvalidRuleConfig(t *testing.T) {
	invalid := baseRule("", 10) // missing required id
	valid := baseRule("ok", 5)

	rules := &ruleSourceStub{rules: []models.DiscountRule{invalid, valid}}
	m := newTestMatcher(rules, nil, nil)

	res, err := m.Resolve(context.Background(), Transaction{
		Term:   models.Term{ID: "t1", Code: "T1", StartDate: date(2024, 1, 15)},
		Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "ok", res.Matches[0].Rule.ID)
}
