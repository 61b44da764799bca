package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allow(scope Scope, remaining int) Decision {
	return Decision{Rule: Rule{Scope: scope}, Allowed: true, Remaining: remaining}
}

func deny(scope Scope, remaining int, resetAt time.Time) Decision {
	return Decision{Rule: Rule{Scope: scope}, Allowed: false, Remaining: remaining, ResetAt: resetAt}
}

func TestCombine_EmptyIsSkipped(t *testing.T) {
	agg := Combine(nil)
	assert.True(t, agg.Allowed)
	assert.True(t, agg.Skipped)
}

func TestCombine_AllAllowedPicksSmallestRemaining(t *testing.T) {
	agg := Combine([]Decision{
		allow(ScopeGlobal, 500),
		allow(ScopeBurst, 3),
		allow(ScopeEndpoint, 20),
	})

	assert.True(t, agg.Allowed)
	assert.Nil(t, agg.Violated)
	assert.Equal(t, 3, agg.Informative.Remaining)
}

func TestCombine_AnyDenyDenies(t *testing.T) {
	agg := Combine([]Decision{
		allow(ScopeGlobal, 500),
		deny(ScopeBurst, 0, time.Now().Add(time.Second)),
	})

	assert.False(t, agg.Allowed)
	require.NotNil(t, agg.Violated)
	assert.Equal(t, ScopeBurst, agg.Violated.Rule.Scope)
	assert.Equal(t, agg.Violated.Rule.Scope, agg.Informative.Rule.Scope,
		"deny headers reflect the violated rule")
}

func TestCombine_ScopePriorityBreaksTies(t *testing.T) {
	now := time.Now()
	agg := Combine([]Decision{
		deny(ScopeGlobal, 0, now.Add(10*time.Minute)),
		deny(ScopeEndpoint, 0, now.Add(time.Minute)),
		deny(ScopeRole, 0, now.Add(30*time.Second)),
	})

	require.NotNil(t, agg.Violated)
	assert.Equal(t, ScopeRole, agg.Violated.Rule.Scope, "role outranks endpoint and global")
}

func TestCombine_SameScopeSmallerRemainingWins(t *testing.T) {
	now := time.Now()
	a := deny(ScopeEndpoint, 2, now.Add(time.Minute))
	b := deny(ScopeEndpoint, 0, now.Add(time.Minute))

	agg := Combine([]Decision{a, b})

	require.NotNil(t, agg.Violated)
	assert.Zero(t, agg.Violated.Remaining)
}

func TestCombine_SameScopeLaterResetWins(t *testing.T) {
	now := time.Now()
	agg := Combine([]Decision{
		deny(ScopeEndpoint, 0, now.Add(time.Minute)),
		deny(ScopeEndpoint, 0, now.Add(time.Hour)),
	})

	require.NotNil(t, agg.Violated)
	assert.Equal(t, now.Add(time.Hour), agg.Violated.ResetAt)
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()

	d := deny(ScopeGlobal, 0, now.Add(90*time.Second))
	assert.Equal(t, 90*time.Second, d.RetryAfter(now))

	assert.Zero(t, allow(ScopeGlobal, 1).RetryAfter(now), "allowed decisions carry no retry hint")
	assert.Zero(t, deny(ScopeGlobal, 0, now.Add(-time.Second)).RetryAfter(now), "past reset means retry now")
}

func TestBuildKey_SeparatesRuleDimensions(t *testing.T) {
	ri := RequestInfo{Method: "GET", Path: "/jobs", ClientIP: "10.0.0.1", Identity: "alice"}
	now := time.Now()

	global := Rule{Scope: ScopeGlobal, Window: 15 * time.Minute, Max: 1000}
	burst := Rule{Scope: ScopeBurst, Window: time.Second, Max: 10}

	assert.NotEqual(t, BuildKey(ri, global, now), BuildKey(ri, burst, now))
	assert.Equal(t, Key("10.0.0.1|alice|GET /jobs|global:900000/1000"), BuildKey(ri, global, now))
}

func TestBuildKey_QuotaEmbedsPeriodLabel(t *testing.T) {
	ri := RequestInfo{Method: "GET", Path: "/jobs", ClientIP: "10.0.0.1"}
	rule := Rule{Scope: ScopeCustom, Name: "quota", Max: 5000, Period: PeriodDay}

	day1 := time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 16, 1, 0, 0, 0, time.UTC)

	k1 := BuildKey(ri, rule, day1)
	k2 := BuildKey(ri, rule, day2)

	assert.Contains(t, string(k1), "2025-06-15")
	assert.NotEqual(t, k1, k2, "period rollover must change the counter key")
}

func TestPeriod_DayBoundaries(t *testing.T) {
	now := time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)

	assert.Equal(t, "2025-06-15", PeriodDay.Label(now))
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), PeriodDay.Start(now))
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), PeriodDay.Next(now))
}

func TestPeriod_MonthBoundaries(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "2025-12", PeriodMonth.Label(now))
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), PeriodMonth.Start(now))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), PeriodMonth.Next(now))
}

func TestPeriod_LabelUsesUTC(t *testing.T) {
	// 23h no fuso -05:00 já é o dia seguinte em UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2025, 6, 15, 23, 0, 0, 0, loc)

	assert.Equal(t, "2025-06-16", PeriodDay.Label(now))
}

func TestEffectiveDefaults(t *testing.T) {
	assert.Equal(t, float64(1), Rule{}.EffectiveWeight())
	assert.Equal(t, 2.5, Rule{Weight: 2.5}.EffectiveWeight())

	assert.Equal(t, float64(1), RequestInfo{}.EffectiveCost())
	assert.Equal(t, float64(3), RequestInfo{Cost: 3}.EffectiveCost())
}
