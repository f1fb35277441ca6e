package rules

import (
	"testing"
	"time"

	"github.com/goliatone/go-formwizard/pkg/model"
)

func TestAgeBoundaries(t *testing.T) {
	t.Parallel()

	set := Default()
	env := Env{Now: today}
	ageRule := rule(model.ValidationRuleAge, map[string]string{"min": "18", "max": "90"})

	cases := []struct {
		name string
		dob  time.Time
		ok   bool
	}{
		{name: "18 years minus a day", dob: today.AddDate(-18, 0, 1), ok: false},
		{name: "exactly 18 years", dob: today.AddDate(-18, 0, 0), ok: true},
		{name: "exactly 90 years", dob: today.AddDate(-90, 0, 0), ok: true},
		{name: "90 years plus a day", dob: today.AddDate(-90, 0, -1), ok: false},
		{name: "mid range", dob: today.AddDate(-45, -3, 0), ok: true},
	}
	for _, tc := range cases {
		err := set.Check(ageRule, tc.dob.Format(model.DateLayout), env)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestAgeUsesCompletedYears(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	if got := Age(time.Date(2000, time.March, 2, 0, 0, 0, 0, time.UTC), now); got != 25 {
		t.Fatalf("birthday tomorrow: Age = %d, want 25", got)
	}
	if got := Age(time.Date(2000, time.March, 1, 0, 0, 0, 0, time.UTC), now); got != 26 {
		t.Fatalf("birthday today: Age = %d, want 26", got)
	}
	if got := Age(time.Date(2000, time.December, 31, 0, 0, 0, 0, time.UTC), now); got != 25 {
		t.Fatalf("calendar-year subtraction would give 26, got %d", got)
	}
}

func TestParseDateLayouts(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"1990-05-17", "17/05/1990", "17-05-1990", "1990-05-17T00:00:00Z"} {
		got, err := ParseDate(raw)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", raw, err)
		}
		if got.Year() != 1990 || got.Month() != time.May || got.Day() != 17 {
			t.Fatalf("ParseDate(%q) = %v", raw, got)
		}
	}
}
