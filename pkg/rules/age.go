package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-formwizard/pkg/model"
)

const (
	DefaultMinAge = 18
	DefaultMaxAge = 90
)

var dateLayouts = []string{
	model.DateLayout,
	"02/01/2006",
	"02-01-2006",
	time.RFC3339,
}

// ParseDate accepts time.Time values and ISO (2006-01-02), dd/mm/yyyy,
// dd-mm-yyyy or RFC 3339 strings.
func ParseDate(value any) (time.Time, error) {
	switch typed := value.(type) {
	case time.Time:
		return typed, nil
	case *time.Time:
		if typed == nil {
			return time.Time{}, errors.New("rules: nil date")
		}
		return *typed, nil
	}
	raw := strings.TrimSpace(model.Stringify(value))
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("rules: unrecognised date %q", raw)
}

// Age returns the completed years between dob and now: the calendar-year
// difference, minus one when this year's birthday has not happened yet.
func Age(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// AgeWithin reports whether dob falls in the inclusive [min, max] age range
// at now. The lower bound uses completed years; the upper bound is exceeded
// as soon as dob is earlier than exactly max years before now.
func AgeWithin(dob, now time.Time, min, max int) (bool, string) {
	dob, now = dateOnly(dob), dateOnly(now)
	if Age(dob, now) < min {
		return false, fmt.Sprintf("must be at least %d years old", min)
	}
	if dob.Before(now.AddDate(-max, 0, 0)) {
		return false, fmt.Sprintf("must be at most %d years old", max)
	}
	return true, ""
}

func checkAge(value any, rule model.ValidationRule, env Env) error {
	dob, err := ParseDate(value)
	if err != nil {
		return errors.New("must be a valid date of birth")
	}
	min, max := DefaultMinAge, DefaultMaxAge
	if raw := strings.TrimSpace(rule.Params["min"]); raw != "" {
		if min, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("rule age: invalid min parameter %q", raw)
		}
	}
	if raw := strings.TrimSpace(rule.Params["max"]); raw != "" {
		if max, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("rule age: invalid max parameter %q", raw)
		}
	}
	if ok, msg := AgeWithin(dob, env.Now, min, max); !ok {
		return errors.New(msg)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
