package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// ErrUnknownRule is returned when a rule kind has no registered checker.
var ErrUnknownRule = errors.New("rules: unknown rule kind")

// Env carries the inputs a rule may depend on besides the value itself. Now
// is the only time source; rules never read the wall clock.
type Env struct {
	Now time.Time
}

// Checker validates a non-empty value against one rule. The returned error's
// message is shown to the user.
type Checker func(value any, rule model.ValidationRule, env Env) error

// Set is an immutable table of checkers keyed by rule kind.
type Set struct {
	checkers map[string]Checker
}

// Default returns the built-in rule set.
func Default() *Set {
	return &Set{checkers: map[string]Checker{
		model.ValidationRuleMin:       checkMin,
		model.ValidationRuleMax:       checkMax,
		model.ValidationRuleMinLength: checkMinLength,
		model.ValidationRuleMaxLength: checkMaxLength,
		model.ValidationRulePattern:   checkPattern,
		model.ValidationRuleDigits:    checkDigits,
		model.ValidationRuleEnum:      checkEnum,
		model.ValidationRuleDate:      checkDate,
		model.ValidationRuleAge:       checkAge,
		model.ValidationRuleEmail:     formatChecker(emailPattern, "must be a valid email address"),
		model.ValidationRulePhone:     formatChecker(phonePattern, "must be a 10 digit phone number"),
		model.ValidationRulePincode:   formatChecker(pincodePattern, "must be a 6 digit pincode"),
		model.ValidationRuleAadhaar:   formatChecker(aadhaarPattern, "must be a 12 digit Aadhaar number"),
		model.ValidationRulePAN:       formatChecker(panPattern, "must be a valid PAN (ABCDE1234F)"),
		model.ValidationRuleIFSC:      formatChecker(ifscPattern, "must be a valid IFSC code"),
		model.ValidationRuleVoterID:   formatChecker(voterPattern, "must be a valid voter id"),
	}}
}

// With returns a copy of the set with kind bound to fn.
func (s *Set) With(kind string, fn Checker) *Set {
	out := &Set{checkers: make(map[string]Checker, len(s.checkers)+1)}
	for k, v := range s.checkers {
		out.checkers[k] = v
	}
	out.checkers[kind] = fn
	return out
}

// Known reports whether kind has a checker.
func (s *Set) Known(kind string) bool {
	if s == nil {
		return false
	}
	_, ok := s.checkers[kind]
	return ok
}

// Check runs a single rule. Empty values always pass; required-ness is
// decided by the resolver, not by individual rules.
func (s *Set) Check(rule model.ValidationRule, value any, env Env) error {
	if model.IsEmpty(value) {
		return nil
	}
	fn, ok := s.checkers[rule.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRule, rule.Kind)
	}
	if err := fn(value, rule, env); err != nil {
		if msg := strings.TrimSpace(rule.Message); msg != "" {
			return &Error{Kind: rule.Kind, Message: msg, Custom: true}
		}
		return &Error{Kind: rule.Kind, Message: err.Error()}
	}
	return nil
}

// Error is a failed rule. Custom is set when the message came from the
// definition rather than the built-in checker, in which case it is a complete
// sentence and callers should not prefix it with the field label.
type Error struct {
	Kind    string
	Message string
	Custom  bool
}

func (e *Error) Error() string {
	return e.Message
}

// CheckAll runs rules in order and returns the first failure.
func (s *Set) CheckAll(rules []model.ValidationRule, value any, env Env) error {
	for _, rule := range rules {
		if err := s.Check(rule, value, env); err != nil {
			return err
		}
	}
	return nil
}

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
	aadhaarPattern = regexp.MustCompile(`^[0-9]{12}$`)
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	voterPattern   = regexp.MustCompile(`^[A-Z]{3}[0-9]{7}$`)

	patternCache sync.Map
)

func formatChecker(pattern *regexp.Regexp, message string) Checker {
	return func(value any, _ model.ValidationRule, _ Env) error {
		if !pattern.MatchString(compact(model.Stringify(value))) {
			return errors.New(message)
		}
		return nil
	}
}

// compact drops the spaces users type inside grouped numbers ("1234 5678").
func compact(value string) string {
	return strings.Join(strings.Fields(value), "")
}

func checkPattern(value any, rule model.ValidationRule, _ Env) error {
	expr := rule.Params["pattern"]
	if expr == "" {
		return nil
	}
	re, err := compilePattern(expr)
	if err != nil {
		return fmt.Errorf("invalid pattern %q", expr)
	}
	if !re.MatchString(model.Stringify(value)) {
		return errors.New("has an invalid format")
	}
	return nil
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(expr, re)
	return re, nil
}

// checkDigits accepts digits only. With a value parameter the count must
// match exactly.
func checkDigits(value any, rule model.ValidationRule, _ Env) error {
	got := compact(model.Stringify(value))
	allDigits := got != ""
	for _, r := range got {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if strings.TrimSpace(rule.Params["value"]) == "" {
		if !allDigits {
			return errors.New("must contain digits only")
		}
		return nil
	}
	want, err := intParam(rule, "value")
	if err != nil {
		return err
	}
	if !allDigits || len(got) != want {
		return fmt.Errorf("must be exactly %d digits", want)
	}
	return nil
}

func checkMinLength(value any, rule model.ValidationRule, _ Env) error {
	limit, err := intParam(rule, "value")
	if err != nil {
		return err
	}
	if utf8.RuneCountInString(model.Stringify(value)) < limit {
		return fmt.Errorf("must be at least %d characters", limit)
	}
	return nil
}

func checkMaxLength(value any, rule model.ValidationRule, _ Env) error {
	limit, err := intParam(rule, "value")
	if err != nil {
		return err
	}
	if utf8.RuneCountInString(model.Stringify(value)) > limit {
		return fmt.Errorf("must be at most %d characters", limit)
	}
	return nil
}

func checkMin(value any, rule model.ValidationRule, _ Env) error {
	limit, err := floatParam(rule, "value")
	if err != nil {
		return err
	}
	got, ok := toFloat(value)
	if !ok {
		return errors.New("must be a number")
	}
	if got < limit {
		return fmt.Errorf("must be at least %s", rule.Params["value"])
	}
	return nil
}

func checkMax(value any, rule model.ValidationRule, _ Env) error {
	limit, err := floatParam(rule, "value")
	if err != nil {
		return err
	}
	got, ok := toFloat(value)
	if !ok {
		return errors.New("must be a number")
	}
	if got > limit {
		return fmt.Errorf("must be at most %s", rule.Params["value"])
	}
	return nil
}

func checkEnum(value any, rule model.ValidationRule, _ Env) error {
	raw := rule.Params["values"]
	if raw == "" {
		return nil
	}
	got := model.Stringify(value)
	for _, candidate := range strings.Split(raw, ",") {
		if strings.TrimSpace(candidate) == got {
			return nil
		}
	}
	return errors.New("is not an allowed value")
}

func checkDate(value any, rule model.ValidationRule, env Env) error {
	date, err := ParseDate(value)
	if err != nil {
		return errors.New("must be a valid date")
	}
	if rule.Params["notAfter"] == "today" && dateOnly(date).After(dateOnly(env.Now)) {
		return errors.New("must not be in the future")
	}
	return nil
}

func intParam(rule model.ValidationRule, key string) (int, error) {
	raw := strings.TrimSpace(rule.Params[key])
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("rule %s: invalid %s parameter %q", rule.Kind, key, raw)
	}
	return n, nil
}

func floatParam(rule model.ValidationRule, key string) (float64, error) {
	raw := strings.TrimSpace(rule.Params[key])
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("rule %s: invalid %s parameter %q", rule.Kind, key, raw)
	}
	return n, nil
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return n, err == nil
	default:
		return 0, false
	}
}
