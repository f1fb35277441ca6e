package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// IsEmpty reports whether a field value counts as unset. Blank strings,
// nil, and empty collections are empty; false and zero numbers are values.
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []byte:
		return len(typed) == 0
	case []any:
		return len(typed) == 0
	case []string:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	case time.Time:
		return typed.IsZero()
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// Stringify renders a scalar value the way it is compared against rule
// values and reference-data option keys.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case time.Time:
		return typed.Format(DateLayout)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

// DateLayout is the wire format for date-only values.
const DateLayout = "2006-01-02"

// Matches reports whether value equals want, or any element of want when want
// is a list. Comparison is on the Stringify form so "1", 1 and 1.0 agree.
func Matches(value, want any) bool {
	got := Stringify(value)
	switch typed := want.(type) {
	case []any:
		for _, candidate := range typed {
			if got == Stringify(candidate) {
				return true
			}
		}
		return false
	case []string:
		for _, candidate := range typed {
			if got == strings.TrimSpace(candidate) {
				return true
			}
		}
		return false
	default:
		return got == Stringify(want)
	}
}
