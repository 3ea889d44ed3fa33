package wire

import (
	"fmt"
	"strings"
)

// PlanCustom selects a one-off date instead of a weekday slot.
const PlanCustom = "CUSTOM"

// weekdays maps plan slot digits to day names. The controller interprets the
// digit positionally, so the order is fixed.
var weekdays = [7]string{
	"SUNDAY",
	"MONDAY",
	"TUESDAY",
	"WEDNESDAY",
	"THURSDAY",
	"FRIDAY",
	"SATURDAY",
}

// DayToPlan returns the plan slot digit for a weekday name (case-insensitive).
func DayToPlan(day string) (string, bool) {
	day = strings.ToUpper(strings.TrimSpace(day))
	for i, name := range weekdays {
		if name == day {
			return string(rune('0' + i)), true
		}
	}
	return "", false
}

// PlanToDay returns the weekday name for a plan slot digit.
func PlanToDay(plan string) (string, bool) {
	plan = strings.TrimSpace(plan)
	if len(plan) != 1 || plan[0] < '0' || plan[0] > '6' {
		return "", false
	}
	return weekdays[plan[0]-'0'], true
}

// ResolvePlan turns a plan selector into the value sent to the controller:
// a slot digit for weekdays, or the custom date's numeric value for CUSTOM.
func ResolvePlan(plan string, customDate Text) (string, error) {
	if strings.EqualFold(strings.TrimSpace(plan), PlanCustom) {
		if customDate.Empty() {
			return "", ErrMissingCustomDate
		}
		n, err := customDate.Int64()
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrMissingCustomDate, customDate.String())
		}
		return fmt.Sprintf("%d", n), nil
	}
	if digit, ok := DayToPlan(plan); ok {
		return digit, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
}
