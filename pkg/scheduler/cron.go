package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field layout. Used at save time so a
// workflow never reaches the scheduler with an unparseable expression.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate reports whether expr is a well-formed 5-field cron expression.
func Validate(expr string) error {
	_, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	return nil
}

// Matches evaluates a cron expression against a wall-clock instant at
// minute granularity. Each of the five fields is either "*" or an exact
// integer literal; ranges, lists and steps are not supported and report an
// error.
func Matches(expr string, t time.Time) (bool, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	values := []int{
		t.Minute(),
		t.Hour(),
		t.Day(),
		int(t.Month()),
		int(t.Weekday()),
	}

	for i, field := range fields {
		match, err := fieldMatches(field, values[i])
		if err != nil {
			return false, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}

		if !match {
			return false, nil
		}
	}

	return true, nil
}

func fieldMatches(field string, value int) (bool, error) {
	if field == "*" {
		return true, nil
	}

	literal, err := strconv.Atoi(field)
	if err != nil {
		return false, fmt.Errorf("unsupported field %q: only * and integer literals are allowed", field)
	}

	return literal == value, nil
}
