package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var weekdaySymbols = [...]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

var weekdayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tues": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thur": 4, "thurs": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// Compile turns a time of day ("HH:MM") and a set of weekdays into a
// 5-field cron expression, e.g. {"09:30", [MON WED FRI]} becomes
// "30 9 * * MON,WED,FRI". Weekdays are ordered by cron position and
// de-duplicated.
func Compile(timeOfDay string, weekdays []string) (string, error) {
	timeOfDay = strings.TrimSpace(timeOfDay)
	days := make([]string, 0, len(weekdays))
	for _, d := range weekdays {
		if d = strings.TrimSpace(d); d != "" {
			days = append(days, d)
		}
	}

	if timeOfDay == "" || len(days) == 0 {
		return "", fmt.Errorf("%w: time of day and weekdays are required", ErrIncompleteStructuredSchedule)
	}

	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return "", err
	}

	seen := make(map[int]struct{}, len(days))
	positions := make([]int, 0, len(days))
	for _, d := range days {
		pos, err := weekdayPosition(d)
		if err != nil {
			return "", err
		}
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	symbols := make([]string, len(positions))
	for i, pos := range positions {
		symbols[i] = weekdaySymbols[pos]
	}

	return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(symbols, ",")), nil
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalidRecurrence, s)
	}

	hour, herr := strconv.Atoi(parts[0])
	minute, merr := strconv.Atoi(parts[1])
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time of day %q out of range", ErrInvalidRecurrence, s)
	}

	return hour, minute, nil
}

func weekdayPosition(d string) (int, error) {
	if pos, ok := weekdayNames[strings.ToLower(d)]; ok {
		return pos, nil
	}

	// 7 is accepted as Sunday, as cron does.
	if n, err := strconv.Atoi(d); err == nil && n >= 0 && n <= 7 {
		return n % 7, nil
	}

	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRecurrence, d)
}
