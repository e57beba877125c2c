// Package calendar holds the week arithmetic, wire date format and pair table
// shared by the timetable normalizer and the selection state machine.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// ServerDateLayout is the date representation the timetable server expects.
const ServerDateLayout = "2006-01-02"

// DefaultTimezone is the institution timezone used for wire dates.
const DefaultTimezone = "Europe/Moscow"

// Pair is a fixed academic period.
type Pair struct {
	Number int
	Start  string
	End    string
}

// Pairs lists the daily periods in order.
var Pairs = []Pair{
	{Number: 1, Start: "08:05", End: "09:35"},
	{Number: 2, Start: "09:50", End: "11:20"},
	{Number: 3, Start: "11:35", End: "13:05"},
	{Number: 4, Start: "13:35", End: "15:05"},
	{Number: 5, Start: "15:15", End: "16:45"},
	{Number: 6, Start: "16:55", End: "18:25"},
}

var weekdayNames = [...]string{
	time.Sunday:    "Воскресенье",
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
}

var serverDateLayouts = []string{
	ServerDateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006",
}

// LoadLocation resolves the institution timezone, falling back to a fixed
// UTC+3 zone when the tz database is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 3*60*60)
	}
	return loc
}

// DateOnly returns midnight of t's calendar date as observed in loc.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns Monday 00:00 of the week containing t, in t's location.
// The week always starts on Monday regardless of locale.
func StartOfWeek(t time.Time) time.Time {
	day := DateOnly(t, t.Location())
	weekday := int(day.Weekday()) + 1 // 1=Sunday..7=Saturday
	offset := (weekday + 5) % 7
	return day.AddDate(0, 0, -offset)
}

// WeekRange returns the Monday and Sunday bounding the week containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	start := StartOfWeek(t)
	return start, start.AddDate(0, 0, 6)
}

// PairNumberFor maps a "HH:MM" start time to its 1-based pair number, or 0
// when no period starts at that time.
func PairNumberFor(start string) int {
	start = strings.TrimSpace(start)
	for _, p := range Pairs {
		if p.Start == start {
			return p.Number
		}
	}
	stripped := strings.TrimPrefix(start, "0")
	for _, p := range Pairs {
		if strings.TrimPrefix(p.Start, "0") == stripped {
			return p.Number
		}
	}
	return 0
}

// FormatServerDate renders t as YYYY-MM-DD in loc.
func FormatServerDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(ServerDateLayout)
}

// ParseServerDate parses a server date and returns midnight of that date in loc.
func ParseServerDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range serverDateLayouts {
		parsed, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		if layout == time.RFC3339 {
			// Offset-carrying timestamps are keyed by their own calendar date.
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, loc), nil
		}
		return DateOnly(parsed, loc), nil
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", raw)
}

// TruncateClock reduces a time or timestamp string to HH:MM.
func TruncateClock(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndexAny(raw, "T "); idx >= 0 {
		raw = raw[idx+1:]
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return raw
	}
	minutes := parts[1]
	if len(minutes) > 2 {
		minutes = minutes[:2]
	}
	return parts[0] + ":" + minutes
}

// WeekdayName returns the Russian name of t's weekday.
func WeekdayName(t time.Time) string {
	return weekdayNames[t.Weekday()]
}
