// Package timeutil holds the calendar arithmetic the board metrics are
// built on: business-day counting and day/week/month range bucketing.
package timeutil

import (
	"strings"
	"time"
	"unicode"
)

// BusinessDaysBetween counts the weekdays in the half-open interval
// [older, younger). The order of the arguments does not matter.
func BusinessDaysBetween(a, b time.Time) int {
	if b.Before(a) {
		a, b = b, a
	}

	days := 0
	for d := StartOfDay(a); d.Before(StartOfDay(b)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// StartOfDay returns midnight of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar date.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// WeekRange returns the Sunday..Saturday span containing t. The start is
// midnight Sunday, the end is the last instant of Saturday.
func WeekRange(t time.Time) (start, end time.Time) {
	start = StartOfDay(t).AddDate(0, 0, -int(t.Weekday()))
	end = EndOfDay(start.AddDate(0, 0, 6))
	return start, end
}

// MonthRange returns the first..last day span of the month containing t.
func MonthRange(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = EndOfDay(start.AddDate(0, 1, -1))
	return start, end
}

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen. Used for team page URLs.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
