// Package datenorm turns loosely formatted date strings into strict
// YYYY-MM-DD values or rejects them.
package datenorm

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var (
	exactDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	anyDate   = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	dateRange = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-\d{4}-\d{2}-\d{2}$`)
	tzSuffix  = regexp.MustCompile(`\s+[A-Za-z]{2,5}$`)
)

// Normalize returns raw as YYYY-MM-DD and true, or "" and false when no
// valid date can be recovered. Year must be within 1900-2100, month 1-12
// and day 1-31.
func Normalize(raw string) (string, bool) {
	cleaned := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), "."))

	if m := exactDate.FindStringSubmatch(cleaned); m != nil && inRange(m) {
		return cleaned, true
	}

	for _, m := range anyDate.FindAllStringSubmatch(cleaned, -1) {
		if inRange(m) {
			return m[0], true
		}
	}

	if m := dateRange.FindStringSubmatch(cleaned); m != nil {
		if d := exactDate.FindStringSubmatch(m[1]); d != nil && inRange(d) {
			return m[1], true
		}
	}

	if stripped := tzSuffix.ReplaceAllString(cleaned, ""); stripped != cleaned {
		if m := exactDate.FindStringSubmatch(stripped); m != nil && inRange(m) {
			return stripped, true
		}
	}

	slog.Warn("date rejected", "raw", raw)
	return "", false
}

// Valid reports whether s is already a normalized date.
func Valid(s string) bool {
	m := exactDate.FindStringSubmatch(s)
	return m != nil && inRange(m)
}

func inRange(m []string) bool {
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return year >= 1900 && year <= 2100 &&
		month >= 1 && month <= 12 &&
		day >= 1 && day <= 31
}
