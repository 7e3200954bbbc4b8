package inbox

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/inboxops/autotag/internal/model"
)

// The inbox renders message ages in Spanish, either relative
// ("Hace 20 minutos") or absolute ("09/12/2025 a las 06:42 PM").
// Both forms can appear in the same label.
var (
	relativePattern = regexp.MustCompile(`(?i)hace\s+(\d+)\s+(minutos?|horas?|d[ií]as?|semanas?|mes(?:es)?|a[ñn]os?)`)
	absolutePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})\s+a\s+las\s+(\d{1,2}):(\d{2})\s*(AM|PM|am|pm)?`)
)

// ParseTimeLabel extracts whatever date context a UI time label carries.
// Labels with neither form produce a TimeInfo that is not Parseable.
func ParseTimeLabel(label string, loc *time.Location) model.TimeInfo {
	info := model.TimeInfo{Raw: label}
	if loc == nil {
		loc = time.UTC
	}

	if m := relativePattern.FindStringSubmatch(label); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			if d, ok := relativeUnit(m[2], n); ok {
				info.Relative = d
				info.HasRelative = true
			}
		}
	}

	if m := absolutePattern.FindStringSubmatch(label); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		switch strings.ToUpper(m[6]) {
		case "PM":
			if hour < 12 {
				hour += 12
			}
		case "AM":
			if hour == 12 {
				hour = 0
			}
		}
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 && hour < 24 && minute < 60 {
			info.Absolute = time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
			info.HasAbsolute = true
		}
	}

	return info
}

func relativeUnit(unit string, n int) (time.Duration, bool) {
	switch {
	case strings.HasPrefix(unit, "minuto"):
		return time.Duration(n) * time.Minute, true
	case strings.HasPrefix(unit, "hora"):
		return time.Duration(n) * time.Hour, true
	case strings.HasPrefix(unit, "d"): // día, dias
		return time.Duration(n) * 24 * time.Hour, true
	case strings.HasPrefix(unit, "semana"):
		return time.Duration(n) * 7 * 24 * time.Hour, true
	case strings.HasPrefix(unit, "mes"):
		return time.Duration(n) * 30 * 24 * time.Hour, true
	case strings.HasPrefix(unit, "a"): // año, anos
		return time.Duration(n) * 365 * 24 * time.Hour, true
	}
	return 0, false
}

// SameLocalDay reports whether the parsed time falls on the reference
// day in the given location. Relative ages are resolved against the
// reference instant.
func SameLocalDay(info model.TimeInfo, ref time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	var at time.Time
	switch {
	case info.HasAbsolute:
		at = info.Absolute
	case info.HasRelative:
		at = ref.Add(-info.Relative)
	default:
		return false
	}
	a, b := at.In(loc), ref.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
