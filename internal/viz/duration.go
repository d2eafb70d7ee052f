package viz

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Date layouts used across the dashboard. Times are rendered in UTC.
const (
	DateLayout     = "Jan 2, 2006"
	DateTimeLayout = "Jan 2, 2006 3:04:05 PM"
)

// HumanDuration renders a duration given in seconds. Values below one second
// are shown in milliseconds, everything else in seconds, both with two
// decimals: 0.01234 -> "12.34ms", 1.5 -> "1.50s". The sign is dropped.
func HumanDuration(seconds float64) string {
	if math.IsNaN(seconds) {
		return "0.00ms"
	}
	seconds = math.Abs(seconds)
	if seconds < 1 {
		ms := seconds * 1000
		// 999.995ms and up would round to "1,000.00ms"; show it as seconds.
		if ms >= 999.995 {
			return "1.00s"
		}
		return groupFloat(ms, 2) + "ms"
	}
	return groupFloat(seconds, 2) + "s"
}

// DurationString is HumanDuration for a time.Duration.
func DurationString(d time.Duration) string {
	return HumanDuration(d.Seconds())
}

// FormatDate renders the calendar date of t, e.g. "Mar 4, 2021".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// FormatDateTime renders t with a 12-hour clock, e.g. "Mar 4, 2021 1:02:03 PM".
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateTimeLayout)
}

// FormatCount groups an integer's digits in thousands: 1234567 -> "1,234,567".
func FormatCount(n int64) string {
	return groupFloat(float64(n), 0)
}

// FormatNumber renders n with a fixed number of decimals and grouped digits.
func FormatNumber(n float64, decimals int) string {
	return groupFloat(n, decimals)
}

func groupFloat(v float64, decimals int) string {
	s := fmt.Sprintf("%.*f", decimals, v)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
