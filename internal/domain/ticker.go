package domain

import (
	"regexp"
	"strings"
)

var tickerRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidTicker reports whether s is a normalized ticker symbol.
func ValidTicker(s string) bool {
	return tickerRegex.MatchString(s)
}
