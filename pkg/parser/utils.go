package parser

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// generateTransactionID creates a stable id for formats without FITID. seq
// disambiguates identical entries on the same day.
func generateTransactionID(date time.Time, payee string, amount decimal.Decimal, seq int) string {
	cleanPayee := strings.ToLower(strings.TrimSpace(payee))
	input := fmt.Sprintf("%s-%s-%s-%d", date.Format("2006-01-02"), cleanPayee, amount.StringFixed(2), seq)

	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)[:16]
}

// parseDecimal reads numbers written either as 1234.56 or 1.234,56.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(s)
}

// decimalOrZero is parseDecimal for leaf values that must never fail.
func decimalOrZero(s string) decimal.Decimal {
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseCompactDate reads YYYYMMDD[HHMMSS] in local time. Anything after the
// first 14 characters (fractional seconds, [-3:BRT]) is ignored. Components are
// not range checked: time.Date normalizes them. Non-numeric input yields the
// zero time.
func parseCompactDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return time.Time{}
	}

	parts := []int{0, 0, 0, 0, 0, 0}
	bounds := [][2]int{{0, 4}, {4, 6}, {6, 8}, {8, 10}, {10, 12}, {12, 14}}
	for i, b := range bounds {
		if b[1] > len(s) {
			break
		}
		n, err := strconv.Atoi(s[b[0]:b[1]])
		if err != nil {
			if i < 3 {
				return time.Time{}
			}
			break
		}
		parts[i] = n
	}

	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.Local)
}

// parseBRDate reads DD/MM/YYYY.
func parseBRDate(s string) (time.Time, error) {
	return time.ParseInLocation("02/01/2006", strings.TrimSpace(s), time.Local)
}

// parseISODate reads the date formats found in NFe documents.
func parseISODate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
