package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yurifrl/finbr/pkg/models"
)

type filters struct {
	startDate string
	endDate   string
	minAmount float64
	maxAmount float64
	contains  string
}

var dateLayouts = []string{"2006/01/02", "2006-01-02", "02/01/2006"}

func parseFilterDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use YYYY/MM/DD", s)
}

// toFilterFunc validates the flags once. Amount bounds apply to the magnitude;
// the end date is inclusive.
func (f *filters) toFilterFunc() (func(models.BankTransaction) bool, error) {
	var start, end time.Time
	var err error
	if f.startDate != "" {
		if start, err = parseFilterDate(f.startDate); err != nil {
			return nil, err
		}
	}
	if f.endDate != "" {
		if end, err = parseFilterDate(f.endDate); err != nil {
			return nil, err
		}
		end = end.AddDate(0, 0, 1)
	}
	minAmount := decimal.NewFromFloat(f.minAmount)
	maxAmount := decimal.NewFromFloat(f.maxAmount)
	needle := strings.ToLower(f.contains)

	return func(t models.BankTransaction) bool {
		if !start.IsZero() && t.PostedAt.Before(start) {
			return false
		}
		if !end.IsZero() && !t.PostedAt.Before(end) {
			return false
		}
		if f.minAmount != 0 && t.Amount.LessThan(minAmount) {
			return false
		}
		if f.maxAmount != 0 && t.Amount.GreaterThan(maxAmount) {
			return false
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Description()), needle) {
			return false
		}
		return true
	}, nil
}
