package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/finbr/pkg/models"
)

func tx(day int, amount string, memo string) models.BankTransaction {
	t := models.NewBankTransaction("id", decimal.RequireFromString(amount), time.Date(2024, 3, day, 15, 0, 0, 0, time.Local))
	t.Memo = memo
	return t
}

func TestFilters(t *testing.T) {
	f := &filters{startDate: "2024/03/10", endDate: "2024-03-20", minAmount: 50, maxAmount: 1000, contains: "pix"}
	match, err := f.toFilterFunc()
	require.NoError(t, err)

	assert.True(t, match(tx(10, "-100", "PIX ENVIADO")))
	assert.True(t, match(tx(20, "100", "pix recebido")), "end date is inclusive")
	assert.False(t, match(tx(9, "-100", "PIX ENVIADO")))
	assert.False(t, match(tx(21, "-100", "PIX ENVIADO")))
	assert.False(t, match(tx(15, "-10", "PIX ENVIADO")), "below min magnitude")
	assert.False(t, match(tx(15, "-5000", "PIX ENVIADO")), "above max magnitude")
	assert.False(t, match(tx(15, "-100", "TED")))
}

func TestFiltersEmpty(t *testing.T) {
	match, err := (&filters{}).toFilterFunc()
	require.NoError(t, err)
	assert.True(t, match(tx(1, "0", "")))
}

func TestFiltersInvalidDate(t *testing.T) {
	_, err := (&filters{startDate: "yesterday"}).toFilterFunc()
	assert.ErrorContains(t, err, "invalid date")
}
