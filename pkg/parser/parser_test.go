package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/finbr/pkg/models"
)

func TestParseStatementItauTXT(t *testing.T) {
	content := []byte(`17/03/2025;SALDO ANTERIOR;1.000,00
17/03/2025;PIX TRANSF ID_A15/03;-2327,00
17/03/2025;MOBILE PAG TIT 426XXXXXX;-287,00
19/03/2025;PIX TRANSF ID_C19/03;42.000,00
bad line`)

	stmt, err := newTestParser().ParseStatement(content, "extrato.txt")
	require.NoError(t, err)

	assert.Equal(t, "341", stmt.BankID)
	assert.Equal(t, models.SourceItauExtratoTXT, stmt.Source)
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.Local), stmt.StartDate)
	assert.Equal(t, time.Date(2025, 3, 19, 0, 0, 0, 0, time.Local), stmt.EndDate)

	require.Len(t, stmt.Transactions, 3)
	assertTransaction(t, stmt.Transactions[0], "2025/03/17", "PIX TRANSF ID_A15/03", "-2327")
	assertTransaction(t, stmt.Transactions[1], "2025/03/17", "MOBILE PAG TIT 426XXXXXX", "-287")
	assertTransaction(t, stmt.Transactions[2], "2025/03/19", "PIX TRANSF ID_C19/03", "42000")
	for _, tx := range stmt.Transactions {
		assert.Len(t, tx.FITID, 16)
	}
}

func TestItauFITIDsAreStable(t *testing.T) {
	content := []byte("01/02/2025;TARIFA;-10,00\n01/02/2025;TARIFA;-10,00\n")

	first, err := newTestParser().ParseItauExtratoTXT(content)
	require.NoError(t, err)
	second, err := newTestParser().ParseItauExtratoTXT(content)
	require.NoError(t, err)

	require.Len(t, first.Transactions, 2)
	assert.NotEqual(t, first.Transactions[0].FITID, first.Transactions[1].FITID, "identical rows need distinct ids")
	assert.Equal(t, first.Transactions[0].FITID, second.Transactions[0].FITID)
	assert.Equal(t, first.Transactions[1].FITID, second.Transactions[1].FITID)
}

func TestParseItauFaturaCSV(t *testing.T) {
	content := []byte("data,lançamento,valor\n2025-06-27,IFD*55668457 GABRIEL A,113.98\n2025-06-28,ESTORNO,-20.00\n2025/06/29,BROKEN,1.00\n")

	stmt, err := newTestParser().ParseStatement(content, "fatura.csv")
	require.NoError(t, err)

	assert.Equal(t, models.AccountCreditCard, stmt.AccountType)
	require.Len(t, stmt.Transactions, 2)
	assertTransaction(t, stmt.Transactions[0], "2025/06/27", "IFD*55668457 GABRIEL A", "-113.98")
	assertTransaction(t, stmt.Transactions[1], "2025/06/28", "ESTORNO", "20")
}

func TestItauExtratoRows(t *testing.T) {
	rows := [][]string{
		{"extrato", "", "", ""},
		{"lanÃ§amentos", "", "", ""},
		{"data", "lançamento", "", "valor"},
		{"17/03/2025", "CraftCorner Supplies", "", "-2.327,00"},
		{"short"},
	}

	got := itauExtratoRows(rows)
	assert.Equal(t, [][]string{{"17/03/2025", "CraftCorner Supplies", "-2.327,00"}}, got)
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		filename string
		data     string
		want     FileType
	}{
		{"extrato.ofx", "", OFX},
		{"EXTRATO.OFX", "", OFX},
		{"extrato.txt", "OFXHEADER:100\n<OFX>", OFX},
		{"extrato.txt", "17/03/2025;PIX;-1,00", ItauExtratoTXT},
		{"nota.xml", "<nfeProc/>", NFe},
		{"fatura.csv", "", ItauFaturaCSV},
		{"download", "<OFX><ACCTID>1", OFX},
		{"download", "<NFe><infNFe Id=\"1\">", NFe},
		{"photo.png", "\x89PNG", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectType(tt.filename, []byte(tt.data)), "DetectType(%q)", tt.filename)
	}
}

func TestParseStatementErrors(t *testing.T) {
	_, err := newTestParser().ParseStatement([]byte("\x89PNG"), "photo.png")
	assert.True(t, errors.Is(err, ErrUnknownFileType))

	_, err = newTestParser().ParseStatement([]byte(sampleNFe), "nota.xml")
	assert.Error(t, err)
}

func TestParseDecimal(t *testing.T) {
	tests := map[string]string{
		"1234.56":     "1234.56",
		"1.234,56":    "1234.56",
		"R$ 1.234,56": "1234.56",
		"-2327,00":    "-2327",
		"75,5":        "75.5",
	}
	for in, want := range tests {
		got, err := parseDecimal(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "parseDecimal(%q) = %s", in, got)
	}

	_, err := parseDecimal("")
	assert.Error(t, err)
}

func assertTransaction(t *testing.T, tx models.BankTransaction, date, payee, signed string) {
	t.Helper()
	if tx.PostedAt.Format("2006/01/02") != date || tx.Description() != payee || !tx.SignedAmount().Equal(decimal.RequireFromString(signed)) {
		t.Errorf("Transaction mismatch:\nExpected: date=%s, payee=%s, amount=%s\nGot: date=%s, payee=%s, amount=%s",
			date, payee, signed,
			tx.PostedAt.Format("2006/01/02"), tx.Description(), tx.SignedAmount())
	}
}
