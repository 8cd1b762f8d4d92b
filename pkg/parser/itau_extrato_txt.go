package parser

import (
	"strings"

	"github.com/yurifrl/finbr/pkg/models"
)

// ParseItauExtratoTXT parses the "DD/MM/YYYY;PAYEE;-1.234,56" export. The
// file carries no account id; callers take it from the import plan.
func (p *Parser) ParseItauExtratoTXT(data []byte) (*models.BankStatement, error) {
	var rows [][]string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) < 3 {
			p.logger.Debug("skipping short line", "line", line)
			continue
		}
		rows = append(rows, []string{fields[0], fields[1], fields[2]})
	}
	return p.itauStatement(rows, models.SourceItauExtratoTXT), nil
}

// itauStatement turns (date, payee, value) rows into a statement. Rows that do
// not parse are skipped.
func (p *Parser) itauStatement(rows [][]string, source string) *models.BankStatement {
	stmt := &models.BankStatement{
		BankID:      "341",
		BankName:    BankName("341"),
		AccountType: models.AccountChecking,
		Currency:    "BRL",
		Source:      source,
	}

	seen := make(map[string]int)
	for _, row := range rows {
		date, err := parseBRDate(row[0])
		if err != nil {
			p.logger.Debug("skipping row with invalid date", "row", row, "error", err)
			continue
		}
		payee := strings.TrimSpace(row[1])
		if payee == "" || isItauBalanceRow(payee) {
			continue
		}
		value, err := parseDecimal(row[2])
		if err != nil {
			p.logger.Debug("skipping row with invalid value", "row", row, "error", err)
			continue
		}

		key := date.Format("2006-01-02") + payee + value.String()
		seq := seen[key]
		seen[key]++

		tx := models.NewBankTransaction(generateTransactionID(date, payee, value, seq), value, date)
		tx.Memo = payee
		stmt.Transactions = append(stmt.Transactions, tx)

		if stmt.StartDate.IsZero() || date.Before(stmt.StartDate) {
			stmt.StartDate = date
		}
		if date.After(stmt.EndDate) {
			stmt.EndDate = date
		}
	}

	return stmt
}

func isItauBalanceRow(payee string) bool {
	upper := strings.ToUpper(payee)
	return strings.HasPrefix(upper, "SALDO ANTERIOR") ||
		strings.HasPrefix(upper, "SALDO TOTAL") ||
		strings.HasPrefix(upper, "SALDO DO DIA")
}
