package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"

	"github.com/extrame/xls"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/finbr/pkg/models"
)

var cardNumberRegex = regexp.MustCompile(`final (\d+)`)

// ParseItauFaturaXLS parses a credit card bill. Charges are listed as positive
// values and become debits; the card's final digits become the account id.
func (p *Parser) ParseItauFaturaXLS(data []byte) (*models.BankStatement, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}

	rows := workbook.ReadAllCells(1000)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in sheet")
	}

	var (
		out        [][]string
		cardNumber string
		inSection  bool
	)
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}

		text := strings.TrimSpace(row[0])
		if strings.Contains(text, "final ") &&
			(strings.HasSuffix(text, "(titular)") || strings.HasSuffix(text, "(adicional)")) {
			if m := cardNumberRegex.FindStringSubmatch(text); len(m) > 1 && cardNumber == "" {
				cardNumber = m[1]
			}
			inSection = true
			continue
		}
		if !inSection {
			continue
		}

		lower := strings.ToLower(text)
		if text == "" || lower == "data" || strings.Contains(lower, "total") || strings.Contains(lower, "lançamentos") {
			continue
		}
		out = append(out, []string{row[0], row[1], row[3]})
	}

	stmt := p.faturaStatement(out, models.SourceItauFaturaXLS)
	stmt.AccountID = cardNumber
	return stmt, nil
}

// ParseItauFaturaCSV parses the "data,lançamento,valor" export with ISO dates.
func (p *Parser) ParseItauFaturaCSV(data []byte) (*models.BankStatement, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv is empty")
	}

	start := 0
	if first := strings.ToLower(strings.TrimSpace(records[0][0])); first == "data" || first == "date" {
		start = 1
	}

	rows := make([][]string, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 3 {
			p.logger.Debug("csv line has less than 3 fields, skipping", "line", i)
			continue
		}
		iso := strings.Split(strings.TrimSpace(rec[0]), "-")
		if len(iso) != 3 {
			p.logger.Debug("unsupported date format, skipping", "line", i, "date", rec[0])
			continue
		}
		rows = append(rows, []string{iso[2] + "/" + iso[1] + "/" + iso[0], rec[1], rec[2]})
	}

	return p.faturaStatement(rows, models.SourceItauFaturaCSV), nil
}

// faturaStatement flips the sign of bill rows so charges become debits and
// refunds credits.
func (p *Parser) faturaStatement(rows [][]string, source string) *models.BankStatement {
	for _, row := range rows {
		value, err := parseDecimal(row[2])
		if err != nil {
			continue
		}
		row[2] = value.Neg().StringFixed(2)
	}
	stmt := p.itauStatement(rows, source)
	stmt.AccountType = models.AccountCreditCard
	p.logger.Debug("parsed fatura", "source", source, "transactions", len(stmt.Transactions), "total", faturaTotal(stmt))
	return stmt
}

// faturaTotal is the sum of charges minus refunds.
func faturaTotal(stmt *models.BankStatement) decimal.Decimal {
	credits, debits := stmt.Totals()
	return debits.Sub(credits)
}
