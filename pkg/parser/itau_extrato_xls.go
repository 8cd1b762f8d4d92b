package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"

	"github.com/yurifrl/finbr/pkg/models"
)

func (p *Parser) ParseItauExtratoXLS(data []byte) (*models.BankStatement, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}

	rows := workbook.ReadAllCells(5000)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in sheet")
	}

	return p.itauStatement(itauExtratoRows(rows), models.SourceItauExtratoXLS), nil
}

// itauExtratoRows keeps the (date, payee, value) columns of the rows following
// the "lançamentos" marker.
func itauExtratoRows(rows [][]string) [][]string {
	var out [][]string
	var foundTransactions bool

	for _, row := range rows {
		if len(row) < 4 {
			continue
		}

		// the marker shows up mis-decoded in some exports
		marker := strings.ToLower(strings.TrimSpace(row[0]))
		if marker == "lançamentos" || marker == "lanã§amentos" {
			foundTransactions = true
			continue
		}
		if !foundTransactions || marker == "data" {
			continue
		}

		out = append(out, []string{row[0], row[1], row[3]})
	}
	return out
}
