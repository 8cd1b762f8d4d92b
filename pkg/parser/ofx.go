package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/yurifrl/finbr/pkg/models"
)

// ErrInvalidOFX is returned when the statement identity (account id or the
// transaction list) cannot be established.
var ErrInvalidOFX = errors.New("invalid OFX format")

var (
	tranListRegex = regexp.MustCompile(`(?is)<BANKTRANLIST>(.*?)</BANKTRANLIST>`)
	stmtTrnRegex  = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	charsetRegex  = regexp.MustCompile(`(?im)^\s*CHARSET:\s*([A-Za-z0-9-]+)`)
	ofxRootRegex  = regexp.MustCompile(`(?i)<OFX>`)
)

// ParseOFX extracts the statement header and its transactions. Transactions
// missing FITID or DTPOSTED are skipped.
func (p *Parser) ParseOFX(data []byte) (*models.BankStatement, error) {
	text := normalizeOFX(p.decodeOFX(data))

	head, err := statementSchema.extract(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOFX, err)
	}

	list := tranListRegex.FindStringSubmatch(text)
	if list == nil {
		return nil, fmt.Errorf("%w: missing BANKTRANLIST section", ErrInvalidOFX)
	}
	period, _ := tranListSchema.extract(list[1])

	bankID := normalizeBankCode(head.Text("BANKID"))
	stmt := &models.BankStatement{
		BankID:      bankID,
		BankName:    BankName(bankID),
		BranchID:    head.Text("BRANCHID"),
		AccountID:   head.Text("ACCTID"),
		AccountType: strings.ToUpper(head.Text("ACCTTYPE")),
		Currency:    strings.ToUpper(head.Text("CURDEF")),
		StartDate:   period.Date("DTSTART"),
		EndDate:     period.Date("DTEND"),
		Balance:     head.Amount("BALAMT"),
		BalanceDate: head.Date("DTASOF"),
		Source:      models.SourceOFX,
	}

	blocks := stmtTrnRegex.FindAllStringSubmatch(list[1], -1)
	stmt.Transactions = make([]models.BankTransaction, 0, len(blocks))
	for i, block := range blocks {
		rec, err := transactionSchema.extract(block[1])
		if err != nil {
			p.logger.Debug("skipping transaction", "index", i, "error", err)
			continue
		}

		tx := models.NewBankTransaction(rec.Text("FITID"), rec.Amount("TRNAMT"), rec.Date("DTPOSTED"))
		tx.Memo = rec.Text("MEMO")
		tx.Name = rec.Text("NAME")
		tx.TrnType = rec.Text("TRNTYPE")
		tx.CheckNum = rec.Text("CHECKNUM")
		stmt.Transactions = append(stmt.Transactions, tx)
	}

	p.logger.Debug("parsed OFX statement",
		"bank", stmt.BankID,
		"account", stmt.AccountID,
		"transactions", len(stmt.Transactions),
		"skipped", len(blocks)-len(stmt.Transactions))
	return stmt, nil
}

// decodeOFX converts legacy single-byte payloads to UTF-8. Brazilian banks
// mostly export OFX 1.x with CHARSET:1252.
func (p *Parser) decodeOFX(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	var dec *encoding.Decoder
	charset := ""
	if m := charsetRegex.FindSubmatch(data); m != nil {
		charset = strings.ToUpper(string(m[1]))
	}
	switch {
	case strings.Contains(charset, "8859"):
		dec = charmap.ISO8859_1.NewDecoder()
	default:
		dec = charmap.Windows1252.NewDecoder()
	}

	out, err := dec.Bytes(data)
	if err != nil {
		p.logger.Debug("charset decoding failed, using raw bytes", "charset", charset, "error", err)
		return string(bytes.ToValidUTF8(data, []byte("?")))
	}
	return string(out)
}

func normalizeOFX(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if loc := ofxRootRegex.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}
	return text
}
