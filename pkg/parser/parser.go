package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/extrame/xls"

	"github.com/yurifrl/finbr/pkg/models"
)

type FileType string

const (
	OFX            FileType = "ofx"
	NFe            FileType = "nfe"
	ItauExtratoTXT FileType = "itau_extrato_txt"
	ItauExtratoXLS FileType = "itau_extrato_xls"
	ItauFaturaXLS  FileType = "itau_fatura_xls"
	ItauFaturaCSV  FileType = "itau_fatura_csv"
)

// ErrUnknownFileType is returned when neither the name nor the content
// identify a supported format.
var ErrUnknownFileType = errors.New("unknown file type")

type Parser struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Parser {
	return &Parser{
		logger: logger,
	}
}

// IsStatement reports whether the type parses into a BankStatement.
func (t FileType) IsStatement() bool {
	return t != "" && t != NFe
}

// ParseStatement parses any supported bank statement format.
func (p *Parser) ParseStatement(data []byte, filename string) (*models.BankStatement, error) {
	fileType := DetectType(filename, data)
	p.logger.Debug("detected file type", "type", fileType, "filename", filename)

	switch fileType {
	case OFX:
		return p.ParseOFX(data)
	case ItauExtratoTXT:
		return p.ParseItauExtratoTXT(data)
	case ItauExtratoXLS:
		return p.ParseItauExtratoXLS(data)
	case ItauFaturaXLS:
		return p.ParseItauFaturaXLS(data)
	case ItauFaturaCSV:
		return p.ParseItauFaturaCSV(data)
	case NFe:
		return nil, fmt.Errorf("%w: %s is an invoice, not a statement", ErrUnknownFileType, filename)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFileType, filename)
	}
}

// ParseInvoice parses an NFe document.
func (p *Parser) ParseInvoice(data []byte) (*models.Invoice, error) {
	return p.ParseNFe(data)
}

// DetectType determines the format from the extension, falling back to
// sniffing the content.
func DetectType(filename string, data []byte) FileType {
	lower := strings.ToLower(filename)
	switch filepath.Ext(lower) {
	case ".ofx", ".ofc":
		return OFX
	case ".xml":
		return NFe
	case ".xls":
		return detectXLS(data)
	case ".csv":
		return ItauFaturaCSV
	case ".txt":
		if looksLikeOFX(data) {
			return OFX
		}
		return ItauExtratoTXT
	}

	switch {
	case looksLikeOFX(data):
		return OFX
	case bytes.Contains(data, []byte("<infNFe")):
		return NFe
	}
	return ""
}

func looksLikeOFX(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	upper := bytes.ToUpper(head)
	return bytes.Contains(upper, []byte("OFXHEADER")) || bytes.Contains(upper, []byte("<OFX>"))
}

// detectXLS tells extrato from fatura workbooks by the markers in the first
// rows. Unreadable workbooks are treated as extratos so the parse error
// surfaces from the parser.
func detectXLS(data []byte) FileType {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return ItauExtratoXLS
	}
	for _, row := range workbook.ReadAllCells(30) {
		if len(row) == 0 {
			continue
		}
		cell := strings.ToLower(strings.TrimSpace(row[0]))
		switch {
		case cell == "lançamentos" || cell == "lanã§amentos":
			return ItauExtratoXLS
		case strings.Contains(cell, "fatura") || strings.HasSuffix(cell, "(titular)"):
			return ItauFaturaXLS
		}
	}
	return ItauExtratoXLS
}
