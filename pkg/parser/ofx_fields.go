package parser

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type fieldKind int

const (
	textField fieldKind = iota
	amountField
	dateField
)

// field describes one SGML tag consumed from an OFX block.
type field struct {
	Tag      string
	Kind     fieldKind
	Required bool
	Default  string
}

type schema struct {
	fields   []field
	patterns map[string]*regexp.Regexp
}

func newSchema(fields ...field) *schema {
	s := &schema{fields: fields, patterns: make(map[string]*regexp.Regexp, len(fields))}
	for _, f := range fields {
		// SGML values run until the next tag or the end of the line.
		s.patterns[f.Tag] = regexp.MustCompile(fmt.Sprintf(`(?i)<%s>([^<\r\n]*)`, regexp.QuoteMeta(f.Tag)))
	}
	return s
}

// record holds the typed values of one extracted block.
type record struct {
	text    map[string]string
	amounts map[string]decimal.Decimal
	dates   map[string]time.Time
}

func (r record) Text(tag string) string {
	return r.text[tag]
}

func (r record) Amount(tag string) decimal.Decimal {
	return r.amounts[tag]
}

func (r record) Date(tag string) time.Time {
	return r.dates[tag]
}

type missingFieldsError struct {
	tags []string
}

func (e *missingFieldsError) Error() string {
	return fmt.Sprintf("missing required tag(s) %s", strings.Join(e.tags, ", "))
}

// extract applies every field of the schema to block. Optional fields fall
// back to their default; absent required fields are reported together.
func (s *schema) extract(block string) (record, error) {
	rec := record{
		text:    make(map[string]string),
		amounts: make(map[string]decimal.Decimal),
		dates:   make(map[string]time.Time),
	}
	var missing []string

	for _, f := range s.fields {
		raw := ""
		if m := s.patterns[f.Tag].FindStringSubmatch(block); len(m) > 1 {
			raw = html.UnescapeString(strings.TrimSpace(m[1]))
		}
		if raw == "" {
			if f.Required {
				missing = append(missing, f.Tag)
			}
			raw = f.Default
		}

		switch f.Kind {
		case amountField:
			rec.amounts[f.Tag] = decimalOrZero(raw)
		case dateField:
			rec.dates[f.Tag] = parseCompactDate(raw)
		default:
			rec.text[f.Tag] = raw
		}
	}

	if len(missing) > 0 {
		return rec, &missingFieldsError{tags: missing}
	}
	return rec, nil
}

var (
	statementSchema = newSchema(
		field{Tag: "BANKID", Default: unknownBankCode},
		field{Tag: "BRANCHID"},
		field{Tag: "ACCTID", Required: true},
		field{Tag: "ACCTTYPE", Default: "CHECKING"},
		field{Tag: "CURDEF", Default: "BRL"},
		field{Tag: "BALAMT", Kind: amountField},
		field{Tag: "DTASOF", Kind: dateField},
	)

	tranListSchema = newSchema(
		field{Tag: "DTSTART", Kind: dateField},
		field{Tag: "DTEND", Kind: dateField},
	)

	transactionSchema = newSchema(
		field{Tag: "FITID", Required: true},
		field{Tag: "DTPOSTED", Kind: dateField, Required: true},
		field{Tag: "TRNAMT", Kind: amountField},
		field{Tag: "TRNTYPE"},
		field{Tag: "CHECKNUM"},
		field{Tag: "MEMO"},
		field{Tag: "NAME"},
	)
)
