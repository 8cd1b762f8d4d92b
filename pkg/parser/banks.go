package parser

import (
	"fmt"
	"strings"
)

const unknownBankCode = "000"

var bankNames = map[string]string{
	"001": "Banco do Brasil",
	"033": "Santander",
	"077": "Banco Inter",
	"104": "Caixa Econômica Federal",
	"212": "Banco Original",
	"237": "Bradesco",
	"260": "Nubank",
	"336": "C6 Bank",
	"341": "Itaú",
	"422": "Banco Safra",
	"748": "Sicredi",
	"756": "Sicoob",
}

// normalizeBankCode turns "0341" or "1" into the three digit COMPE code.
func normalizeBankCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return unknownBankCode
	}
	trimmed := strings.TrimLeft(code, "0")
	if trimmed == "" {
		return unknownBankCode
	}
	if len(trimmed) < 3 {
		trimmed = strings.Repeat("0", 3-len(trimmed)) + trimmed
	}
	return trimmed
}

// BankName returns the display name for a bank code.
func BankName(code string) string {
	code = normalizeBankCode(code)
	if name, ok := bankNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Banco %s", code)
}
