package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxKind is one of the tax groups an NFe item can carry.
type TaxKind string

const (
	ICMS   TaxKind = "ICMS"
	PIS    TaxKind = "PIS"
	COFINS TaxKind = "COFINS"
	IPI    TaxKind = "IPI"
	ISS    TaxKind = "ISS"
)

// Invoice is a parsed NFe. Totals are the document's own totals and are not
// reconciled against the items.
type Invoice struct {
	AccessKey         string    `json:"access_key"`
	Number            string    `json:"number"`
	Series            string    `json:"series"`
	IssuedAtRaw       string    `json:"issued_at_raw"`
	IssuedAt          time.Time `json:"issued_at"`
	NatureOfOperation string    `json:"nature_of_operation"`
	// CFOP of the first item, used as representative for the whole invoice.
	CFOP string `json:"cfop"`

	Emitter   Party      `json:"emitter"`
	Recipient Party      `json:"recipient"`
	Items     []LineItem `json:"items"`
	Totals    Totals     `json:"totals"`

	Fatura     *Fatura     `json:"fatura,omitempty"`
	Duplicatas []Duplicata `json:"duplicatas,omitempty"`

	RawXML string `json:"-"`
}

// Party is the emitter or the recipient of an invoice.
type Party struct {
	CNPJ         string `json:"cnpj,omitempty"`
	CPF          string `json:"cpf,omitempty"`
	Name         string `json:"name"`
	TradeName    string `json:"trade_name,omitempty"`
	Municipality string `json:"municipality"`
	State        string `json:"state"`
}

// Document returns the CNPJ, or the CPF for individuals.
func (p Party) Document() string {
	if p.CNPJ != "" {
		return p.CNPJ
	}
	return p.CPF
}

type LineItem struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	NCM         string          `json:"ncm"`
	CFOP        string          `json:"cfop"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Taxes       []TaxLine       `json:"taxes,omitempty"`
}

// Tax returns the line for the given kind, if the item carries one.
func (i LineItem) Tax(kind TaxKind) (TaxLine, bool) {
	for _, t := range i.Taxes {
		if t.Kind == kind {
			return t, true
		}
	}
	return TaxLine{}, false
}

type TaxLine struct {
	Kind    TaxKind         `json:"kind"`
	Variant string          `json:"variant"`
	Base    decimal.Decimal `json:"base"`
	Rate    decimal.Decimal `json:"rate"`
	Value   decimal.Decimal `json:"value"`
}

// Totals mirrors the ICMSTot and ISSQNtot blocks.
type Totals struct {
	ICMSBase   decimal.Decimal `json:"icms_base"`
	ICMS       decimal.Decimal `json:"icms"`
	ICMSSTBase decimal.Decimal `json:"icms_st_base"`
	ICMSST     decimal.Decimal `json:"icms_st"`
	Products   decimal.Decimal `json:"products"`
	Freight    decimal.Decimal `json:"freight"`
	Insurance  decimal.Decimal `json:"insurance"`
	Discount   decimal.Decimal `json:"discount"`
	IPI        decimal.Decimal `json:"ipi"`
	PIS        decimal.Decimal `json:"pis"`
	COFINS     decimal.Decimal `json:"cofins"`
	Other      decimal.Decimal `json:"other"`
	Invoice    decimal.Decimal `json:"invoice"`
	Services   decimal.Decimal `json:"services"`
	ISS        decimal.Decimal `json:"iss"`
}

// Fatura is the billing header of the cobr block.
type Fatura struct {
	Number        string          `json:"number"`
	OriginalValue decimal.Decimal `json:"original_value"`
	Discount      decimal.Decimal `json:"discount"`
	NetValue      decimal.Decimal `json:"net_value"`
}

// Duplicata is a single installment.
type Duplicata struct {
	Number     string          `json:"number"`
	DueDateRaw string          `json:"due_date_raw"`
	DueDate    time.Time       `json:"due_date"`
	Amount     decimal.Decimal `json:"amount"`
}
