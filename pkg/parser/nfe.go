package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/yurifrl/finbr/pkg/models"
)

// ErrInvalidNFe is returned for structural failures: malformed XML, an
// unknown root element or a missing required block.
var ErrInvalidNFe = errors.New("invalid NFe document")

// taxVariants lists the element names probed inside each tax group.
var taxVariants = map[models.TaxKind][]string{
	models.ICMS: {
		"ICMS00", "ICMS10", "ICMS20", "ICMS30", "ICMS40", "ICMS51", "ICMS60", "ICMS70", "ICMS90",
		"ICMSSN101", "ICMSSN102", "ICMSSN201", "ICMSSN202", "ICMSSN500", "ICMSSN900",
	},
	models.PIS:    {"PISAliq", "PISQtde", "PISNT", "PISOutr"},
	models.COFINS: {"COFINSAliq", "COFINSQtde", "COFINSNT", "COFINSOutr"},
	models.IPI:    {"IPITrib", "IPINT"},
}

// ParseNFe extracts an invoice from an NFe or nfeProc document. Leaf values
// that are missing or unparseable become zero or empty.
func (p *Parser) ParseNFe(data []byte) (*models.Invoice, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNFe, err)
	}

	var (
		doc       *nfeXML
		accessKey string
		charset   encoding.Encoding
	)
	switch root {
	case "nfeProc":
		var proc nfeProcXML
		if charset, err = decodeDocument(data, &proc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNFe, err)
		}
		if proc.NFe == nil {
			return nil, fmt.Errorf("%w: nfeProc without NFe element", ErrInvalidNFe)
		}
		doc = proc.NFe
		accessKey = strings.TrimSpace(proc.ProtNFe.InfProt.ChNFe)
	case "NFe":
		doc = &nfeXML{}
		if charset, err = decodeDocument(data, doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNFe, err)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected root element %q", ErrInvalidNFe, root)
	}

	inf := doc.InfNFe
	switch {
	case inf == nil:
		return nil, fmt.Errorf("%w: missing infNFe", ErrInvalidNFe)
	case inf.Ide == nil:
		return nil, fmt.Errorf("%w: missing ide", ErrInvalidNFe)
	case inf.Emit == nil:
		return nil, fmt.Errorf("%w: missing emit", ErrInvalidNFe)
	case inf.Dest == nil:
		return nil, fmt.Errorf("%w: missing dest", ErrInvalidNFe)
	}

	if accessKey == "" {
		accessKey = strings.TrimPrefix(strings.TrimSpace(inf.ID), "NFe")
	}
	raw, err := utf8XML(data, charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNFe, err)
	}

	issued := strings.TrimSpace(inf.Ide.DhEmi)
	if issued == "" {
		issued = strings.TrimSpace(inf.Ide.DEmi)
	}

	inv := &models.Invoice{
		AccessKey:         accessKey,
		Number:            strings.TrimSpace(inf.Ide.NNF),
		Series:            strings.TrimSpace(inf.Ide.Serie),
		IssuedAtRaw:       issued,
		IssuedAt:          parseISODate(issued),
		NatureOfOperation: strings.TrimSpace(inf.Ide.NatOp),
		Emitter: models.Party{
			CNPJ:         strings.TrimSpace(inf.Emit.CNPJ),
			CPF:          strings.TrimSpace(inf.Emit.CPF),
			Name:         strings.TrimSpace(inf.Emit.XNome),
			TradeName:    strings.TrimSpace(inf.Emit.XFant),
			Municipality: strings.TrimSpace(inf.Emit.EnderEmit.XMun),
			State:        strings.TrimSpace(inf.Emit.EnderEmit.UF),
		},
		Recipient: models.Party{
			CNPJ:         strings.TrimSpace(inf.Dest.CNPJ),
			CPF:          strings.TrimSpace(inf.Dest.CPF),
			Name:         strings.TrimSpace(inf.Dest.XNome),
			Municipality: strings.TrimSpace(inf.Dest.EnderDest.XMun),
			State:        strings.TrimSpace(inf.Dest.EnderDest.UF),
		},
		Totals: invoiceTotals(inf.Total),
		RawXML: raw,
	}

	inv.Items = make([]models.LineItem, 0, len(inf.Det))
	for _, det := range inf.Det {
		inv.Items = append(inv.Items, lineItem(det))
	}
	if len(inv.Items) > 0 {
		inv.CFOP = inv.Items[0].CFOP
	}

	if inf.Cobr != nil {
		if fat := inf.Cobr.Fat; fat != nil {
			inv.Fatura = &models.Fatura{
				Number:        strings.TrimSpace(fat.NFat),
				OriginalValue: decimalOrZero(fat.VOrig),
				Discount:      decimalOrZero(fat.VDesc),
				NetValue:      decimalOrZero(fat.VLiq),
			}
		}
		for _, dup := range inf.Cobr.Dup {
			due := strings.TrimSpace(dup.DVenc)
			inv.Duplicatas = append(inv.Duplicatas, models.Duplicata{
				Number:     strings.TrimSpace(dup.NDup),
				DueDateRaw: due,
				DueDate:    parseISODate(due),
				Amount:     decimalOrZero(dup.VDup),
			})
		}
	}

	p.logger.Debug("parsed NFe",
		"key", inv.AccessKey,
		"number", inv.Number,
		"items", len(inv.Items),
		"duplicatas", len(inv.Duplicatas))
	return inv, nil
}

// rootElement returns the local name of the first element of the document.
func rootElement(data []byte) (string, error) {
	dec := newXMLDecoder(data, nil)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("no root element")
		}
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// newXMLDecoder accepts the legacy charsets NFe emitters still declare. When
// charset is not nil it receives the one the prolog named.
func newXMLDecoder(data []byte, charset *encoding.Encoding) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		var enc encoding.Encoding
		switch strings.ToUpper(label) {
		case "ISO-8859-1", "LATIN1":
			enc = charmap.ISO8859_1
		case "WINDOWS-1252", "CP1252":
			enc = charmap.Windows1252
		default:
			return nil, fmt.Errorf("unsupported charset %q", label)
		}
		if charset != nil {
			*charset = enc
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return dec
}

// decodeDocument decodes the root element into v and then reads the rest of
// the input, so trailing markup must be well formed too. The returned charset
// is nil for UTF-8 documents.
func decodeDocument(data []byte, v interface{}) (encoding.Encoding, error) {
	var charset encoding.Encoding
	dec := newXMLDecoder(data, &charset)
	if err := dec.Decode(v); err != nil {
		return nil, err
	}
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return charset, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

var xmlDeclEncoding = regexp.MustCompile(`(?i)^(\s*<\?xml[^>]*?encoding\s*=\s*["'])[^"']*(["'])`)

// utf8XML transcodes a document declared in a legacy charset to UTF-8 and
// rewrites its declaration to match.
func utf8XML(data []byte, charset encoding.Encoding) (string, error) {
	if charset == nil {
		return string(data), nil
	}
	out, err := charset.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(xmlDeclEncoding.ReplaceAll(out, []byte("${1}UTF-8${2}"))), nil
}

func lineItem(det detXML) models.LineItem {
	item := models.LineItem{
		Code:        strings.TrimSpace(det.Prod.CProd),
		Description: strings.TrimSpace(det.Prod.XProd),
		NCM:         strings.TrimSpace(det.Prod.NCM),
		CFOP:        strings.TrimSpace(det.Prod.CFOP),
		Unit:        strings.TrimSpace(det.Prod.UCom),
		Quantity:    decimalOrZero(det.Prod.QCom),
		UnitValue:   decimalOrZero(det.Prod.VUnCom),
		TotalValue:  decimalOrZero(det.Prod.VProd),
	}

	groups := []struct {
		kind  models.TaxKind
		group *taxGroupXML
	}{
		{models.ICMS, det.Imposto.ICMS},
		{models.IPI, det.Imposto.IPI},
		{models.PIS, det.Imposto.PIS},
		{models.COFINS, det.Imposto.COFINS},
	}
	for _, g := range groups {
		if line, ok := probeTax(g.kind, g.group); ok {
			item.Taxes = append(item.Taxes, line)
		}
	}

	if iss := det.Imposto.ISSQN; iss != nil {
		item.Taxes = append(item.Taxes, models.TaxLine{
			Kind:    models.ISS,
			Variant: "ISSQN",
			Base:    decimalOrZero(iss.VBC),
			Rate:    decimalOrZero(iss.VAliq),
			Value:   decimalOrZero(iss.VISSQN),
		})
	}

	return item
}

// probeTax returns the first known variant present in the group.
func probeTax(kind models.TaxKind, group *taxGroupXML) (models.TaxLine, bool) {
	if group == nil {
		return models.TaxLine{}, false
	}
	for _, name := range taxVariants[kind] {
		for _, v := range group.Variants {
			if v.XMLName.Local != name {
				continue
			}
			line := models.TaxLine{Kind: kind, Variant: name, Base: decimalOrZero(v.VBC)}
			switch kind {
			case models.ICMS:
				line.Rate, line.Value = decimalOrZero(v.PICMS), decimalOrZero(v.VICMS)
			case models.PIS:
				line.Rate, line.Value = decimalOrZero(v.PPIS), decimalOrZero(v.VPIS)
			case models.COFINS:
				line.Rate, line.Value = decimalOrZero(v.PCOFINS), decimalOrZero(v.VCOFINS)
			case models.IPI:
				line.Rate, line.Value = decimalOrZero(v.PIPI), decimalOrZero(v.VIPI)
			}
			return line, true
		}
	}
	return models.TaxLine{}, false
}

func invoiceTotals(t totalXML) models.Totals {
	tot := t.ICMSTot
	return models.Totals{
		ICMSBase:   decimalOrZero(tot.VBC),
		ICMS:       decimalOrZero(tot.VICMS),
		ICMSSTBase: decimalOrZero(tot.VBCST),
		ICMSST:     decimalOrZero(tot.VST),
		Products:   decimalOrZero(tot.VProd),
		Freight:    decimalOrZero(tot.VFrete),
		Insurance:  decimalOrZero(tot.VSeg),
		Discount:   decimalOrZero(tot.VDesc),
		IPI:        decimalOrZero(tot.VIPI),
		PIS:        decimalOrZero(tot.VPIS),
		COFINS:     decimalOrZero(tot.VCOFINS),
		Other:      decimalOrZero(tot.VOutro),
		Invoice:    decimalOrZero(tot.VNF),
		Services:   decimalOrZero(t.ISSQNtot.VServ),
		ISS:        decimalOrZero(t.ISSQNtot.VISS),
	}
}
