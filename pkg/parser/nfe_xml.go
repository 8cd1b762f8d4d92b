package parser

import "encoding/xml"

// nfeProcXML is the authorized document: the NFe plus the SEFAZ protocol.
type nfeProcXML struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     *nfeXML  `xml:"NFe"`
	ProtNFe struct {
		InfProt struct {
			ChNFe string `xml:"chNFe"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

type nfeXML struct {
	InfNFe *infNFeXML `xml:"infNFe"`
}

type infNFeXML struct {
	ID    string   `xml:"Id,attr"`
	Ide   *ideXML  `xml:"ide"`
	Emit  *emitXML `xml:"emit"`
	Dest  *destXML `xml:"dest"`
	Det   []detXML `xml:"det"`
	Total totalXML `xml:"total"`
	Cobr  *cobrXML `xml:"cobr"`
}

type ideXML struct {
	NatOp string `xml:"natOp"`
	Serie string `xml:"serie"`
	NNF   string `xml:"nNF"`
	DhEmi string `xml:"dhEmi"`
	DEmi  string `xml:"dEmi"`
}

type addressXML struct {
	XMun string `xml:"xMun"`
	UF   string `xml:"UF"`
}

type emitXML struct {
	CNPJ      string     `xml:"CNPJ"`
	CPF       string     `xml:"CPF"`
	XNome     string     `xml:"xNome"`
	XFant     string     `xml:"xFant"`
	EnderEmit addressXML `xml:"enderEmit"`
}

type destXML struct {
	CNPJ      string     `xml:"CNPJ"`
	CPF       string     `xml:"CPF"`
	XNome     string     `xml:"xNome"`
	EnderDest addressXML `xml:"enderDest"`
}

type detXML struct {
	NItem   string     `xml:"nItem,attr"`
	Prod    prodXML    `xml:"prod"`
	Imposto impostoXML `xml:"imposto"`
}

type prodXML struct {
	CProd  string `xml:"cProd"`
	XProd  string `xml:"xProd"`
	NCM    string `xml:"NCM"`
	CFOP   string `xml:"CFOP"`
	UCom   string `xml:"uCom"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
}

// taxGroupXML captures whichever variant element (ICMS00, PISAliq, ...) a
// tax group holds.
type taxGroupXML struct {
	Variants []taxVariantXML `xml:",any"`
}

// taxVariantXML carries the union of the leaf tags used by the tax variants.
type taxVariantXML struct {
	XMLName xml.Name
	VBC     string `xml:"vBC"`
	PICMS   string `xml:"pICMS"`
	VICMS   string `xml:"vICMS"`
	PPIS    string `xml:"pPIS"`
	VPIS    string `xml:"vPIS"`
	PCOFINS string `xml:"pCOFINS"`
	VCOFINS string `xml:"vCOFINS"`
	PIPI    string `xml:"pIPI"`
	VIPI    string `xml:"vIPI"`
}

type issqnXML struct {
	VBC    string `xml:"vBC"`
	VAliq  string `xml:"vAliq"`
	VISSQN string `xml:"vISSQN"`
}

type impostoXML struct {
	ICMS   *taxGroupXML `xml:"ICMS"`
	IPI    *taxGroupXML `xml:"IPI"`
	PIS    *taxGroupXML `xml:"PIS"`
	COFINS *taxGroupXML `xml:"COFINS"`
	ISSQN  *issqnXML    `xml:"ISSQN"`
}

type totalXML struct {
	ICMSTot struct {
		VBC     string `xml:"vBC"`
		VICMS   string `xml:"vICMS"`
		VBCST   string `xml:"vBCST"`
		VST     string `xml:"vST"`
		VProd   string `xml:"vProd"`
		VFrete  string `xml:"vFrete"`
		VSeg    string `xml:"vSeg"`
		VDesc   string `xml:"vDesc"`
		VIPI    string `xml:"vIPI"`
		VPIS    string `xml:"vPIS"`
		VCOFINS string `xml:"vCOFINS"`
		VOutro  string `xml:"vOutro"`
		VNF     string `xml:"vNF"`
	} `xml:"ICMSTot"`
	ISSQNtot struct {
		VServ string `xml:"vServ"`
		VISS  string `xml:"vISS"`
	} `xml:"ISSQNtot"`
}

type cobrXML struct {
	Fat *struct {
		NFat  string `xml:"nFat"`
		VOrig string `xml:"vOrig"`
		VDesc string `xml:"vDesc"`
		VLiq  string `xml:"vLiq"`
	} `xml:"fat"`
	Dup []struct {
		NDup  string `xml:"nDup"`
		DVenc string `xml:"dVenc"`
		VDup  string `xml:"vDup"`
	} `xml:"dup"`
}
