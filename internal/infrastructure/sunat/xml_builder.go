package sunat

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain/billing"
	pkgsunat "github.com/BrSilvinha/conversor-ubl-sunat/pkg/sunat"
)

// Atributos de catálogo repetidos en varios elementos.
const (
	agencySUNAT    = "PE:SUNAT"
	catalogBase    = "urn:pe:gob:sunat:cpe:see:gem:catalogos:"
	agencyUNECE    = "United Nations Economic Commission for Europe"
	signatureRefID = "SignatureSP" // cbc:ID del bloque cac:Signature y URI del adjunto
)

// attr par clave/valor de atributo XML. Los atributos de un elemento se
// declaran completos en su creación y nunca se modifican después: así es
// estructuralmente imposible fijar dos veces un atributo sobre el mismo nodo.
type attr struct {
	Key   string
	Value string
}

// DocumentBuilder construye el XML UBL 2.1 del comprobante (sin firma).
// Transformación pura: no toca disco ni red.
type DocumentBuilder struct {
	ns NamespaceTable
}

// NewDocumentBuilder crea el builder con su tabla de namespaces.
func NewDocumentBuilder(ns NamespaceTable) *DocumentBuilder {
	return &DocumentBuilder{ns: ns}
}

// Build genera el árbol XML del comprobante según UBL 2.1 SUNAT, con un único
// ext:ExtensionContent vacío reservado para la firma digital.
func (b *DocumentBuilder) Build(inv *billing.Invoice) (*etree.Document, error) {
	if err := b.validate(inv); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="no"`)

	root := doc.CreateElement("Invoice")
	for _, a := range []attr{
		{"xmlns", b.ns.Invoice},
		{"xmlns:cac", b.ns.Cac},
		{"xmlns:cbc", b.ns.Cbc},
		{"xmlns:ds", b.ns.Ds},
		{"xmlns:ext", b.ns.Ext},
	} {
		root.CreateAttr(a.Key, a.Value)
	}

	b.writeExtensions(root)
	b.writeDocumentInfo(root, inv)
	b.writeSignatureBlock(root, inv)
	b.writeSupplierParty(root, inv)
	b.writeCustomerParty(root, inv)
	b.writePaymentTerms(root, inv)
	b.writeDocumentTaxTotal(root, inv)
	b.writeMonetaryTotal(root, inv)
	for idx := range inv.Lines {
		b.writeInvoiceLine(root, inv, &inv.Lines[idx])
	}

	return doc, nil
}

// validate rechaza comprobantes con campos de acompañamiento ausentes antes de
// emitir un solo nodo, nombrando la línea ofensora.
func (b *DocumentBuilder) validate(inv *billing.Invoice) error {
	if !pkgsunat.ValidDocumentTypeCodes[inv.DocumentType] {
		return fmt.Errorf("%w: tipo de comprobante desconocido %q", domain.ErrValidation, inv.DocumentType)
	}
	if !pkgsunat.ValidCurrencyCodes[inv.CurrencyCode] {
		return fmt.Errorf("%w: moneda no soportada %q", domain.ErrValidation, inv.CurrencyCode)
	}
	if inv.Series == "" || inv.Number < 1 {
		return fmt.Errorf("%w: serie o correlativo inválidos", domain.ErrValidation)
	}
	if err := pkgsunat.ValidateRUC(inv.Issuer.RUC); err != nil {
		return fmt.Errorf("%w: RUC del emisor: %v", domain.ErrValidation, err)
	}
	if inv.Customer.DocumentType == pkgsunat.IdentityRUC {
		if err := pkgsunat.ValidateRUC(inv.Customer.DocumentNumber); err != nil {
			return fmt.Errorf("%w: RUC del cliente: %v", domain.ErrValidation, err)
		}
	}
	if len(inv.Lines) == 0 {
		return fmt.Errorf("%w: comprobante sin líneas de detalle", domain.ErrValidation)
	}
	for i := range inv.Lines {
		line := &inv.Lines[i]
		switch line.TaxCategory {
		case pkgsunat.TaxCategoryTaxed:
		case pkgsunat.TaxCategoryExempt, pkgsunat.TaxCategoryUnaffected:
			if line.ExemptionReasonCode == "" {
				return fmt.Errorf("%w: línea %d: falta código de razón de afectación para categoría %s",
					domain.ErrValidation, line.Number, line.TaxCategory)
			}
		case pkgsunat.TaxCategoryFree:
			if !line.ReferencePrice.IsPositive() {
				return fmt.Errorf("%w: línea %d: línea gratuita requiere precio de referencia > 0",
					domain.ErrValidation, line.Number)
			}
			if !line.UnitPrice.IsZero() {
				return fmt.Errorf("%w: línea %d: línea gratuita debe tener precio unitario 0",
					domain.ErrValidation, line.Number)
			}
		default:
			return fmt.Errorf("%w: línea %d: categoría tributaria desconocida %q",
				domain.ErrValidation, line.Number, line.TaxCategory)
		}
	}
	return nil
}

// el crea un hijo con su lista completa de atributos y texto opcional.
// Es el único punto del builder que llama a CreateAttr.
func (b *DocumentBuilder) el(parent *etree.Element, tag, text string, attrs ...attr) *etree.Element {
	child := parent.CreateElement(tag)
	for _, a := range attrs {
		child.CreateAttr(a.Key, a.Value)
	}
	if text != "" {
		child.SetText(text)
	}
	return child
}

// amount crea un elemento monetario con currencyID y dos decimales exactos.
func (b *DocumentBuilder) amount(parent *etree.Element, tag string, value decimal.Decimal, currency string) {
	b.el(parent, tag, value.StringFixed(2), attr{"currencyID", currency})
}

// writeExtensions emite ext:UBLExtensions con un único ExtensionContent vacío:
// el placeholder donde el firmador inyectará ds:Signature.
func (b *DocumentBuilder) writeExtensions(root *etree.Element) {
	extensions := b.el(root, "ext:UBLExtensions", "")
	extension := b.el(extensions, "ext:UBLExtension", "")
	b.el(extension, "ext:ExtensionContent", "")
}

func (b *DocumentBuilder) writeDocumentInfo(root *etree.Element, inv *billing.Invoice) {
	b.el(root, "cbc:UBLVersionID", "2.1")
	b.el(root, "cbc:CustomizationID", "2.0")
	b.el(root, "cbc:ProfileID", inv.OperationType,
		attr{"schemeName", "Tipo de Operacion"},
		attr{"schemeAgencyName", agencySUNAT},
		attr{"schemeURI", catalogBase + "catalogo17"})
	b.el(root, "cbc:ID", inv.DocumentID())
	b.el(root, "cbc:IssueDate", inv.IssueDate.Format("2006-01-02"))
	b.el(root, "cbc:IssueTime", inv.IssueDate.Format("15:04:05"))
	if inv.DueDate != nil {
		b.el(root, "cbc:DueDate", inv.DueDate.Format("2006-01-02"))
	}
	b.el(root, "cbc:InvoiceTypeCode", inv.DocumentType,
		attr{"listAgencyName", agencySUNAT},
		attr{"listName", "Tipo de Documento"},
		attr{"listURI", catalogBase + "catalogo01"})
	if inv.Notes != "" {
		b.el(root, "cbc:Note", inv.Notes)
	}
	b.el(root, "cbc:DocumentCurrencyCode", inv.CurrencyCode,
		attr{"listID", "ISO 4217 Alpha"},
		attr{"listName", "Currency"},
		attr{"listAgencyName", agencyUNECE})
	b.el(root, "cbc:LineCountNumeric", strconv.Itoa(len(inv.Lines)))
}

// writeSignatureBlock emite el bloque informativo cac:Signature que referencia
// la firma adjunta (exigido por SUNAT además del ds:Signature de la extensión).
func (b *DocumentBuilder) writeSignatureBlock(root *etree.Element, inv *billing.Invoice) {
	sig := b.el(root, "cac:Signature", "")
	b.el(sig, "cbc:ID", signatureRefID)
	party := b.el(sig, "cac:SignatoryParty", "")
	partyID := b.el(party, "cac:PartyIdentification", "")
	b.el(partyID, "cbc:ID", inv.Issuer.RUC)
	name := b.el(party, "cac:PartyName", "")
	b.el(name, "cbc:Name", inv.Issuer.LegalName)
	attach := b.el(sig, "cac:DigitalSignatureAttachment", "")
	ref := b.el(attach, "cac:ExternalReference", "")
	b.el(ref, "cbc:URI", "#"+signatureRefID)
}

func (b *DocumentBuilder) writeSupplierParty(root *etree.Element, inv *billing.Invoice) {
	supplier := b.el(root, "cac:AccountingSupplierParty", "")
	party := b.el(supplier, "cac:Party", "")

	partyID := b.el(party, "cac:PartyIdentification", "")
	b.el(partyID, "cbc:ID", inv.Issuer.RUC,
		attr{"schemeID", pkgsunat.IdentityRUC},
		attr{"schemeName", "Documento de Identidad"},
		attr{"schemeAgencyName", agencySUNAT},
		attr{"schemeURI", catalogBase + "catalogo06"})

	tradeName := inv.Issuer.TradeName
	if tradeName == "" {
		tradeName = inv.Issuer.LegalName
	}
	partyName := b.el(party, "cac:PartyName", "")
	b.el(partyName, "cbc:Name", tradeName)

	legal := b.el(party, "cac:PartyLegalEntity", "")
	b.el(legal, "cbc:RegistrationName", inv.Issuer.LegalName)

	address := b.el(legal, "cac:RegistrationAddress", "")
	ubigeo := inv.Issuer.Ubigeo
	if ubigeo == "" {
		ubigeo = "150101" // Lima por defecto
	}
	b.el(address, "cbc:ID", ubigeo,
		attr{"schemeName", "Ubigeos"},
		attr{"schemeAgencyName", "PE:INEI"})
	b.el(address, "cbc:AddressTypeCode", "0000",
		attr{"listAgencyName", agencySUNAT},
		attr{"listName", "Establecimientos anexos"})
	if inv.Issuer.Province != "" {
		b.el(address, "cbc:CityName", inv.Issuer.Province)
	}
	if inv.Issuer.Department != "" {
		b.el(address, "cbc:CountrySubentity", inv.Issuer.Department)
	}
	if inv.Issuer.District != "" {
		b.el(address, "cbc:District", inv.Issuer.District)
	}
	if inv.Issuer.Address != "" {
		addrLine := b.el(address, "cac:AddressLine", "")
		b.el(addrLine, "cbc:Line", inv.Issuer.Address)
	}
	country := b.el(address, "cac:Country", "")
	countryCode := inv.Issuer.CountryCode
	if countryCode == "" {
		countryCode = "PE"
	}
	b.el(country, "cbc:IdentificationCode", countryCode,
		attr{"listID", "ISO 3166-1"},
		attr{"listAgencyName", agencyUNECE},
		attr{"listName", "Country"})
}

func (b *DocumentBuilder) writeCustomerParty(root *etree.Element, inv *billing.Invoice) {
	customer := b.el(root, "cac:AccountingCustomerParty", "")
	party := b.el(customer, "cac:Party", "")

	partyID := b.el(party, "cac:PartyIdentification", "")
	b.el(partyID, "cbc:ID", inv.Customer.DocumentNumber,
		attr{"schemeID", inv.Customer.DocumentType},
		attr{"schemeName", "Documento de Identidad"},
		attr{"schemeAgencyName", agencySUNAT},
		attr{"schemeURI", catalogBase + "catalogo06"})

	legal := b.el(party, "cac:PartyLegalEntity", "")
	b.el(legal, "cbc:RegistrationName", inv.Customer.Name)
}

// writePaymentTerms emite una cac:PaymentTerms informativa por forma de pago.
func (b *DocumentBuilder) writePaymentTerms(root *etree.Element, inv *billing.Invoice) {
	for _, p := range inv.Payments {
		terms := b.el(root, "cac:PaymentTerms", "")
		b.el(terms, "cbc:ID", "FormaPago")
		b.el(terms, "cbc:PaymentMeansID", p.MeansCode)
		b.amount(terms, "cbc:Amount", p.Amount, inv.CurrencyCode)
	}
}

func (b *DocumentBuilder) writeDocumentTaxTotal(root *etree.Element, inv *billing.Invoice) {
	t := inv.Totals
	taxTotal := b.el(root, "cac:TaxTotal", "")
	totalTax := t.IGVAmount.Add(t.ISCAmount).Add(t.ICBPERAmount)
	b.amount(taxTotal, "cbc:TaxAmount", totalTax, inv.CurrencyCode)

	if t.IGVAmount.IsPositive() || t.TaxedAmount.IsPositive() {
		b.writeDocTaxSubtotal(taxTotal, inv, pkgsunat.TaxSchemeIGV, t.TaxedAmount, t.IGVAmount)
	}
	if t.ISCAmount.IsPositive() {
		b.writeDocTaxSubtotal(taxTotal, inv, pkgsunat.TaxSchemeISC, t.TaxedAmount, t.ISCAmount)
	}
	if t.ICBPERAmount.IsPositive() {
		// Para ICBPER la base imponible es la cantidad total de unidades gravadas.
		b.writeDocTaxSubtotal(taxTotal, inv, pkgsunat.TaxSchemeICBPER, icbperQuantity(inv), t.ICBPERAmount)
	}
	if t.FreeAmount.IsPositive() {
		b.writeDocTaxSubtotal(taxTotal, inv, pkgsunat.TaxSchemeGRA, t.FreeAmount, decimal.Zero)
	}
}

// icbperQuantity suma las cantidades de las líneas afectas al ICBPER.
func icbperQuantity(inv *billing.Invoice) decimal.Decimal {
	total := decimal.Zero
	for i := range inv.Lines {
		if inv.Lines[i].ICBPERAmount.IsPositive() {
			total = total.Add(inv.Lines[i].Quantity)
		}
	}
	return total
}

func (b *DocumentBuilder) writeDocTaxSubtotal(taxTotal *etree.Element, inv *billing.Invoice, schemeID string, base, amount decimal.Decimal) {
	subtotal := b.el(taxTotal, "cac:TaxSubtotal", "")
	b.amount(subtotal, "cbc:TaxableAmount", base, inv.CurrencyCode)
	b.amount(subtotal, "cbc:TaxAmount", amount, inv.CurrencyCode)
	category := b.el(subtotal, "cac:TaxCategory", "")
	b.writeTaxScheme(category, schemeID)
}

// writeTaxScheme emite el cac:TaxScheme del catálogo 05 para un tributo.
func (b *DocumentBuilder) writeTaxScheme(category *etree.Element, schemeID string) {
	scheme := b.el(category, "cac:TaxScheme", "")
	b.el(scheme, "cbc:ID", schemeID,
		attr{"schemeName", "Codigo de tributos"},
		attr{"schemeAgencyName", agencySUNAT},
		attr{"schemeURI", catalogBase + "catalogo05"})
	b.el(scheme, "cbc:Name", pkgsunat.TaxSchemeNames[schemeID])
	b.el(scheme, "cbc:TaxTypeCode", pkgsunat.TaxSchemeTypeCodes[schemeID])
}

func (b *DocumentBuilder) writeMonetaryTotal(root *etree.Element, inv *billing.Invoice) {
	t := inv.Totals
	total := b.el(root, "cac:LegalMonetaryTotal", "")
	lineExtension := t.TaxedAmount.Add(t.ExemptAmount).Add(t.UnaffectedAmount)
	b.amount(total, "cbc:LineExtensionAmount", lineExtension, inv.CurrencyCode)
	b.amount(total, "cbc:TaxInclusiveAmount", lineExtension.Add(t.IGVAmount).Add(t.ISCAmount).Add(t.ICBPERAmount), inv.CurrencyCode)
	if t.FreeAmount.IsPositive() {
		b.amount(total, "cbc:ChargeTotalAmount", t.FreeAmount, inv.CurrencyCode)
	}
	if t.PerceptionAmount.IsPositive() {
		b.amount(total, "cbc:PrepaidAmount", t.PerceptionAmount, inv.CurrencyCode)
	}
	b.amount(total, "cbc:PayableAmount", t.GrandTotal, inv.CurrencyCode)
}

func (b *DocumentBuilder) writeInvoiceLine(root *etree.Element, inv *billing.Invoice, line *billing.InvoiceLine) {
	currency := inv.CurrencyCode
	lineEl := b.el(root, "cac:InvoiceLine", "")
	b.el(lineEl, "cbc:ID", strconv.Itoa(line.Number))

	unitCode := line.UnitCode
	if unitCode == "" {
		unitCode = pkgsunat.UnitBienes
	}
	b.el(lineEl, "cbc:InvoicedQuantity", line.Quantity.String(),
		attr{"unitCode", unitCode},
		attr{"unitCodeListID", "UN/ECE rec 20"},
		attr{"unitCodeListAgencyID", "6"})
	b.amount(lineEl, "cbc:LineExtensionAmount", line.ExtensionAmount, currency)

	// Precio de referencia para operaciones gratuitas (catálogo 16, tipo 02).
	if line.TaxCategory == pkgsunat.TaxCategoryFree {
		pricingRef := b.el(lineEl, "cac:PricingReference", "")
		altPrice := b.el(pricingRef, "cac:AlternativeConditionPrice", "")
		b.amount(altPrice, "cbc:PriceAmount", line.ReferencePrice, currency)
		b.el(altPrice, "cbc:PriceTypeCode", "02",
			attr{"listName", "Tipo de Precio"},
			attr{"listAgencyName", agencySUNAT},
			attr{"listURI", catalogBase + "catalogo16"})
	}

	b.writeLineTaxTotal(lineEl, line, currency)

	item := b.el(lineEl, "cac:Item", "")
	b.el(item, "cbc:Description", line.Description)
	if line.ProductCode != "" {
		sellersID := b.el(item, "cac:SellersItemIdentification", "")
		b.el(sellersID, "cbc:ID", line.ProductCode)
	}

	price := b.el(lineEl, "cac:Price", "")
	b.amount(price, "cbc:PriceAmount", line.UnitPrice, currency)
}

func (b *DocumentBuilder) writeLineTaxTotal(lineEl *etree.Element, line *billing.InvoiceLine, currency string) {
	taxTotal := b.el(lineEl, "cac:TaxTotal", "")
	totalTax := line.IGVAmount.Add(line.ISCAmount).Add(line.ICBPERAmount)
	b.amount(taxTotal, "cbc:TaxAmount", totalTax, currency)

	// El subtotal de IGV va siempre: para E/O/Z lleva monto 0 con su razón de afectación.
	b.writeLineTaxSubtotal(taxTotal, line, pkgsunat.TaxSchemeIGV, line.IGVAmount, line.IGVRate, currency)
	if line.ISCAmount.IsPositive() {
		b.writeLineTaxSubtotal(taxTotal, line, pkgsunat.TaxSchemeISC, line.ISCAmount, line.ISCRate, currency)
	}
	if line.ICBPERAmount.IsPositive() {
		b.writeLineTaxSubtotal(taxTotal, line, pkgsunat.TaxSchemeICBPER, line.ICBPERAmount, line.ICBPERRate, currency)
	}
}

func (b *DocumentBuilder) writeLineTaxSubtotal(taxTotal *etree.Element, line *billing.InvoiceLine, schemeID string, amount, rate decimal.Decimal, currency string) {
	subtotal := b.el(taxTotal, "cac:TaxSubtotal", "")

	switch schemeID {
	case pkgsunat.TaxSchemeICBPER:
		// La base del ICBPER es la cantidad, no el valor de venta.
		b.el(subtotal, "cbc:TaxableAmount", line.Quantity.StringFixed(2), attr{"currencyID", currency})
	default:
		base := line.ExtensionAmount
		if line.TaxCategory == pkgsunat.TaxCategoryFree {
			base = line.Quantity.Mul(line.ReferencePrice).Round(2)
		}
		b.amount(subtotal, "cbc:TaxableAmount", base, currency)
	}
	b.amount(subtotal, "cbc:TaxAmount", amount, currency)

	category := b.el(subtotal, "cac:TaxCategory", "")
	b.el(category, "cbc:ID", line.TaxCategory,
		attr{"schemeID", "UN/ECE 5305"},
		attr{"schemeName", "Tax Category Identifier"},
		attr{"schemeAgencyName", agencyUNECE})
	if schemeID != pkgsunat.TaxSchemeICBPER {
		b.el(category, "cbc:Percent", rate.StringFixed(2))
	}
	if line.ExemptionReasonCode != "" && schemeID == pkgsunat.TaxSchemeIGV {
		b.el(category, "cbc:TaxExemptionReasonCode", line.ExemptionReasonCode,
			attr{"listAgencyName", agencySUNAT},
			attr{"listName", "Afectacion del IGV"},
			attr{"listURI", catalogBase + "catalogo07"})
	}
	b.writeTaxScheme(category, schemeID)
}
