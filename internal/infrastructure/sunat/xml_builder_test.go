package sunat_test

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain/billing"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat"
	pkgsunat "github.com/BrSilvinha/conversor-ubl-sunat/pkg/sunat"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// buildTestInvoice arma una factura gravada simple F001-42 con totales calculados.
func buildTestInvoice(t *testing.T) *billing.Invoice {
	t.Helper()
	inv := billing.NewInvoice(pkgsunat.DocTypeFactura, "F001", 42,
		time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC))
	inv.Issuer = billing.Issuer{
		RUC:        "20100070970",
		LegalName:  "COMERCIAL ANDINA S.A.C.",
		Ubigeo:     "150101",
		Address:    "Av. Arequipa 1234",
		District:   "Lima",
		Province:   "Lima",
		Department: "Lima",
	}
	inv.Customer = billing.Customer{
		DocumentType:   pkgsunat.IdentityRUC,
		DocumentNumber: "20131312955",
		Name:           "CLIENTE INDUSTRIAL S.A.",
	}
	inv.Lines = []billing.InvoiceLine{{
		Number:      1,
		ProductCode: "P001",
		Description: "Cemento x 42.5 kg",
		Quantity:    dec("10"),
		UnitCode:    pkgsunat.UnitBienes,
		UnitPrice:   dec("100.00"),
		TaxCategory: pkgsunat.TaxCategoryTaxed,
	}}
	require.NoError(t, billing.CalculateTotals(inv))
	return inv
}

func buildDoc(t *testing.T, inv *billing.Invoice) *etree.Document {
	t.Helper()
	doc, err := sunat.NewDocumentBuilder(sunat.DefaultNamespaces()).Build(inv)
	require.NoError(t, err)
	return doc
}

// findPath desciende por tags ignorando prefijos de namespace.
func findPath(el *etree.Element, path ...string) *etree.Element {
	current := el
	for _, tag := range path {
		var next *etree.Element
		for _, child := range current.ChildElements() {
			if child.Tag == tag {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}

// ──────────────────────────────────────────────────────────────────────────────
// Estructura del documento
// ──────────────────────────────────────────────────────────────────────────────

func TestBuild_EstructuraBasica(t *testing.T) {
	inv := buildTestInvoice(t)
	doc := buildDoc(t, inv)

	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "Invoice", root.Tag)
	assert.Equal(t, "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2",
		root.SelectAttrValue("xmlns", ""))

	assert.Equal(t, "2.1", findPath(root, "UBLVersionID").Text())
	assert.Equal(t, "2.0", findPath(root, "CustomizationID").Text())
	assert.Equal(t, "F001-00000042", findPath(root, "ID").Text())
	assert.Equal(t, "2026-08-15", findPath(root, "IssueDate").Text())
	assert.Equal(t, "1", findPath(root, "LineCountNumeric").Text())
}

// El builder reserva exactamente un ext:ExtensionContent vacío para la firma.
func TestBuild_PlaceholderDeFirmaUnicoYVacio(t *testing.T) {
	doc := buildDoc(t, buildTestInvoice(t))

	content := findPath(doc.Root(), "UBLExtensions", "UBLExtension", "ExtensionContent")
	require.NotNil(t, content)
	assert.Empty(t, content.ChildElements(), "el placeholder debe estar vacío antes de firmar")
	assert.Len(t, findPath(doc.Root(), "UBLExtensions").ChildElements(), 1,
		"una sola UBLExtension")
}

func TestBuild_InvoiceTypeCodeConAtributosDeCatalogo(t *testing.T) {
	doc := buildDoc(t, buildTestInvoice(t))

	typeCode := findPath(doc.Root(), "InvoiceTypeCode")
	require.NotNil(t, typeCode)
	assert.Equal(t, "01", typeCode.Text())
	assert.Equal(t, "PE:SUNAT", typeCode.SelectAttrValue("listAgencyName", ""))
	assert.Equal(t, "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo01",
		typeCode.SelectAttrValue("listURI", ""))
}

// El bloque informativo cac:Signature debe referenciar al ds:Signature por URI.
func TestBuild_BloqueCacSignature(t *testing.T) {
	inv := buildTestInvoice(t)
	doc := buildDoc(t, inv)

	sig := findPath(doc.Root(), "Signature")
	require.NotNil(t, sig)
	assert.Equal(t, "SignatureSP", findPath(sig, "ID").Text())
	assert.Equal(t, inv.Issuer.RUC, findPath(sig, "SignatoryParty", "PartyIdentification", "ID").Text())
	assert.Equal(t, "#SignatureSP",
		findPath(sig, "DigitalSignatureAttachment", "ExternalReference", "URI").Text())
}

func TestBuild_EmisorConRUCYDomicilio(t *testing.T) {
	doc := buildDoc(t, buildTestInvoice(t))

	partyID := findPath(doc.Root(), "AccountingSupplierParty", "Party", "PartyIdentification", "ID")
	require.NotNil(t, partyID)
	assert.Equal(t, "20100070970", partyID.Text())
	assert.Equal(t, "6", partyID.SelectAttrValue("schemeID", ""), "RUC es schemeID 6 del catálogo 06")

	address := findPath(doc.Root(), "AccountingSupplierParty", "Party", "PartyLegalEntity", "RegistrationAddress")
	require.NotNil(t, address)
	assert.Equal(t, "150101", findPath(address, "ID").Text())
	assert.Equal(t, "PE", findPath(address, "Country", "IdentificationCode").Text())
}

func TestBuild_TotalesMonetarios(t *testing.T) {
	doc := buildDoc(t, buildTestInvoice(t))

	total := findPath(doc.Root(), "LegalMonetaryTotal")
	require.NotNil(t, total)
	assert.Equal(t, "1000.00", findPath(total, "LineExtensionAmount").Text())
	assert.Equal(t, "1180.00", findPath(total, "TaxInclusiveAmount").Text())
	assert.Equal(t, "1180.00", findPath(total, "PayableAmount").Text())
	assert.Equal(t, "PEN", findPath(total, "PayableAmount").SelectAttrValue("currencyID", ""))
}

func TestBuild_LineaGravadaConIGV(t *testing.T) {
	doc := buildDoc(t, buildTestInvoice(t))

	line := findPath(doc.Root(), "InvoiceLine")
	require.NotNil(t, line)

	qty := findPath(line, "InvoicedQuantity")
	assert.Equal(t, "10", qty.Text())
	assert.Equal(t, "NIU", qty.SelectAttrValue("unitCode", ""))

	subtotal := findPath(line, "TaxTotal", "TaxSubtotal")
	require.NotNil(t, subtotal)
	assert.Equal(t, "1000.00", findPath(subtotal, "TaxableAmount").Text())
	assert.Equal(t, "180.00", findPath(subtotal, "TaxAmount").Text())
	assert.Equal(t, "S", findPath(subtotal, "TaxCategory", "ID").Text())
	assert.Equal(t, "1000", findPath(subtotal, "TaxCategory", "TaxScheme", "ID").Text())
	assert.Equal(t, "IGV", findPath(subtotal, "TaxCategory", "TaxScheme", "Name").Text())
}

// Línea gratuita: LineExtensionAmount 0, precio de referencia en PricingReference
// con PriceTypeCode 02, y subtotal de IGV con la base valorizada y monto 0.
func TestBuild_LineaGratuitaConPrecioDeReferencia(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.Lines = append(inv.Lines, billing.InvoiceLine{
		Number:              2,
		Description:         "Muestra gratuita",
		Quantity:            dec("2"),
		UnitPrice:           decimal.Zero,
		TaxCategory:         pkgsunat.TaxCategoryFree,
		ExemptionReasonCode: pkgsunat.ExemptionGratuitoRetiro,
		ReferencePrice:      dec("30.00"),
	})
	require.NoError(t, billing.CalculateTotals(inv))
	doc := buildDoc(t, inv)

	var freeLine *etree.Element
	for _, line := range doc.Root().ChildElements() {
		if line.Tag == "InvoiceLine" && findPath(line, "ID").Text() == "2" {
			freeLine = line
		}
	}
	require.NotNil(t, freeLine)

	assert.Equal(t, "0.00", findPath(freeLine, "LineExtensionAmount").Text())

	altPrice := findPath(freeLine, "PricingReference", "AlternativeConditionPrice")
	require.NotNil(t, altPrice, "línea gratuita debe llevar precio de referencia")
	assert.Equal(t, "30.00", findPath(altPrice, "PriceAmount").Text())
	assert.Equal(t, "02", findPath(altPrice, "PriceTypeCode").Text())

	subtotal := findPath(freeLine, "TaxTotal", "TaxSubtotal")
	assert.Equal(t, "60.00", findPath(subtotal, "TaxableAmount").Text(),
		"la base del subtotal gratuito es cantidad × precio de referencia")
	assert.Equal(t, "0.00", findPath(subtotal, "TaxAmount").Text())

	// El total del documento no incluye las gratuitas pero sí las declara.
	assert.Equal(t, "60.00", findPath(doc.Root(), "LegalMonetaryTotal", "ChargeTotalAmount").Text())
}

func TestBuild_ExoneradaLlevaRazonDeAfectacion(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.Lines[0].TaxCategory = pkgsunat.TaxCategoryExempt
	inv.Lines[0].ExemptionReasonCode = pkgsunat.ExemptionExoneradoOneroso
	require.NoError(t, billing.CalculateTotals(inv))
	doc := buildDoc(t, inv)

	category := findPath(doc.Root(), "InvoiceLine", "TaxTotal", "TaxSubtotal", "TaxCategory")
	require.NotNil(t, category)
	assert.Equal(t, "E", findPath(category, "ID").Text())
	assert.Equal(t, "20", findPath(category, "TaxExemptionReasonCode").Text())
}

func TestBuild_FormaDePago(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.Payments = []billing.Payment{{MeansCode: pkgsunat.PaymentEfectivo, Amount: dec("1180.00")}}
	require.NoError(t, billing.CalculateTotals(inv))
	doc := buildDoc(t, inv)

	terms := findPath(doc.Root(), "PaymentTerms")
	require.NotNil(t, terms)
	assert.Equal(t, "FormaPago", findPath(terms, "ID").Text())
	assert.Equal(t, "1180.00", findPath(terms, "Amount").Text())
}

// ──────────────────────────────────────────────────────────────────────────────
// Validación previa
// ──────────────────────────────────────────────────────────────────────────────

func TestBuild_TipoDesconocidoEsError(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.DocumentType = "99"

	_, err := sunat.NewDocumentBuilder(sunat.DefaultNamespaces()).Build(inv)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuild_MonedaNoSoportadaEsError(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.CurrencyCode = "XXX"

	_, err := sunat.NewDocumentBuilder(sunat.DefaultNamespaces()).Build(inv)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuild_SinLineasEsError(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.Lines = nil

	_, err := sunat.NewDocumentBuilder(sunat.DefaultNamespaces()).Build(inv)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuild_RUCDeEmisorInvalidoEsError(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.Issuer.RUC = "20100070971" // dígito verificador incorrecto

	_, err := sunat.NewDocumentBuilder(sunat.DefaultNamespaces()).Build(inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "RUC del emisor")
}

func TestBuild_RUCDeClienteInvalidoEsError(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.Customer.DocumentType = pkgsunat.IdentityRUC
	inv.Customer.DocumentNumber = "12345678901"

	_, err := sunat.NewDocumentBuilder(sunat.DefaultNamespaces()).Build(inv)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuild_ExoneradaSinCodigoEsError(t *testing.T) {
	inv := buildTestInvoice(t)
	inv.Lines[0].TaxCategory = pkgsunat.TaxCategoryExempt
	inv.Lines[0].ExemptionReasonCode = ""

	_, err := sunat.NewDocumentBuilder(sunat.DefaultNamespaces()).Build(inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "línea 1", "el error debe nombrar la línea ofensora")
}

// Mismo input, mismos bytes: el builder es determinista.
func TestBuild_Determinista(t *testing.T) {
	inv := buildTestInvoice(t)

	doc1 := buildDoc(t, inv)
	doc2 := buildDoc(t, inv)

	xml1, err := doc1.WriteToString()
	require.NoError(t, err)
	xml2, err := doc2.WriteToString()
	require.NoError(t, err)
	assert.Equal(t, xml1, xml2)
}
