// Package sunat contiene catálogos y validaciones alineados a los anexos de
// Comprobantes de Pago Electrónicos SUNAT (Perú).
package sunat

// =============================================================================
// Catálogo 01 - Tipos de Comprobante
// =============================================================================

const (
	DocTypeFactura     = "01" // Factura
	DocTypeBoleta      = "03" // Boleta de venta
	DocTypeNotaCredito = "07" // Nota de crédito
	DocTypeNotaDebito  = "08" // Nota de débito
)

// ValidDocumentTypeCodes tipos de comprobante soportados por el conversor.
var ValidDocumentTypeCodes = map[string]bool{
	DocTypeFactura: true, DocTypeBoleta: true,
	DocTypeNotaCredito: true, DocTypeNotaDebito: true,
}

// =============================================================================
// Catálogo 07 - Afectación del IGV (categoría tributaria de la línea)
// =============================================================================

const (
	TaxCategoryTaxed      = "S" // Gravado - operación onerosa
	TaxCategoryExempt     = "E" // Exonerado - operación onerosa
	TaxCategoryUnaffected = "O" // Inafecto - operación onerosa
	TaxCategoryFree       = "Z" // Gratuito
)

// Códigos de razón de afectación (catálogo 07) de uso frecuente.
const (
	ExemptionGravadoOneroso    = "10" // Gravado - Operación onerosa
	ExemptionExoneradoOneroso  = "20" // Exonerado - Operación onerosa
	ExemptionInafectoOneroso   = "30" // Inafecto - Operación onerosa
	ExemptionGratuitoRetiro    = "21" // Exonerado - Transferencia gratuita
	ExemptionExportacion       = "40" // Exportación de bienes o servicios
)

// =============================================================================
// Catálogo 05 - Tipos de Tributo (ID de esquema en cac:TaxScheme)
// =============================================================================

const (
	TaxSchemeIGV    = "1000" // IGV - Impuesto General a las Ventas
	TaxSchemeISC    = "2000" // ISC - Impuesto Selectivo al Consumo
	TaxSchemeICBPER = "7152" // ICBPER - Impuesto a las bolsas plásticas
	TaxSchemeGRA    = "9996" // GRA - Gratuito
)

// Nombres y códigos internacionales de tributo que acompañan al TaxScheme.
var TaxSchemeNames = map[string]string{
	TaxSchemeIGV:    "IGV",
	TaxSchemeISC:    "ISC",
	TaxSchemeICBPER: "ICBPER",
	TaxSchemeGRA:    "GRA",
}

// TaxSchemeTypeCodes código internacional (UN/ECE 5153) por tributo.
var TaxSchemeTypeCodes = map[string]string{
	TaxSchemeIGV:    "VAT",
	TaxSchemeISC:    "EXC",
	TaxSchemeICBPER: "OTH",
	TaxSchemeGRA:    "FRE",
}

// =============================================================================
// Catálogo 03 - Unidades de Medida (UN/ECE rec 20)
// =============================================================================

const (
	UnitBienes    = "NIU" // Unidad (bienes)
	UnitServicios = "ZZ"  // Unidad (servicios)
	UnitKilogram  = "KGM" // Kilogramo
	UnitMetre     = "MTR" // Metro
	UnitLitre     = "LTR" // Litro
	UnitHour      = "HUR" // Hora
)

// ValidMeasurementUnitCodes unidades de medida de uso común en facturación.
var ValidMeasurementUnitCodes = map[string]bool{
	UnitBienes: true, UnitServicios: true, UnitKilogram: true,
	UnitMetre: true, UnitLitre: true, UnitHour: true,
}

// =============================================================================
// Catálogo 59 - Medios de Pago (subconjunto de uso frecuente)
// =============================================================================

const (
	PaymentDepositoEnCuenta = "001" // Depósito en cuenta
	PaymentGiro             = "002" // Giro
	PaymentTransferencia    = "003" // Transferencia de fondos
	PaymentEfectivoSinBien  = "008" // Efectivo, sin transferencia de bienes
	PaymentEfectivo         = "009" // Efectivo, en los demás casos
)

// =============================================================================
// Catálogo 17 - Tipos de Operación
// =============================================================================

const (
	OperationVentaInterna    = "0101" // Venta interna
	OperationAnticipos       = "0112" // Venta interna - anticipos
	OperationExportacion     = "0200" // Exportación
	OperationNoDomiciliados  = "0401" // Venta interna no domiciliados
)

// =============================================================================
// Catálogo 06 - Tipos de Documento de Identidad del adquiriente
// =============================================================================

const (
	IdentityDNI = "1" // DNI
	IdentityRUC = "6" // RUC
)

// Monedas ISO 4217 aceptadas por el conversor.
const (
	CurrencyPEN = "PEN"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// ValidCurrencyCodes monedas soportadas.
var ValidCurrencyCodes = map[string]bool{
	CurrencyPEN: true, CurrencyUSD: true, CurrencyEUR: true,
}
