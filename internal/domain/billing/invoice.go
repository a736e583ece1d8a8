// Package billing contiene el modelo de comprobantes electrónicos y el cálculo
// puro de importes y tributos (IGV, ISC, ICBPER, percepción).
package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status ciclo de vida de procesamiento de un comprobante dentro del conversor.
type Status string

const (
	StatusPending   Status = "PENDING"   // construido, sin firmar
	StatusSigned    Status = "SIGNED"    // XML firmado disponible
	StatusSubmitted Status = "SUBMITTED" // enviado, sin adjudicación todavía
	StatusAccepted  Status = "ACCEPTED"  // CDR con código 0
	StatusRejected  Status = "REJECTED"  // CDR con código distinto de 0
)

// Issuer identifica al emisor del comprobante (obligado tributario).
type Issuer struct {
	RUC          string
	LegalName    string // razón social (cbc:RegistrationName)
	TradeName    string // nombre comercial (cbc:Name); vacío = LegalName
	Ubigeo       string // código INEI de 6 dígitos
	Address      string
	District     string
	Province     string
	Department   string
	CountryCode  string // ISO 3166-1, normalmente "PE"
}

// Customer identifica al adquiriente.
type Customer struct {
	DocumentType   string // catálogo 06: "1" DNI, "6" RUC
	DocumentNumber string
	Name           string
}

// InvoiceLine línea de detalle. Los campos de importes calculados los llena
// CalculateLineAmounts; nunca se editan a mano.
type InvoiceLine struct {
	Number              int // 1-based, define el orden de salida
	ProductCode         string
	Description         string
	Quantity            decimal.Decimal
	UnitCode            string // catálogo 03
	UnitPrice           decimal.Decimal
	TaxCategory         string // catálogo 07: S, E, O, Z
	ExemptionReasonCode string // obligatorio para E y O
	ReferencePrice      decimal.Decimal // obligatorio y > 0 para Z

	IGVRate    decimal.Decimal // % (18.00 por defecto para S)
	ISCRate    decimal.Decimal // % (0 = sin ISC)
	ICBPERRate decimal.Decimal // importe fijo por unidad (0 = sin ICBPER)

	// Calculados
	ExtensionAmount decimal.Decimal // valor de venta; siempre 0 para Z
	IGVAmount       decimal.Decimal
	ISCAmount       decimal.Decimal
	ICBPERAmount    decimal.Decimal
}

// Payment forma de pago informativa; la suma no tiene que igualar el total.
type Payment struct {
	MeansCode string // catálogo 59
	Amount    decimal.Decimal
}

// Perception percepción opcional aplicada sobre una base declarada.
type Perception struct {
	Code       string
	Base       decimal.Decimal
	Percentage decimal.Decimal // %
}

// Totals importes agregados del comprobante. Derivados: los recalcula
// CalculateTotals cada vez que cambian las líneas.
type Totals struct {
	TaxedAmount      decimal.Decimal // operaciones gravadas
	ExemptAmount     decimal.Decimal // operaciones exoneradas
	UnaffectedAmount decimal.Decimal // operaciones inafectas
	FreeAmount       decimal.Decimal // operaciones gratuitas (valorizadas a precio de referencia)

	IGVAmount    decimal.Decimal
	ISCAmount    decimal.Decimal
	ICBPERAmount decimal.Decimal

	PerceptionBase       decimal.Decimal
	PerceptionPercentage decimal.Decimal
	PerceptionAmount     decimal.Decimal

	GrandTotal decimal.Decimal // importe total (las gratuitas no suman)
}

// Invoice comprobante completo. (RUC emisor, tipo, serie, número) es la
// identidad global del documento y es inmutable una vez asignada.
type Invoice struct {
	CorrelationID uuid.UUID
	DocumentType  string // catálogo 01
	Series        string // ej: F001, B001
	Number        int    // correlativo positivo, único por emisor+tipo+serie
	IssueDate     time.Time
	DueDate       *time.Time
	CurrencyCode  string // ISO 4217
	OperationType string // catálogo 17
	Notes         string

	Issuer   Issuer
	Customer Customer
	Lines    []InvoiceLine
	Payments []Payment

	Perception *Perception // nil = sin percepción
	Totals     Totals

	Status Status
}

// NewInvoice construye un comprobante en estado PENDING con su UUID de correlación.
func NewInvoice(docType, series string, number int, issueDate time.Time) *Invoice {
	return &Invoice{
		CorrelationID: uuid.New(),
		DocumentType:  docType,
		Series:        series,
		Number:        number,
		IssueDate:     issueDate,
		CurrencyCode:  "PEN",
		OperationType: "0101",
		Status:        StatusPending,
	}
}

// DocumentID identificador serie-correlativo del comprobante (ej: F001-00000042).
func (i *Invoice) DocumentID() string {
	return fmt.Sprintf("%s-%08d", i.Series, i.Number)
}

// FullDocumentName nombre completo RUC-tipo-serie-número, base del nombre de
// archivo exigido por SUNAT.
func (i *Invoice) FullDocumentName() string {
	return fmt.Sprintf("%s-%s-%s", i.Issuer.RUC, i.DocumentType, i.DocumentID())
}
