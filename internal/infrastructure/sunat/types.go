// Package sunat implementa la generación de XML UBL 2.1, el empaquetado ZIP y
// el cliente SOAP del billService para comprobantes electrónicos SUNAT (Perú).
package sunat

// NamespaceTable tabla inmutable de namespaces UBL 2.1. Se inyecta al builder
// en su construcción; no existe registro global de namespaces en el proceso.
type NamespaceTable struct {
	Invoice string // namespace por defecto del documento
	Cac     string // Common Aggregate Components
	Cbc     string // Common Basic Components
	Ext     string // Common Extension Components
	Ds      string // XML Digital Signature
}

// DefaultNamespaces namespaces oficiales UBL 2.1 para Invoice.
func DefaultNamespaces() NamespaceTable {
	return NamespaceTable{
		Invoice: "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2",
		Cac:     "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2",
		Cbc:     "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2",
		Ext:     "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2",
		Ds:      "http://www.w3.org/2000/09/xmldsig#",
	}
}

// OutcomeState estado del comprobante dentro del protocolo de envío.
type OutcomeState string

const (
	StateSubmitted OutcomeState = "SUBMITTED"
	StateTicketed  OutcomeState = "TICKETED"
	StatePolling   OutcomeState = "POLLING" // SUNAT aún procesa el ticket
	StateAccepted  OutcomeState = "ACCEPTED"
	StateRejected  OutcomeState = "REJECTED"
	StateAuthError OutcomeState = "AUTH_ERROR" // el envío nunca llegó a adjudicación
	StateTransport OutcomeState = "TRANSPORT_ERROR"
)

// Terminal indica si el estado ya no cambia con nuevas consultas.
func (s OutcomeState) Terminal() bool {
	return s == StateAccepted || s == StateRejected
}

// CDRReceipt constancia de recepción (CDR) decodificada.
// ResponseCode "0" = aceptado; cualquier otro valor = rechazado con el código
// y la descripción original de SUNAT, sin traducir, para auditoría.
type CDRReceipt struct {
	ResponseCode string
	Description  string
	ReferenceID  string // identificador del comprobante adjudicado
	IssueDate    string
	Notes        []string // observaciones advisorias de SUNAT
}

// Accepted true si SUNAT aceptó el comprobante.
func (r *CDRReceipt) Accepted() bool { return r.ResponseCode == "0" }

// Outcome resultado de una operación del protocolo de envío.
type Outcome struct {
	State       OutcomeState
	Code        string // código SUNAT (CDR, fault o getStatus)
	Description string
	Ticket      string      // solo en la rama asíncrona
	Receipt     *CDRReceipt // presente en estados terminales con CDR
}
