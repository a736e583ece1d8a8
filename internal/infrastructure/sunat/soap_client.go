package sunat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
)

// ── Constantes del servicio ───────────────────────────────────────────────────

const (
	soapNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	serviceNS = "http://service.sunat.gob.pe"
	wsseNS    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"

	// Códigos de getStatus para envíos con ticket.
	StatusDone       = "0"  // proceso terminado, content trae el CDR
	StatusProcessing = "98" // SUNAT aún procesa el ticket
	StatusWithErrors = "99" // proceso terminado con errores, content puede traer CDR de rechazo

	// Códigos de getStatusCdr (reconciliación de un comprobante ya enviado).
	CdrStatusAccepted = "0001" // comprobante aceptado, content trae el CDR
	CdrStatusRejected = "0002" // comprobante rechazado
	CdrStatusNotFound = "0003" // comprobante no existe en SUNAT
)

const maxResponseSize = 10 << 20 // los CDR en Base64 dentro del sobre crecen

// ── Puertos ───────────────────────────────────────────────────────────────────

// BillService puerto de salida hacia el billService de SUNAT. La
// implementación concreta usa SOAP 1.1; los tests inyectan un fake.
type BillService interface {
	// SubmitImmediate envía el ZIP con sendBill y devuelve el CDR adjudicado
	// (rama síncrona: facturas y notas).
	SubmitImmediate(ctx context.Context, zipName string, zipBytes []byte) (*Outcome, error)
	// SubmitDeferred envía el ZIP con sendSummary y devuelve un ticket
	// (rama asíncrona: resúmenes diarios de boletas y comunicaciones de baja).
	SubmitDeferred(ctx context.Context, zipName string, zipBytes []byte) (*Outcome, error)
	// PollStatus consulta getStatus con el ticket de un envío diferido.
	PollStatus(ctx context.Context, ticket string) (*Outcome, error)
	// FetchReceipt consulta getStatusCdr para reconciliar un comprobante.
	FetchReceipt(ctx context.Context, ruc, docType, series string, number int) (*Outcome, error)
}

// ── Credenciales ──────────────────────────────────────────────────────────────

// Credentials credenciales SOL del emisor. El username del UsernameToken es
// la concatenación RUC + usuario SOL, como exige el billService.
type Credentials struct {
	RUC      string
	Username string
	Password string
}

// SOAPUsername username completo del WS-Security UsernameToken.
func (c Credentials) SOAPUsername() string { return c.RUC + c.Username }

// ── Cliente SOAP ──────────────────────────────────────────────────────────────

// Client cliente SOAP 1.1 del billService sobre net/http.
type Client struct {
	endpoint    string
	credentials Credentials
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewClient construye el cliente. El timeout cubre toda la llamada HTTP; el
// billService en horas pico tarda varios segundos en adjudicar.
func NewClient(endpoint string, credentials Credentials, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:    endpoint,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
	}
}

// ── Estructuras del sobre ─────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName  xml.Name   `xml:"soapenv:Envelope"`
	XmlnsEnv string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer string     `xml:"xmlns:ser,attr"`
	XmlnsWss string     `xml:"xmlns:wsse,attr"`
	Header   soapHeader `xml:"soapenv:Header"`
	Body     soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security wsseSecurity `xml:"wsse:Security"`
}

type wsseSecurity struct {
	Token wsseUsernameToken `xml:"wsse:UsernameToken"`
}

type wsseUsernameToken struct {
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type sendBillBody struct {
	XMLName     xml.Name `xml:"ser:sendBill"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"` // ZIP en Base64
}

type sendSummaryBody struct {
	XMLName     xml.Name `xml:"ser:sendSummary"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"`
}

type getStatusBody struct {
	XMLName xml.Name `xml:"ser:getStatus"`
	Ticket  string   `xml:"ticket"`
}

type getStatusCdrBody struct {
	XMLName xml.Name `xml:"ser:getStatusCdr"`
	RUC     string   `xml:"rucComprobante"`
	DocType string   `xml:"tipoComprobante"`
	Series  string   `xml:"serieComprobante"`
	Number  int      `xml:"numeroComprobante"`
}

// ── Estructuras de respuesta ──────────────────────────────────────────────────

type responseEnvelope struct {
	Body responseBody `xml:"Body"`
}

type responseBody struct {
	SendBill     *sendBillResponse     `xml:"sendBillResponse"`
	SendSummary  *sendSummaryResponse  `xml:"sendSummaryResponse"`
	GetStatus    *getStatusResponse    `xml:"getStatusResponse"`
	GetStatusCdr *getStatusCdrResponse `xml:"getStatusCdrResponse"`
	Fault        *soapFault            `xml:"Fault"`
}

type sendBillResponse struct {
	ApplicationResponse string `xml:"applicationResponse"` // ZIP del CDR en Base64
}

type sendSummaryResponse struct {
	Ticket string `xml:"ticket"`
}

type getStatusResponse struct {
	Status statusResult `xml:"status"`
}

type getStatusCdrResponse struct {
	Status statusCdrResult `xml:"statusCdr"`
}

type statusResult struct {
	StatusCode string `xml:"statusCode"`
	Content    string `xml:"content"` // ZIP del CDR en Base64 cuando el proceso terminó
}

type statusCdrResult struct {
	StatusCode    string `xml:"statusCode"`
	StatusMessage string `xml:"statusMessage"`
	Content       string `xml:"content"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// SubmitImmediate envía el comprobante con sendBill. La adjudicación es
// síncrona: un retorno Accepted o Rejected trae el CDR decodificado.
func (c *Client) SubmitImmediate(ctx context.Context, zipName string, zipBytes []byte) (*Outcome, error) {
	body := &sendBillBody{
		FileName:    zipName,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	c.log.Info().Str("archivo", zipName).Int("zip_bytes", len(zipBytes)).Msg("enviando sendBill")

	raw, outcome, err := c.call(ctx, body)
	if outcome != nil || err != nil {
		return outcome, err
	}

	var envResp responseEnvelope
	if err := xml.Unmarshal(raw, &envResp); err != nil {
		return nil, fmt.Errorf("%w: parsear respuesta sendBill: %v", domain.ErrEnvelope, err)
	}
	if out := faultOutcome(envResp.Body.Fault); out != nil {
		return out, nil
	}
	if envResp.Body.SendBill == nil {
		return nil, fmt.Errorf("%w: respuesta sendBill sin applicationResponse", domain.ErrEnvelope)
	}
	return c.outcomeFromCDRContent(envResp.Body.SendBill.ApplicationResponse)
}

// SubmitDeferred envía el archivo con sendSummary y devuelve el ticket que
// luego se consulta con PollStatus.
func (c *Client) SubmitDeferred(ctx context.Context, zipName string, zipBytes []byte) (*Outcome, error) {
	body := &sendSummaryBody{
		FileName:    zipName,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	c.log.Info().Str("archivo", zipName).Msg("enviando sendSummary")

	raw, outcome, err := c.call(ctx, body)
	if outcome != nil || err != nil {
		return outcome, err
	}

	var envResp responseEnvelope
	if err := xml.Unmarshal(raw, &envResp); err != nil {
		return nil, fmt.Errorf("%w: parsear respuesta sendSummary: %v", domain.ErrEnvelope, err)
	}
	if out := faultOutcome(envResp.Body.Fault); out != nil {
		return out, nil
	}
	if envResp.Body.SendSummary == nil || envResp.Body.SendSummary.Ticket == "" {
		return nil, fmt.Errorf("%w: respuesta sendSummary sin ticket", domain.ErrEnvelope)
	}
	return &Outcome{State: StateTicketed, Ticket: envResp.Body.SendSummary.Ticket}, nil
}

// PollStatus consulta getStatus. Código 98 significa que SUNAT sigue
// procesando y hay que volver a consultar; 0 y 99 son terminales y el CDR
// del content trae la adjudicación.
func (c *Client) PollStatus(ctx context.Context, ticket string) (*Outcome, error) {
	if ticket == "" {
		return nil, fmt.Errorf("%w: ticket vacío", domain.ErrValidation)
	}
	raw, outcome, err := c.call(ctx, &getStatusBody{Ticket: ticket})
	if outcome != nil || err != nil {
		return outcome, err
	}

	var envResp responseEnvelope
	if err := xml.Unmarshal(raw, &envResp); err != nil {
		return nil, fmt.Errorf("%w: parsear respuesta getStatus: %v", domain.ErrEnvelope, err)
	}
	if out := faultOutcome(envResp.Body.Fault); out != nil {
		out.Ticket = ticket
		return out, nil
	}
	if envResp.Body.GetStatus == nil {
		return nil, fmt.Errorf("%w: respuesta getStatus sin status", domain.ErrEnvelope)
	}

	status := envResp.Body.GetStatus.Status
	switch status.StatusCode {
	case StatusProcessing:
		return &Outcome{State: StatePolling, Code: status.StatusCode, Ticket: ticket}, nil
	case StatusDone, StatusWithErrors:
		if status.Content == "" {
			// Terminado con errores pero sin CDR: rechazo sin constancia.
			return &Outcome{
				State:       StateRejected,
				Code:        status.StatusCode,
				Description: "proceso terminado sin CDR",
				Ticket:      ticket,
			}, nil
		}
		out, err := c.outcomeFromCDRContent(status.Content)
		if err != nil {
			return nil, err
		}
		out.Ticket = ticket
		return out, nil
	default:
		return nil, fmt.Errorf("%w: statusCode desconocido %q en getStatus", domain.ErrEnvelope, status.StatusCode)
	}
}

// FetchReceipt consulta getStatusCdr para reconciliar el estado de un
// comprobante puntual sin reenviarlo.
func (c *Client) FetchReceipt(ctx context.Context, ruc, docType, series string, number int) (*Outcome, error) {
	body := &getStatusCdrBody{RUC: ruc, DocType: docType, Series: series, Number: number}
	raw, outcome, err := c.call(ctx, body)
	if outcome != nil || err != nil {
		return outcome, err
	}

	var envResp responseEnvelope
	if err := xml.Unmarshal(raw, &envResp); err != nil {
		return nil, fmt.Errorf("%w: parsear respuesta getStatusCdr: %v", domain.ErrEnvelope, err)
	}
	if out := faultOutcome(envResp.Body.Fault); out != nil {
		return out, nil
	}
	if envResp.Body.GetStatusCdr == nil {
		return nil, fmt.Errorf("%w: respuesta getStatusCdr sin statusCdr", domain.ErrEnvelope)
	}

	status := envResp.Body.GetStatusCdr.Status
	switch status.StatusCode {
	case CdrStatusAccepted:
		if status.Content != "" {
			out, err := c.outcomeFromCDRContent(status.Content)
			if err != nil {
				return nil, err
			}
			return out, nil
		}
		return &Outcome{State: StateAccepted, Code: status.StatusCode, Description: status.StatusMessage}, nil
	case CdrStatusRejected:
		return &Outcome{State: StateRejected, Code: status.StatusCode, Description: status.StatusMessage}, nil
	case CdrStatusNotFound:
		return &Outcome{State: StateSubmitted, Code: status.StatusCode, Description: status.StatusMessage}, nil
	default:
		return nil, fmt.Errorf("%w: statusCode desconocido %q en getStatusCdr", domain.ErrEnvelope, status.StatusCode)
	}
}

// ── Transporte ────────────────────────────────────────────────────────────────

// call serializa el sobre, ejecuta el POST y devuelve el body crudo. Los
// fallos de transporte y el 401 se resuelven aquí para que todas las
// operaciones compartan el mismo mapeo: outcome no nulo corta la operación.
func (c *Client) call(ctx context.Context, content interface{}) ([]byte, *Outcome, error) {
	envelope := soapEnvelope{
		XmlnsEnv: soapNS,
		XmlnsSer: serviceNS,
		XmlnsWss: wsseNS,
		Header: soapHeader{
			Security: wsseSecurity{
				Token: wsseUsernameToken{
					Username: c.credentials.SOAPUsername(),
					Password: c.credentials.Password,
				},
			},
		},
		Body: soapBody{Content: content},
	}

	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Outcome{State: StateTransport, Description: ctx.Err().Error()},
				fmt.Errorf("%w: cancelación o timeout: %v", domain.ErrTransport, ctx.Err())
		}
		return nil, &Outcome{State: StateTransport, Description: err.Error()},
			fmt.Errorf("%w: llamada HTTP fallida: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Outcome{State: StateTransport, Description: err.Error()},
			fmt.Errorf("%w: leer respuesta: %v", domain.ErrTransport, err)
	}

	// 401 es fallo de credenciales: el comprobante nunca llegó a adjudicarse,
	// así que jamás se reporta como rechazo.
	if resp.StatusCode == http.StatusUnauthorized {
		c.log.Warn().Msg("billService devolvió 401: credenciales SOL inválidas")
		return nil, &Outcome{State: StateAuthError, Description: "credenciales SOL rechazadas (HTTP 401)"},
			fmt.Errorf("%w: HTTP 401 del billService", domain.ErrAuth)
	}
	return rawBody, nil, nil
}

// faultOutcome mapea un SOAP Fault. Un faultcode de autenticación es
// AuthError; el resto son rechazos con el código original de SUNAT.
func faultOutcome(fault *soapFault) *Outcome {
	if fault == nil {
		return nil
	}
	if isAuthFault(fault.FaultCode) {
		return &Outcome{State: StateAuthError, Code: fault.FaultCode, Description: fault.FaultString}
	}
	return &Outcome{State: StateRejected, Code: fault.FaultCode, Description: fault.FaultString}
}

// isAuthFault reconoce los faultcode de credenciales del billService
// (0101 usuario inexistente, 0102 contraseña incorrecta, 0103/0104 perfiles).
func isAuthFault(code string) bool {
	switch code {
	case "0101", "0102", "0103", "0104":
		return true
	}
	return false
}

// outcomeFromCDRContent decodifica el content Base64, extrae el CDR del ZIP y
// lo traduce a un estado terminal.
func (c *Client) outcomeFromCDRContent(contentB64 string) (*Outcome, error) {
	zipBytes, err := base64.StdEncoding.DecodeString(contentB64)
	if err != nil {
		return nil, fmt.Errorf("%w: content no es Base64: %v", domain.ErrEnvelope, err)
	}
	cdrXML, err := UnpackCDR(zipBytes)
	if err != nil {
		return nil, err
	}
	receipt, err := ParseCDR(cdrXML)
	if err != nil {
		return nil, err
	}

	state := StateRejected
	if receipt.Accepted() {
		state = StateAccepted
	}
	c.log.Info().
		Str("codigo", receipt.ResponseCode).
		Str("comprobante", receipt.ReferenceID).
		Str("estado", string(state)).
		Msg("CDR adjudicado")
	return &Outcome{
		State:       state,
		Code:        receipt.ResponseCode,
		Description: receipt.Description,
		Receipt:     receipt,
	}, nil
}
