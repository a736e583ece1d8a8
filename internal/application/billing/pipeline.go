package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
	domainbilling "github.com/BrSilvinha/conversor-ubl-sunat/internal/domain/billing"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat/signer"
)

// Pipeline orquesta el flujo de emisión de un comprobante:
//
//	Totales → XML UBL 2.1 → Firma XML-DSig → ZIP → billService → Adjudicación
//
// Cada paso es terminal si falla: el comprobante conserva el último estado
// alcanzado y el caller decide si reintenta. En particular un fallo de
// credenciales o de red deja el comprobante en SIGNED, nunca en REJECTED,
// porque SUNAT no llegó a adjudicarlo.
type Pipeline struct {
	builder   DocumentBuilder
	signer    Signer
	submitter sunat.BillService
	log       zerolog.Logger
}

// NewPipeline construye el orquestador con sus dependencias.
func NewPipeline(builder DocumentBuilder, sgn Signer, submitter sunat.BillService, log zerolog.Logger) *Pipeline {
	return &Pipeline{builder: builder, signer: sgn, submitter: submitter, log: log}
}

// EmitResult resultado de una emisión: los artefactos intermedios quedan
// disponibles para persistir o auditar aunque el envío haya fallado.
type EmitResult struct {
	SignedXML []byte
	ZipBytes  []byte
	ZipName   string
	Outcome   *sunat.Outcome
}

// Emit ejecuta la rama síncrona (sendBill): facturas y notas. El comprobante
// debe estar en PENDING; al retornar su Status refleja hasta dónde llegó.
func (p *Pipeline) Emit(ctx context.Context, inv *domainbilling.Invoice, identity *signer.SigningIdentity) (*EmitResult, error) {
	result, err := p.prepare(inv, identity)
	if err != nil {
		return result, err
	}

	outcome, err := p.submitter.SubmitImmediate(ctx, result.ZipName, result.ZipBytes)
	return p.adjudicate(inv, result, outcome, err)
}

// EmitDeferred ejecuta la rama asíncrona (sendSummary): el retorno trae el
// ticket y el comprobante queda en SUBMITTED hasta que Poll resuelva.
func (p *Pipeline) EmitDeferred(ctx context.Context, inv *domainbilling.Invoice, identity *signer.SigningIdentity) (*EmitResult, error) {
	result, err := p.prepare(inv, identity)
	if err != nil {
		return result, err
	}

	outcome, err := p.submitter.SubmitDeferred(ctx, result.ZipName, result.ZipBytes)
	if err != nil {
		result.Outcome = outcome
		return result, err
	}
	result.Outcome = outcome
	if outcome.State == sunat.StateTicketed {
		inv.Status = domainbilling.StatusSubmitted
		p.log.Info().Str("comprobante", inv.DocumentID()).Str("ticket", outcome.Ticket).Msg("envío diferido aceptado")
	}
	return result, nil
}

// Poll consulta el ticket de un envío diferido y actualiza el estado del
// comprobante cuando la adjudicación es terminal.
func (p *Pipeline) Poll(ctx context.Context, inv *domainbilling.Invoice, ticket string) (*sunat.Outcome, error) {
	outcome, err := p.submitter.PollStatus(ctx, ticket)
	if err != nil {
		return outcome, err
	}
	p.applyOutcome(inv, outcome)
	return outcome, nil
}

// Reconcile consulta getStatusCdr para recuperar la adjudicación de un
// comprobante ya enviado (p. ej. tras un corte de red que dejó el resultado
// en duda).
func (p *Pipeline) Reconcile(ctx context.Context, inv *domainbilling.Invoice) (*sunat.Outcome, error) {
	outcome, err := p.submitter.FetchReceipt(ctx, inv.Issuer.RUC, inv.DocumentType, inv.Series, inv.Number)
	if err != nil {
		return outcome, err
	}
	p.applyOutcome(inv, outcome)
	return outcome, nil
}

// prepare corre los pasos locales comunes a ambas ramas: totales, XML, firma
// y ZIP. Deja el comprobante en SIGNED si todo salió bien.
func (p *Pipeline) prepare(inv *domainbilling.Invoice, identity *signer.SigningIdentity) (*EmitResult, error) {
	if inv.Status != domainbilling.StatusPending {
		return nil, fmt.Errorf("%w: el comprobante %s está en %s, se esperaba PENDING",
			domain.ErrState, inv.DocumentID(), inv.Status)
	}

	if err := domainbilling.CalculateTotals(inv); err != nil {
		return nil, err
	}

	doc, err := p.builder.Build(inv)
	if err != nil {
		return nil, err
	}

	// El certificado debe pertenecer al emisor del comprobante.
	if identity != nil && identity.RUC != "" && identity.RUC != inv.Issuer.RUC {
		return nil, fmt.Errorf("%w: el certificado pertenece al RUC %s pero el comprobante lo emite %s",
			domain.ErrValidation, identity.RUC, inv.Issuer.RUC)
	}

	signedXML, err := p.signer.Sign(doc, identity)
	if err != nil {
		return nil, err
	}
	inv.Status = domainbilling.StatusSigned
	p.log.Info().Str("comprobante", inv.DocumentID()).Msg("XML firmado")

	name := inv.FullDocumentName()
	zipBytes, err := sunat.PackDocument(signedXML, name)
	if err != nil {
		return &EmitResult{SignedXML: signedXML}, err
	}
	return &EmitResult{
		SignedXML: signedXML,
		ZipBytes:  zipBytes,
		ZipName:   name + ".zip",
	}, nil
}

// adjudicate resuelve el resultado del envío síncrono. Los fallos de
// credenciales y de transporte dejan el estado en SIGNED: el documento es
// válido y reenviable tal cual.
func (p *Pipeline) adjudicate(inv *domainbilling.Invoice, result *EmitResult, outcome *sunat.Outcome, err error) (*EmitResult, error) {
	result.Outcome = outcome
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			p.log.Warn().Str("comprobante", inv.DocumentID()).Msg("credenciales rechazadas, el comprobante sigue SIGNED")
			return result, err
		}
		if errors.Is(err, domain.ErrTransport) {
			p.log.Warn().Str("comprobante", inv.DocumentID()).Msg("fallo de transporte, reintentar o reconciliar")
			return result, err
		}
		return result, err
	}
	p.applyOutcome(inv, outcome)
	return result, nil
}

// applyOutcome traduce un estado terminal del protocolo al ciclo de vida del
// comprobante. Estados no terminales no lo mueven.
func (p *Pipeline) applyOutcome(inv *domainbilling.Invoice, outcome *sunat.Outcome) {
	if outcome == nil {
		return
	}
	switch outcome.State {
	case sunat.StateAccepted:
		inv.Status = domainbilling.StatusAccepted
		p.log.Info().Str("comprobante", inv.DocumentID()).Str("codigo", outcome.Code).Msg("comprobante aceptado")
	case sunat.StateRejected:
		inv.Status = domainbilling.StatusRejected
		p.log.Warn().Str("comprobante", inv.DocumentID()).Str("codigo", outcome.Code).
			Str("motivo", outcome.Description).Msg("comprobante rechazado")
	}
}
