// Package billing orquesta el ciclo completo de emisión: cálculo de importes,
// construcción del XML UBL, firma, empaquetado ZIP y envío al billService.
package billing

import (
	"github.com/beevik/etree"

	domainbilling "github.com/BrSilvinha/conversor-ubl-sunat/internal/domain/billing"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat/signer"
)

// DocumentBuilder puerto de construcción del XML UBL 2.1.
type DocumentBuilder interface {
	Build(inv *domainbilling.Invoice) (*etree.Document, error)
}

// Signer puerto del motor de firma XML-DSig. Para tests se inyecta un fake
// que devuelve bytes predecibles.
type Signer interface {
	Sign(doc *etree.Document, identity *signer.SigningIdentity) ([]byte, error)
	Verify(signedXML []byte) (bool, error)
}
