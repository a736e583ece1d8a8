package sunat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat"
)

// CDR de aceptación con la forma real que devuelve el billService.
const cdrAceptado = `<?xml version="1.0" encoding="UTF-8"?>
<ar:ApplicationResponse xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2"
    xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
    xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cbc:ID>F001-00000042</cbc:ID>
  <cbc:IssueDate>2026-08-15</cbc:IssueDate>
  <cbc:Note>La factura F001-00000042 ha sido aceptada con observaciones</cbc:Note>
  <cbc:Note>4252 - Observacion menor de formato</cbc:Note>
  <cac:DocumentResponse>
    <cac:Response>
      <cbc:ReferenceID>F001-00000042</cbc:ReferenceID>
      <cbc:ResponseCode>0</cbc:ResponseCode>
      <cbc:Description>La Factura numero F001-00000042, ha sido aceptada</cbc:Description>
    </cac:Response>
  </cac:DocumentResponse>
</ar:ApplicationResponse>`

const cdrRechazado = `<?xml version="1.0" encoding="UTF-8"?>
<ar:ApplicationResponse xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2"
    xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
    xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cbc:IssueDate>2026-08-15</cbc:IssueDate>
  <cac:DocumentResponse>
    <cac:Response>
      <cbc:ReferenceID>F001-00000043</cbc:ReferenceID>
      <cbc:ResponseCode>2335</cbc:ResponseCode>
      <cbc:Description>El documento electronico ingresado ha sido alterado</cbc:Description>
    </cac:Response>
  </cac:DocumentResponse>
</ar:ApplicationResponse>`

func TestParseCDR_Aceptado(t *testing.T) {
	receipt, err := sunat.ParseCDR([]byte(cdrAceptado))
	require.NoError(t, err)

	assert.True(t, receipt.Accepted())
	assert.Equal(t, "0", receipt.ResponseCode)
	assert.Equal(t, "F001-00000042", receipt.ReferenceID)
	assert.Equal(t, "2026-08-15", receipt.IssueDate)
	assert.Contains(t, receipt.Description, "aceptada")
	require.Len(t, receipt.Notes, 2, "las observaciones advisorias se conservan")
	assert.Contains(t, receipt.Notes[1], "4252")
}

// Un rechazo conserva el código y la descripción original de SUNAT sin traducir.
func TestParseCDR_Rechazado(t *testing.T) {
	receipt, err := sunat.ParseCDR([]byte(cdrRechazado))
	require.NoError(t, err)

	assert.False(t, receipt.Accepted())
	assert.Equal(t, "2335", receipt.ResponseCode)
	assert.Contains(t, receipt.Description, "alterado")
	assert.Empty(t, receipt.Notes)
}

func TestParseCDR_XMLInvalido(t *testing.T) {
	_, err := sunat.ParseCDR([]byte("esto no es XML"))
	assert.ErrorIs(t, err, domain.ErrEnvelope)
}

func TestParseCDR_NoEsApplicationResponse(t *testing.T) {
	_, err := sunat.ParseCDR([]byte(`<Invoice/>`))
	assert.ErrorIs(t, err, domain.ErrEnvelope)
}

func TestParseCDR_SinDocumentResponse(t *testing.T) {
	_, err := sunat.ParseCDR([]byte(`<ar:ApplicationResponse
		xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2"/>`))
	assert.ErrorIs(t, err, domain.ErrEnvelope)
}

func TestParseCDR_SinResponseCode(t *testing.T) {
	cdr := `<ar:ApplicationResponse xmlns:ar="x" xmlns:cac="y" xmlns:cbc="z">
	  <cac:DocumentResponse><cac:Response>
	    <cbc:ReferenceID>F001-1</cbc:ReferenceID>
	  </cac:Response></cac:DocumentResponse>
	</ar:ApplicationResponse>`
	_, err := sunat.ParseCDR([]byte(cdr))
	assert.ErrorIs(t, err, domain.ErrEnvelope)
}
