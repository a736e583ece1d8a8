package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
)

// maxCDRSize tope de descompresión de un CDR. SUNAT devuelve archivos de
// pocos KB; un ZIP mayor es una respuesta malformada, no un CDR.
const maxCDRSize = 4 << 20

// PackDocument empaqueta el XML firmado en un ZIP en memoria con una única
// entrada deflate. SUNAT exige el nombre de entrada:
//
//	{RUC}-{tipoDoc}-{serie}-{número}.xml
//
// El stem lo produce Invoice.FullDocumentName. Devuelve los bytes del ZIP
// listos para Base64 en el sobre SOAP.
func PackDocument(xmlBytes []byte, documentName string) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("%w: XML vacío, nada que empaquetar", domain.ErrValidation)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(documentName + ".xml")
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s.xml: %w", documentName, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

// UnpackCDR extrae el XML del CDR del ZIP que devuelve SUNAT. La constancia
// viene como R-{stem}.xml; algunos ZIP incluyen además una carpeta dummy, así
// que se toma la primera entrada .xml y se ignora el resto.
func UnpackCDR(zipBytes []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: la respuesta no es un ZIP válido: %v", domain.ErrEnvelope, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: abrir entrada %s: %v", domain.ErrEnvelope, f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxCDRSize))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: leer entrada %s: %v", domain.ErrEnvelope, f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: el ZIP de respuesta no contiene ningún XML", domain.ErrEnvelope)
}
