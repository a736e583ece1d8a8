package sunat

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
)

// ParseCDR decodifica la constancia de recepción (ApplicationResponse UBL)
// que SUNAT devuelve dentro del ZIP de respuesta. La adjudicación vive en
// cac:DocumentResponse/cac:Response: ResponseCode "0" es aceptado, cualquier
// otro código es rechazo con la descripción original de SUNAT. Las cbc:Note
// del nivel raíz son observaciones advisorias que no cambian la adjudicación.
func ParseCDR(cdrXML []byte) (*CDRReceipt, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(cdrXML); err != nil {
		return nil, fmt.Errorf("%w: CDR no es XML válido: %v", domain.ErrEnvelope, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "ApplicationResponse" {
		return nil, fmt.Errorf("%w: el CDR no es un ApplicationResponse", domain.ErrEnvelope)
	}

	receipt := &CDRReceipt{
		IssueDate: findText(root, "IssueDate"),
	}
	for _, note := range root.ChildElements() {
		if note.Tag == "Note" {
			if text := strings.TrimSpace(note.Text()); text != "" {
				receipt.Notes = append(receipt.Notes, text)
			}
		}
	}

	docResponse := findChild(root, "DocumentResponse")
	if docResponse == nil {
		return nil, fmt.Errorf("%w: CDR sin cac:DocumentResponse", domain.ErrEnvelope)
	}
	response := findChild(docResponse, "Response")
	if response == nil {
		return nil, fmt.Errorf("%w: CDR sin cac:Response", domain.ErrEnvelope)
	}

	receipt.ResponseCode = findText(response, "ResponseCode")
	receipt.Description = findText(response, "Description")
	receipt.ReferenceID = findText(response, "ReferenceID")
	if receipt.ResponseCode == "" {
		return nil, fmt.Errorf("%w: CDR sin cbc:ResponseCode", domain.ErrEnvelope)
	}
	return receipt, nil
}

// findChild primer hijo con ese tag, ignorando el prefijo de namespace.
func findChild(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func findText(el *etree.Element, tag string) string {
	if child := findChild(el, tag); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}
