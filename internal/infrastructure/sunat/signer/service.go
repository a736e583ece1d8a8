// Servicio de firma digital XML-DSig (enveloped) para comprobantes UBL SUNAT.
// Inyecta el nodo ds:Signature dentro del ext:ExtensionContent vacío que
// reserva el builder, y verifica comprobantes ya firmados.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
)

// Service motor de canonicalización y firma. Sin estado: la identidad se
// recibe por operación y nunca se retiene.
type Service struct{}

// NewService crea el servicio de firma.
func NewService() *Service {
	return &Service{}
}

// Sign firma el documento y devuelve el XML final serializado.
//
// El digest se calcula sobre la forma canónica exclusiva del documento sin
// firma; después se canonicaliza el SignedInfo por separado y se firma su
// digest con RSA PKCS#1 v1.5. Cualquier fallo es terminal para el intento:
// el caller debe descartar y partir de un documento sin firmar.
func (s *Service) Sign(doc *etree.Document, identity *SigningIdentity) ([]byte, error) {
	if doc == nil || doc.Root() == nil {
		return nil, fmt.Errorf("%w: documento vacío", domain.ErrStructural)
	}
	if identity == nil || identity.PrivateKey == nil || identity.Certificate == nil {
		return nil, fmt.Errorf("%w: identidad de firma incompleta", domain.ErrCertificate)
	}

	// 1) Placeholder de firma: exactamente un ext:ExtensionContent vacío.
	placeholder, err := findSignaturePlaceholder(doc.Root())
	if err != nil {
		return nil, err
	}

	// 2) Firmar no es idempotente: un ds:Signature previo es error de estado.
	if findSignatureElement(doc.Root()) != nil {
		return nil, fmt.Errorf("%w: el documento ya contiene ds:Signature", domain.ErrState)
	}

	// 3-4) Canonicalizar la copia sin firma y calcular el digest del documento.
	canonicalDoc, err := canonicalizeElement(doc.Copy().Root())
	if err != nil {
		return nil, fmt.Errorf("canonicalizar documento: %w", err)
	}
	docDigest := sha1.Sum(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 5-7) SignedInfo canónico, digest y firma RSA.
	signedInfoXML := buildSignedInfo(docDigestB64)
	signatureValueB64, err := signSignedInfo(signedInfoXML, identity.PrivateKey)
	if err != nil {
		return nil, err
	}

	// 8) Construir ds:Signature e inyectarlo en el placeholder del original.
	certB64 := base64.StdEncoding.EncodeToString(identity.Certificate.Raw)
	signatureXML := buildSignatureXML(signedInfoXML, signatureValueB64, certB64)

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("%w: parsear nodo Signature: %v", domain.ErrStructural, err)
	}
	placeholder.AddChild(sigDoc.Root())

	// 9) Serializar el árbol firmado.
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar documento firmado: %w", err)
	}
	return out, nil
}

// Verify comprueba la integridad de un comprobante firmado. Devuelve true si
// el digest y la firma verifican contra el certificado embebido; si no, el
// error distingue la causa (sin firma, digest alterado, firma inválida,
// certificado fuera de vigencia).
func (s *Service) Verify(signedXML []byte) (bool, error) {
	return s.verifyAt(signedXML, time.Now())
}

func (s *Service) verifyAt(signedXML []byte, now time.Time) (bool, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return false, fmt.Errorf("%w: parsear XML: %v", domain.ErrStructural, err)
	}
	if doc.Root() == nil {
		return false, fmt.Errorf("%w: documento sin raíz", domain.ErrStructural)
	}

	sig := findSignatureElement(doc.Root())
	if sig == nil {
		return false, domain.ErrMissingSignature
	}

	storedDigest := elementText(sig, "SignedInfo", "Reference", "DigestValue")
	storedSignature := elementText(sig, "SignatureValue")
	certText := elementText(sig, "KeyInfo", "X509Data", "X509Certificate")
	if storedDigest == "" || storedSignature == "" || certText == "" {
		return false, fmt.Errorf("%w: ds:Signature incompleto", domain.ErrStructural)
	}

	cert, err := parseEmbeddedCertificate(certText)
	if err != nil {
		return false, err
	}
	if now.After(cert.NotAfter) || now.Before(cert.NotBefore) {
		return false, fmt.Errorf("%w: certificado fuera de vigencia (%s a %s)", domain.ErrCertificate,
			cert.NotBefore.Format("2006-01-02"), cert.NotAfter.Format("2006-01-02"))
	}

	// Digest del documento sin la firma (misma canonicalización que al firmar).
	docCopy := doc.Copy()
	sigCopy := findSignatureElement(docCopy.Root())
	sigCopy.Parent().RemoveChild(sigCopy)
	canonicalDoc, err := canonicalizeElement(docCopy.Root())
	if err != nil {
		return false, fmt.Errorf("canonicalizar documento: %w", err)
	}
	digest := sha1.Sum(canonicalDoc)
	if base64.StdEncoding.EncodeToString(digest[:]) != strings.TrimSpace(storedDigest) {
		return false, domain.ErrDigestMismatch
	}

	// Verificar la firma del SignedInfo contra la clave pública del certificado.
	signedInfo := childElement(sig, "SignedInfo")
	canonicalSignedInfo, err := canonicalizeSignedInfo(signedInfo)
	if err != nil {
		return false, fmt.Errorf("canonicalizar SignedInfo: %w", err)
	}
	signedInfoDigest := sha1.Sum(canonicalSignedInfo)

	signatureBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(storedSignature))
	if err != nil {
		return false, fmt.Errorf("%w: SignatureValue no es Base64: %v", domain.ErrSignatureMismatch, err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false, fmt.Errorf("%w: el certificado no contiene clave pública RSA", domain.ErrCertificate)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, signedInfoDigest[:], signatureBytes); err != nil {
		return false, domain.ErrSignatureMismatch
	}
	return true, nil
}

// SignatureMetadata introspección de diagnóstico de un comprobante firmado.
// Nunca se usa para decisiones de negocio.
type SignatureMetadata struct {
	Present                    bool
	CanonicalizationAlgorithm  string
	SignatureAlgorithm         string
	DigestAlgorithm            string
	DigestPreview              string // primeros caracteres del DigestValue
	CertificateSubject         string
	CertificateIssuer          string
	RUC                        string
	NotBefore, NotAfter        time.Time
}

// Inspect extrae metadatos de la firma sin fallar: campos ausentes quedan en
// cero y Present indica si había ds:Signature.
func (s *Service) Inspect(signedXML []byte) SignatureMetadata {
	var meta SignatureMetadata
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil || doc.Root() == nil {
		return meta
	}
	sig := findSignatureElement(doc.Root())
	if sig == nil {
		return meta
	}
	meta.Present = true

	if si := childElement(sig, "SignedInfo"); si != nil {
		if m := childElement(si, "CanonicalizationMethod"); m != nil {
			meta.CanonicalizationAlgorithm = m.SelectAttrValue("Algorithm", "")
		}
		if m := childElement(si, "SignatureMethod"); m != nil {
			meta.SignatureAlgorithm = m.SelectAttrValue("Algorithm", "")
		}
		if ref := childElement(si, "Reference"); ref != nil {
			if m := childElement(ref, "DigestMethod"); m != nil {
				meta.DigestAlgorithm = m.SelectAttrValue("Algorithm", "")
			}
		}
	}
	if digest := elementText(sig, "SignedInfo", "Reference", "DigestValue"); digest != "" {
		if len(digest) > 12 {
			digest = digest[:12] + "..."
		}
		meta.DigestPreview = digest
	}
	if certText := elementText(sig, "KeyInfo", "X509Data", "X509Certificate"); certText != "" {
		if cert, err := parseEmbeddedCertificate(certText); err == nil {
			meta.CertificateSubject = cert.Subject.String()
			meta.CertificateIssuer = cert.Issuer.String()
			meta.RUC = extractRUC(cert)
			meta.NotBefore = cert.NotBefore
			meta.NotAfter = cert.NotAfter
		}
	}
	return meta
}

// ── canonicalización ──────────────────────────────────────────────────────────

// whitespaceFilter descarta del flujo de tokens el texto de solo espacios
// entre elementos, los comentarios y las instrucciones de proceso, de modo
// que la forma canónica no dependa de la indentación de la serialización.
type whitespaceFilter struct {
	dec *xml.Decoder
}

func (f whitespaceFilter) RawToken() (xml.Token, error) {
	for {
		tok, err := f.dec.RawToken()
		if err != nil {
			return tok, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
		case xml.ProcInst, xml.Comment:
			continue
		}
		return tok, nil
	}
}

// canonicalizeElement serializa el elemento y produce su forma canónica
// exclusiva (atributos ordenados, namespaces en su punto de primer uso,
// elementos vacíos con cierre explícito, UTF-8).
func canonicalizeElement(el *etree.Element) ([]byte, error) {
	tmp := etree.NewDocument()
	tmp.SetRoot(el.Copy())
	raw, err := tmp.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalizeBytes(raw)
}

func canonicalizeBytes(raw []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(whitespaceFilter{dec: dec})
}

// canonicalizeSignedInfo canonicaliza el subárbol SignedInfo por separado.
// La declaración xmlns:ds vive en el ds:Signature ancestro, así que la copia
// debe declararla para reproducir la forma canónica usada al firmar.
func canonicalizeSignedInfo(signedInfo *etree.Element) ([]byte, error) {
	if signedInfo == nil {
		return nil, fmt.Errorf("%w: ds:Signature sin SignedInfo", domain.ErrStructural)
	}
	copied := signedInfo.Copy()
	if copied.SelectAttr("xmlns:ds") == nil {
		copied.CreateAttr("xmlns:ds", NamespaceDS)
	}
	return canonicalizeElement(copied)
}

// ── construcción del nodo de firma ───────────────────────────────────────────

// buildSignedInfo genera el SignedInfo con la referencia URI="" al documento
// completo y la transformada enveloped que excluye la propia firma.
func buildSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgExcC14N + `"></ds:CanonicalizationMethod>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA1 + `"></ds:SignatureMethod>`)
	sb.WriteString(`<ds:Reference URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"></ds:Transform></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA1 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

// signSignedInfo canonicaliza el SignedInfo y firma su digest SHA-1 con RSA
// PKCS#1 v1.5. El esquema es determinista: mismo documento, misma firma.
func signSignedInfo(signedInfoXML string, key *rsa.PrivateKey) (string, error) {
	canonical, err := canonicalizeBytes([]byte(signedInfoXML))
	if err != nil {
		return "", fmt.Errorf("canonicalizar SignedInfo: %w", err)
	}
	digest := sha1.Sum(canonical)
	signature, err := rsa.SignPKCS1v15(nil, key, crypto.SHA1, digest[:])
	if err != nil {
		return "", fmt.Errorf("firmar SignedInfo: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// buildSignatureXML arma el bloque ds:Signature completo.
func buildSignatureXML(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" Id="` + SignatureID + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

// ── navegación del árbol ─────────────────────────────────────────────────────

// findSignaturePlaceholder localiza el único ext:ExtensionContent vacío.
// Cero o más de uno es un defecto estructural del documento.
func findSignaturePlaceholder(root *etree.Element) (*etree.Element, error) {
	var found []*etree.Element
	for _, extensions := range root.ChildElements() {
		if extensions.Tag != "UBLExtensions" {
			continue
		}
		for _, extension := range extensions.ChildElements() {
			if extension.Tag != "UBLExtension" {
				continue
			}
			for _, content := range extension.ChildElements() {
				if content.Tag == "ExtensionContent" && len(content.ChildElements()) == 0 {
					found = append(found, content)
				}
			}
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, fmt.Errorf("%w: no hay ext:ExtensionContent vacío para la firma", domain.ErrStructural)
	default:
		return nil, fmt.Errorf("%w: hay %d ext:ExtensionContent vacíos, se esperaba uno", domain.ErrStructural, len(found))
	}
}

// findSignatureElement busca recursivamente el elemento Signature del
// namespace XMLDSig (prefijo ds), distinto del bloque informativo cac:Signature.
func findSignatureElement(el *etree.Element) *etree.Element {
	if el.Tag == "Signature" && el.Space == "ds" {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findSignatureElement(child); found != nil {
			return found
		}
	}
	return nil
}

func childElement(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

// elementText desciende por la ruta de tags y devuelve el texto del último
// elemento, o vacío si la ruta no existe.
func elementText(el *etree.Element, path ...string) string {
	current := el
	for _, tag := range path {
		current = childElement(current, tag)
		if current == nil {
			return ""
		}
	}
	return strings.TrimSpace(current.Text())
}

// parseEmbeddedCertificate decodifica el certificado Base64 del KeyInfo.
func parseEmbeddedCertificate(certText string) (*x509.Certificate, error) {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, certText)
	der, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: X509Certificate no es Base64: %v", domain.ErrCertificate, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsear certificado embebido: %v", domain.ErrCertificate, err)
	}
	return cert, nil
}
