// Constantes de firma XML-DSig para comprobantes electrónicos SUNAT.

package signer

// Namespaces y algoritmos XMLDSig.
//
// SUNAT valida los comprobantes con SHA-1 y RSA PKCS#1 v1.5 (rsa-sha1).
// Es un requisito de interoperabilidad con su verificador, no una
// recomendación de seguridad: no cambiar sin confirmar el algoritmo
// exigido por el verificador de destino.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// SignatureID Id del nodo ds:Signature; debe coincidir con la URI del bloque
// cac:Signature que emite el builder.
const SignatureID = "SignatureSP"
