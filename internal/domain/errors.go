// Package domain define los errores base del núcleo de facturación electrónica.
// Cada causa distinguible tiene su propio centinela para que los callers
// decidan con errors.Is en lugar de comparar texto de mensajes.
package domain

import "errors"

// Errores del constructor de documentos y del modelo de datos.
var (
	// ErrValidation entrada malformada al builder; el caller puede corregir los datos y reintentar.
	ErrValidation = errors.New("datos de comprobante inválidos")
)

// Errores del motor de firma. Todos son terminales para el intento en curso:
// nunca se persisten firmas parciales.
var (
	// ErrStructural el documento no tiene el placeholder de firma esperado (o no es único).
	ErrStructural = errors.New("estructura de documento inválida para firma")
	// ErrState precondición de firma violada (ej: el documento ya está firmado).
	ErrState = errors.New("estado de documento inválido para firma")
	// ErrCertificate contenedor de certificado ilegible, clave incorrecta o certificado vencido.
	ErrCertificate = errors.New("certificado digital inválido")
	// ErrDigestMismatch el digest recalculado no coincide: documento alterado o defecto de canonicalización.
	ErrDigestMismatch = errors.New("digest del documento no coincide")
	// ErrSignatureMismatch la firma no verifica contra el certificado embebido.
	ErrSignatureMismatch = errors.New("valor de firma no verifica")
	// ErrMissingSignature el documento no contiene ds:Signature.
	ErrMissingSignature = errors.New("documento sin firma digital")
)

// Errores del cliente de envío SUNAT.
var (
	// ErrAuth credenciales rechazadas por SUNAT (HTTP 401). El envío nunca llegó
	// a adjudicación: no debe registrarse como rechazo de negocio.
	ErrAuth = errors.New("autenticación rechazada por SUNAT")
	// ErrTransport fallo de red o timeout; seguro de reintentar con backoff.
	ErrTransport = errors.New("error de transporte con SUNAT")
	// ErrEnvelope el CDR recibido no se pudo leer (ZIP corrupto o sin la entrada
	// esperada). Es un error técnico de esa llamada; no implica estado del documento.
	ErrEnvelope = errors.New("sobre de respuesta CDR ilegible")
)
