// Carga de identidad de firma desde contenedor PKCS#12 (.p12/.pfx).

package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/pkcs12"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
)

// SigningIdentity clave privada y certificado X.509 del emisor. Se carga una
// vez y se reutiliza de solo lectura para muchas firmas; nunca se muta ni se
// persiste desde el núcleo.
type SigningIdentity struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	RUC         string // RUC del emisor extraído del subject del certificado
	NotBefore   time.Time
	NotAfter    time.Time
}

// LoadIdentity decodifica un contenedor PKCS#12 protegido por contraseña.
// Un certificado ya vencido es fallo duro aquí, no en el momento de firmar.
func LoadIdentity(containerBytes []byte, password string) (*SigningIdentity, error) {
	return loadIdentityAt(containerBytes, password, time.Now())
}

// loadIdentityAt permite fijar el reloj en tests de vencimiento.
func loadIdentityAt(containerBytes []byte, password string, now time.Time) (*SigningIdentity, error) {
	if len(containerBytes) == 0 {
		return nil, fmt.Errorf("%w: contenedor vacío", domain.ErrCertificate)
	}
	priv, cert, err := pkcs12.Decode(containerBytes, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decodificar PKCS#12 (¿contraseña incorrecta?): %v", domain.ErrCertificate, err)
	}
	return newIdentityAt(priv, cert, now)
}

// newIdentityAt valida el material decodificado contra el reloj dado.
func newIdentityAt(priv interface{}, cert *x509.Certificate, now time.Time) (*SigningIdentity, error) {
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: el contenedor debe incluir una clave privada RSA", domain.ErrCertificate)
	}
	if now.After(cert.NotAfter) {
		return nil, fmt.Errorf("%w: certificado vencido el %s", domain.ErrCertificate,
			cert.NotAfter.Format("2006-01-02"))
	}
	if now.Before(cert.NotBefore) {
		return nil, fmt.Errorf("%w: certificado aún no vigente (desde %s)", domain.ErrCertificate,
			cert.NotBefore.Format("2006-01-02"))
	}
	return &SigningIdentity{
		PrivateKey:  rsaKey,
		Certificate: cert,
		RUC:         extractRUC(cert),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}, nil
}

// extractRUC busca el RUC del emisor en el subject del certificado: primero
// el atributo serialNumber (2.5.4.5), después cualquier atributo con 11
// dígitos. Devuelve vacío si no hay; la validación contra el comprobante es
// responsabilidad del caller.
func extractRUC(cert *x509.Certificate) string {
	if ruc := digitsOnly(cert.Subject.SerialNumber); len(ruc) == 11 {
		return ruc
	}
	for _, ou := range cert.Subject.OrganizationalUnit {
		if ruc := digitsOnly(ou); len(ruc) == 11 {
			return ruc
		}
	}
	if ruc := digitsOnly(cert.Subject.CommonName); len(ruc) == 11 {
		return ruc
	}
	return ""
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
