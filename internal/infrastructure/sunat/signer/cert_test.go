package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
)

// generateCert emite un certificado autofirmado con la vigencia dada.
func generateCert(t *testing.T, key *rsa.PrivateKey, notBefore, notAfter time.Time) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "EMPRESA DE PRUEBA S.A.C.",
			SerialNumber: "20100070970",
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestNewIdentityAt_CertificadoVigente(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cert := generateCert(t, key, now.Add(-24*time.Hour), now.Add(24*time.Hour))

	identity, err := newIdentityAt(key, cert, now)
	require.NoError(t, err)

	assert.Equal(t, "20100070970", identity.RUC, "el RUC sale del serialNumber del subject")
	assert.Equal(t, cert.NotAfter, identity.NotAfter)
	assert.Same(t, key, identity.PrivateKey)
}

// Cargar una identidad cuyo certificado ya venció es fallo duro en la carga,
// no al momento de firmar.
func TestNewIdentityAt_CertificadoVencidoEsError(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cert := generateCert(t, key, now.Add(-48*time.Hour), now.Add(-time.Hour))

	identity, err := newIdentityAt(key, cert, now)
	require.Error(t, err)

	assert.ErrorIs(t, err, domain.ErrCertificate)
	assert.Contains(t, err.Error(), "vencido")
	assert.Nil(t, identity)
}

func TestNewIdentityAt_CertificadoAunNoVigenteEsError(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cert := generateCert(t, key, now.Add(24*time.Hour), now.Add(48*time.Hour))

	_, err = newIdentityAt(key, cert, now)
	assert.ErrorIs(t, err, domain.ErrCertificate)
}

func TestNewIdentityAt_ClaveNoRSAEsError(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cert := generateCert(t, rsaKey, now.Add(-time.Hour), now.Add(time.Hour))

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = newIdentityAt(ecKey, cert, now)
	assert.ErrorIs(t, err, domain.ErrCertificate)
}

// ── extracción de RUC del subject ────────────────────────────────────────────

func TestExtractRUC_DesdeOrganizationalUnit(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			CommonName:         "EMPRESA SIN SERIAL",
			OrganizationalUnit: []string{"RUC: 20131312955"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	assert.Equal(t, "20131312955", extractRUC(cert))
}

func TestExtractRUC_SinRUCDevuelveVacio(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "SIN DOCUMENTO"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	assert.Equal(t, "", extractRUC(cert))
}
