package sunat_test

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat"
)

// packCDRZip arma un ZIP como los que devuelve SUNAT, con las entradas dadas.
func packCDRZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestPackDocument_EntradaUnicaConNombreSUNAT(t *testing.T) {
	xmlContent := []byte(`<?xml version="1.0"?><Invoice/>`)

	zipBytes, err := sunat.PackDocument(xmlContent, "20100070970-01-F001-00000042")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1, "el ZIP debe contener una única entrada")
	assert.Equal(t, "20100070970-01-F001-00000042.xml", zr.File[0].Name)
	assert.Equal(t, zip.Deflate, zr.File[0].Method, "la entrada va comprimida con deflate")

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, xmlContent, content, "el XML debe sobrevivir el viaje de ida y vuelta")
}

func TestPackDocument_XMLVacioEsError(t *testing.T) {
	_, err := sunat.PackDocument(nil, "20100070970-01-F001-00000001")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUnpackCDR_ExtraeLaConstancia(t *testing.T) {
	cdrXML := []byte(`<ar:ApplicationResponse/>`)
	zipBytes := packCDRZip(t, map[string][]byte{
		"R-20100070970-01-F001-00000042.xml": cdrXML,
	})

	got, err := sunat.UnpackCDR(zipBytes)
	require.NoError(t, err)
	assert.Equal(t, cdrXML, got)
}

// Algunos ZIP de SUNAT traen una carpeta dummy además del CDR.
func TestUnpackCDR_IgnoraEntradasQueNoSonXML(t *testing.T) {
	cdrXML := []byte(`<ar:ApplicationResponse/>`)
	zipBytes := packCDRZip(t, map[string][]byte{
		"dummy/":            nil,
		"leeme.txt":         []byte("no soy un CDR"),
		"R-comprobante.xml": cdrXML,
	})

	got, err := sunat.UnpackCDR(zipBytes)
	require.NoError(t, err)
	assert.Equal(t, cdrXML, got)
}

func TestUnpackCDR_NoEsZIP(t *testing.T) {
	_, err := sunat.UnpackCDR([]byte("definitivamente no es un zip"))
	assert.ErrorIs(t, err, domain.ErrEnvelope)
}

func TestUnpackCDR_SinXMLDentro(t *testing.T) {
	zipBytes := packCDRZip(t, map[string][]byte{"leeme.txt": []byte("vacío")})

	_, err := sunat.UnpackCDR(zipBytes)
	assert.ErrorIs(t, err, domain.ErrEnvelope)
}
