// facturador: CLI del conversor UBL. Emite comprobantes contra el billService
// de SUNAT, verifica firmas y consulta tickets y CDR.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BrSilvinha/conversor-ubl-sunat/pkg/config"
	"github.com/BrSilvinha/conversor-ubl-sunat/pkg/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "facturador",
	Short:   "Conversor UBL 2.1 y cliente del billService SUNAT",
	Version: version,
	Long: `facturador convierte comprobantes a XML UBL 2.1, los firma con XML-DSig
(enveloped) y los envía al billService de SUNAT (beta o producción).

Configuración por variables de entorno o archivo .env:
  SUNAT_RUC            RUC del emisor (11 dígitos)
  SUNAT_USERNAME       Usuario SOL secundario (sin el RUC)
  SUNAT_PASSWORD       Clave SOL
  SUNAT_USE_BETA       true = ambiente e-beta (por defecto)
  SUNAT_CERT_PATH      Contenedor PKCS#12 con clave y certificado
  SUNAT_CERT_PASSWORD  Contraseña del contenedor`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv carga configuración y logger para los subcomandos.
func loadEnv() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("cargar configuración: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	return cfg, log, nil
}
