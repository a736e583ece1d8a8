package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat/signer"
)

var verificarCmd = &cobra.Command{
	Use:   "verificar [comprobante.xml]",
	Short: "Verifica la firma de un comprobante XML",
	Long: `Comprueba el digest del documento y la firma RSA del SignedInfo contra el
certificado embebido en el propio XML. Distingue entre firma ausente,
documento alterado, firma inválida y certificado fuera de vigencia.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerificar,
}

func init() {
	rootCmd.AddCommand(verificarCmd)
}

func runVerificar(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("leer %s: %w", args[0], err)
	}

	svc := signer.NewService()
	meta := svc.Inspect(data)
	if meta.Present {
		fmt.Printf("Firmante:     %s\n", meta.CertificateSubject)
		if meta.RUC != "" {
			fmt.Printf("RUC:          %s\n", meta.RUC)
		}
		fmt.Printf("Vigencia:     %s a %s\n",
			meta.NotBefore.Format("2006-01-02"), meta.NotAfter.Format("2006-01-02"))
		fmt.Printf("Algoritmos:   %s / %s\n", meta.SignatureAlgorithm, meta.DigestAlgorithm)
	}

	ok, err := svc.Verify(data)
	switch {
	case ok:
		fmt.Println("Resultado:    FIRMA VÁLIDA")
		return nil
	case errors.Is(err, domain.ErrMissingSignature):
		fmt.Println("Resultado:    SIN FIRMA")
	case errors.Is(err, domain.ErrDigestMismatch):
		fmt.Println("Resultado:    DOCUMENTO ALTERADO (digest no coincide)")
	case errors.Is(err, domain.ErrSignatureMismatch):
		fmt.Println("Resultado:    FIRMA INVÁLIDA")
	case errors.Is(err, domain.ErrCertificate):
		fmt.Println("Resultado:    CERTIFICADO NO VIGENTE O INVÁLIDO")
	default:
		return err
	}
	return fmt.Errorf("verificación fallida: %w", err)
}
