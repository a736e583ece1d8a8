package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	appbilling "github.com/BrSilvinha/conversor-ubl-sunat/internal/application/billing"
	domainbilling "github.com/BrSilvinha/conversor-ubl-sunat/internal/domain/billing"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat"
	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat/signer"
	"github.com/BrSilvinha/conversor-ubl-sunat/pkg/config"
	"github.com/BrSilvinha/conversor-ubl-sunat/pkg/logger"
	pkgsunat "github.com/BrSilvinha/conversor-ubl-sunat/pkg/sunat"
)

var (
	flagDeferred  bool
	flagXMLOutput string
)

var emitirCmd = &cobra.Command{
	Use:   "emitir [comprobante.json]",
	Short: "Construye, firma y envía un comprobante a SUNAT",
	Long: `Lee el comprobante desde un archivo JSON, calcula importes y tributos,
genera el XML UBL 2.1, lo firma con el certificado configurado, lo empaqueta
en ZIP y lo envía al billService. Con --diferido usa sendSummary y devuelve
un ticket en lugar de la adjudicación inmediata.`,
	Example: `  facturador emitir factura.json
  facturador emitir resumen.json --diferido
  facturador emitir factura.json -o firmado.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runEmitir,
}

func init() {
	emitirCmd.Flags().BoolVar(&flagDeferred, "diferido", false, "enviar con sendSummary (devuelve ticket)")
	emitirCmd.Flags().StringVarP(&flagXMLOutput, "output", "o", "", "guardar el XML firmado en esta ruta")
	rootCmd.AddCommand(emitirCmd)
}

func runEmitir(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadEnv()
	if err != nil {
		return err
	}

	inv, err := readInvoiceFile(args[0], cfg)
	if err != nil {
		return err
	}

	identity, err := loadIdentity(cfg)
	if err != nil {
		return err
	}

	pipeline := buildPipeline(cfg, log)
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.SUNAT.Timeout+30*time.Second)
	defer cancel()

	var result *appbilling.EmitResult
	if flagDeferred {
		result, err = pipeline.EmitDeferred(ctx, inv, identity)
	} else {
		result, err = pipeline.Emit(ctx, inv, identity)
	}

	if result != nil && flagXMLOutput != "" && len(result.SignedXML) > 0 {
		if werr := os.WriteFile(flagXMLOutput, result.SignedXML, 0o644); werr != nil {
			log.Warn().Err(werr).Str("ruta", flagXMLOutput).Msg("no se pudo guardar el XML firmado")
		}
	}
	if err != nil {
		return fmt.Errorf("emitir %s: %w", inv.DocumentID(), err)
	}

	printOutcome(inv, result.Outcome)
	return nil
}

// ── wiring ────────────────────────────────────────────────────────────────────

func buildPipeline(cfg *config.Config, log *logger.Logger) *appbilling.Pipeline {
	client := sunat.NewClient(cfg.SUNAT.ServiceURL(), sunat.Credentials{
		RUC:      cfg.SUNAT.RUC,
		Username: cfg.SUNAT.Username,
		Password: cfg.SUNAT.Password,
	}, cfg.SUNAT.Timeout, log.Zerolog())

	builder := sunat.NewDocumentBuilder(sunat.DefaultNamespaces())
	return appbilling.NewPipeline(builder, signer.NewService(), client, log.Zerolog())
}

func loadIdentity(cfg *config.Config) (*signer.SigningIdentity, error) {
	if cfg.SUNAT.CertPath == "" {
		return nil, fmt.Errorf("SUNAT_CERT_PATH no configurado")
	}
	container, err := os.ReadFile(cfg.SUNAT.CertPath)
	if err != nil {
		return nil, fmt.Errorf("leer certificado %s: %w", cfg.SUNAT.CertPath, err)
	}
	return signer.LoadIdentity(container, cfg.SUNAT.CertPassword)
}

// ── entrada JSON ──────────────────────────────────────────────────────────────

// invoiceFile formato de entrada del subcomando emitir. Los importes van como
// strings decimales para no perder precisión.
type invoiceFile struct {
	DocumentType  string `json:"tipo_documento"`
	Series        string `json:"serie"`
	Number        int    `json:"numero"`
	IssueDate     string `json:"fecha_emision"` // YYYY-MM-DD; vacío = hoy
	CurrencyCode  string `json:"moneda"`
	OperationType string `json:"tipo_operacion"`
	Notes         string `json:"observaciones"`

	Issuer struct {
		LegalName  string `json:"razon_social"`
		TradeName  string `json:"nombre_comercial"`
		Ubigeo     string `json:"ubigeo"`
		Address    string `json:"direccion"`
		District   string `json:"distrito"`
		Province   string `json:"provincia"`
		Department string `json:"departamento"`
	} `json:"emisor"`

	Customer struct {
		DocumentType   string `json:"tipo_documento"`
		DocumentNumber string `json:"numero_documento"`
		Name           string `json:"nombre"`
	} `json:"cliente"`

	Lines []struct {
		ProductCode         string          `json:"codigo"`
		Description         string          `json:"descripcion"`
		Quantity            decimal.Decimal `json:"cantidad"`
		UnitCode            string          `json:"unidad"`
		UnitPrice           decimal.Decimal `json:"precio_unitario"`
		TaxCategory         string          `json:"categoria_tributaria"`
		ExemptionReasonCode string          `json:"codigo_afectacion"`
		ReferencePrice      decimal.Decimal `json:"precio_referencia"`
		IGVRate             decimal.Decimal `json:"tasa_igv"`
		ISCRate             decimal.Decimal `json:"tasa_isc"`
		ICBPERRate          decimal.Decimal `json:"tasa_icbper"`
	} `json:"lineas"`

	Payments []struct {
		MeansCode string          `json:"medio_pago"`
		Amount    decimal.Decimal `json:"importe"`
	} `json:"pagos"`

	Perception *struct {
		Code       string          `json:"codigo"`
		Base       decimal.Decimal `json:"base"`
		Percentage decimal.Decimal `json:"porcentaje"`
	} `json:"percepcion"`
}

func readInvoiceFile(path string, cfg *config.Config) (*domainbilling.Invoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer %s: %w", path, err)
	}
	var in invoiceFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsear %s: %w", path, err)
	}

	issueDate := time.Now()
	if in.IssueDate != "" {
		issueDate, err = time.Parse("2006-01-02", in.IssueDate)
		if err != nil {
			return nil, fmt.Errorf("fecha_emision inválida %q: %w", in.IssueDate, err)
		}
	}

	inv := domainbilling.NewInvoice(in.DocumentType, in.Series, in.Number, issueDate)
	if in.CurrencyCode != "" {
		inv.CurrencyCode = in.CurrencyCode
	}
	if in.OperationType != "" {
		inv.OperationType = in.OperationType
	}
	inv.Notes = in.Notes

	inv.Issuer = domainbilling.Issuer{
		RUC:         cfg.SUNAT.RUC,
		LegalName:   in.Issuer.LegalName,
		TradeName:   in.Issuer.TradeName,
		Ubigeo:      in.Issuer.Ubigeo,
		Address:     in.Issuer.Address,
		District:    in.Issuer.District,
		Province:    in.Issuer.Province,
		Department:  in.Issuer.Department,
		CountryCode: "PE",
	}
	inv.Customer = domainbilling.Customer{
		DocumentType:   in.Customer.DocumentType,
		DocumentNumber: in.Customer.DocumentNumber,
		Name:           in.Customer.Name,
	}

	for i, l := range in.Lines {
		igv := l.IGVRate
		if igv.IsZero() && l.TaxCategory == pkgsunat.TaxCategoryTaxed {
			igv = domainbilling.DefaultIGVRate
		}
		inv.Lines = append(inv.Lines, domainbilling.InvoiceLine{
			Number:              i + 1,
			ProductCode:         l.ProductCode,
			Description:         l.Description,
			Quantity:            l.Quantity,
			UnitCode:            l.UnitCode,
			UnitPrice:           l.UnitPrice,
			TaxCategory:         l.TaxCategory,
			ExemptionReasonCode: l.ExemptionReasonCode,
			ReferencePrice:      l.ReferencePrice,
			IGVRate:             igv,
			ISCRate:             l.ISCRate,
			ICBPERRate:          l.ICBPERRate,
		})
	}
	for _, p := range in.Payments {
		inv.Payments = append(inv.Payments, domainbilling.Payment{MeansCode: p.MeansCode, Amount: p.Amount})
	}
	if in.Perception != nil {
		inv.Perception = &domainbilling.Perception{
			Code:       in.Perception.Code,
			Base:       in.Perception.Base,
			Percentage: in.Perception.Percentage,
		}
	}
	return inv, nil
}

func printOutcome(inv *domainbilling.Invoice, outcome *sunat.Outcome) {
	fmt.Printf("Comprobante: %s\n", inv.FullDocumentName())
	fmt.Printf("Estado:      %s\n", inv.Status)
	if outcome == nil {
		return
	}
	fmt.Printf("Protocolo:   %s\n", outcome.State)
	if outcome.Ticket != "" {
		fmt.Printf("Ticket:      %s\n", outcome.Ticket)
	}
	if outcome.Code != "" {
		fmt.Printf("Código:      %s\n", outcome.Code)
	}
	if outcome.Description != "" {
		fmt.Printf("Detalle:     %s\n", outcome.Description)
	}
	if outcome.Receipt != nil {
		for _, note := range outcome.Receipt.Notes {
			fmt.Printf("Observación: %s\n", note)
		}
	}
}
