package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/infrastructure/sunat"
	"github.com/BrSilvinha/conversor-ubl-sunat/pkg/config"
	"github.com/BrSilvinha/conversor-ubl-sunat/pkg/logger"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket [numero-ticket]",
	Short: "Consulta el estado de un envío diferido (getStatus)",
	Long: `Consulta con getStatus el ticket devuelto por un envío con sendSummary.
Código 98 significa que SUNAT sigue procesando; 0 y 99 son terminales y
traen el CDR con la adjudicación.`,
	Args: cobra.ExactArgs(1),
	RunE: runTicket,
}

var cdrCmd = &cobra.Command{
	Use:   "cdr [tipo] [serie] [numero]",
	Short: "Recupera la constancia de un comprobante ya enviado (getStatusCdr)",
	Long: `Consulta con getStatusCdr la adjudicación de un comprobante puntual del
RUC configurado, sin reenviarlo. Útil cuando un corte de red dejó el
resultado de un sendBill en duda.`,
	Example: `  facturador cdr 01 F001 42`,
	Args:    cobra.ExactArgs(3),
	RunE:    runCdr,
}

func init() {
	rootCmd.AddCommand(ticketCmd)
	rootCmd.AddCommand(cdrCmd)
}

func newBillClient(cfg *config.Config, log *logger.Logger) *sunat.Client {
	return sunat.NewClient(cfg.SUNAT.ServiceURL(), sunat.Credentials{
		RUC:      cfg.SUNAT.RUC,
		Username: cfg.SUNAT.Username,
		Password: cfg.SUNAT.Password,
	}, cfg.SUNAT.Timeout, log.Zerolog())
}

func runTicket(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.SUNAT.Timeout+10*time.Second)
	defer cancel()

	outcome, err := newBillClient(cfg, log).PollStatus(ctx, args[0])
	if err != nil {
		return fmt.Errorf("consultar ticket %s: %w", args[0], err)
	}
	printQueryOutcome(outcome)
	return nil
}

func runCdr(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadEnv()
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(args[2])
	if err != nil || number <= 0 {
		return fmt.Errorf("número de comprobante inválido: %q", args[2])
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.SUNAT.Timeout+10*time.Second)
	defer cancel()

	outcome, err := newBillClient(cfg, log).FetchReceipt(ctx, cfg.SUNAT.RUC, args[0], args[1], number)
	if err != nil {
		return fmt.Errorf("consultar CDR de %s-%s-%d: %w", args[0], args[1], number, err)
	}
	printQueryOutcome(outcome)
	return nil
}

func printQueryOutcome(outcome *sunat.Outcome) {
	fmt.Printf("Estado:  %s\n", outcome.State)
	if outcome.Code != "" {
		fmt.Printf("Código:  %s\n", outcome.Code)
	}
	if outcome.Description != "" {
		fmt.Printf("Detalle: %s\n", outcome.Description)
	}
	if outcome.Receipt != nil {
		fmt.Printf("CDR:     %s (%s)\n", outcome.Receipt.ReferenceID, outcome.Receipt.Description)
		for _, note := range outcome.Receipt.Notes {
			fmt.Printf("Nota:    %s\n", note)
		}
	}
}
