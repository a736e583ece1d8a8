package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/BrSilvinha/conversor-ubl-sunat/internal/domain"
	"github.com/BrSilvinha/conversor-ubl-sunat/pkg/sunat"
)

// DefaultIGVRate tasa vigente del IGV (%).
var DefaultIGVRate = decimal.NewFromInt(18)

var oneHundred = decimal.NewFromInt(100)

// CalculateLineAmounts calcula los importes de una línea: valor de venta,
// IGV, ISC e ICBPER. Función pura sobre el modelo; redondeo a 2 decimales.
//
// Reglas por categoría (catálogo 07):
//   - S (gravado): IGV sobre el valor de venta a la tasa de la línea.
//   - E (exonerado) y O (inafecto): sin IGV.
//   - Z (gratuito): valor de venta 0 y tributos 0; el precio unitario debe
//     ser 0 y el precio de referencia > 0.
func CalculateLineAmounts(line *InvoiceLine) error {
	if line.Number < 1 {
		return fmt.Errorf("%w: número de línea debe ser >= 1", domain.ErrValidation)
	}
	if line.Quantity.IsNegative() {
		return fmt.Errorf("%w: línea %d: cantidad negativa", domain.ErrValidation, line.Number)
	}

	switch line.TaxCategory {
	case sunat.TaxCategoryTaxed:
		line.ExtensionAmount = line.Quantity.Mul(line.UnitPrice).Round(2)
		rate := line.IGVRate
		if rate.IsZero() {
			rate = DefaultIGVRate
			line.IGVRate = rate
		}
		line.IGVAmount = line.ExtensionAmount.Mul(rate).Div(oneHundred).Round(2)

	case sunat.TaxCategoryExempt, sunat.TaxCategoryUnaffected:
		if line.ExemptionReasonCode == "" {
			return fmt.Errorf("%w: línea %d: categoría %s requiere código de razón de afectación",
				domain.ErrValidation, line.Number, line.TaxCategory)
		}
		line.ExtensionAmount = line.Quantity.Mul(line.UnitPrice).Round(2)
		line.IGVAmount = decimal.Zero

	case sunat.TaxCategoryFree:
		if !line.UnitPrice.IsZero() {
			return fmt.Errorf("%w: línea %d: línea gratuita debe tener precio unitario 0",
				domain.ErrValidation, line.Number)
		}
		if !line.ReferencePrice.IsPositive() {
			return fmt.Errorf("%w: línea %d: línea gratuita requiere precio de referencia > 0",
				domain.ErrValidation, line.Number)
		}
		line.ExtensionAmount = decimal.Zero
		line.IGVAmount = decimal.Zero
		line.ISCAmount = decimal.Zero
		line.ICBPERAmount = decimal.Zero
		return nil

	default:
		return fmt.Errorf("%w: línea %d: categoría tributaria desconocida %q",
			domain.ErrValidation, line.Number, line.TaxCategory)
	}

	// ISC: porcentaje sobre el valor de venta, solo si la línea declara tasa.
	if line.ISCRate.IsPositive() {
		line.ISCAmount = line.ExtensionAmount.Mul(line.ISCRate).Div(oneHundred).Round(2)
	} else {
		line.ISCAmount = decimal.Zero
	}

	// ICBPER: importe fijo por unidad (la base es la cantidad, no el valor).
	if line.ICBPERRate.IsPositive() {
		line.ICBPERAmount = line.Quantity.Mul(line.ICBPERRate).Round(2)
	} else {
		line.ICBPERAmount = decimal.Zero
	}

	return nil
}

// CalculateTotals recalcula los importes de cada línea y los totales del
// comprobante. Debe invocarse cada vez que cambian las líneas; los totales
// nunca se editan directamente.
func CalculateTotals(inv *Invoice) error {
	if len(inv.Lines) == 0 {
		return fmt.Errorf("%w: comprobante sin líneas de detalle", domain.ErrValidation)
	}

	t := Totals{
		TaxedAmount:      decimal.Zero,
		ExemptAmount:     decimal.Zero,
		UnaffectedAmount: decimal.Zero,
		FreeAmount:       decimal.Zero,
		IGVAmount:        decimal.Zero,
		ISCAmount:        decimal.Zero,
		ICBPERAmount:     decimal.Zero,
	}

	seen := make(map[int]bool, len(inv.Lines))
	for idx := range inv.Lines {
		line := &inv.Lines[idx]
		if seen[line.Number] {
			return fmt.Errorf("%w: número de línea %d duplicado", domain.ErrValidation, line.Number)
		}
		seen[line.Number] = true

		if err := CalculateLineAmounts(line); err != nil {
			return err
		}

		switch line.TaxCategory {
		case sunat.TaxCategoryTaxed:
			t.TaxedAmount = t.TaxedAmount.Add(line.ExtensionAmount)
			t.IGVAmount = t.IGVAmount.Add(line.IGVAmount)
		case sunat.TaxCategoryExempt:
			t.ExemptAmount = t.ExemptAmount.Add(line.ExtensionAmount)
		case sunat.TaxCategoryUnaffected:
			t.UnaffectedAmount = t.UnaffectedAmount.Add(line.ExtensionAmount)
		case sunat.TaxCategoryFree:
			// Las gratuitas se valorizan a precio de referencia y no suman al total.
			t.FreeAmount = t.FreeAmount.Add(line.Quantity.Mul(line.ReferencePrice).Round(2))
		}
		t.ISCAmount = t.ISCAmount.Add(line.ISCAmount)
		t.ICBPERAmount = t.ICBPERAmount.Add(line.ICBPERAmount)
	}

	if p := inv.Perception; p != nil {
		if p.Percentage.IsNegative() || p.Base.IsNegative() {
			return fmt.Errorf("%w: percepción con base o porcentaje negativo", domain.ErrValidation)
		}
		t.PerceptionBase = p.Base
		t.PerceptionPercentage = p.Percentage
		t.PerceptionAmount = p.Base.Mul(p.Percentage).Div(oneHundred).Round(2)
	}

	t.GrandTotal = t.TaxedAmount.
		Add(t.ExemptAmount).
		Add(t.UnaffectedAmount).
		Add(t.IGVAmount).
		Add(t.ISCAmount).
		Add(t.ICBPERAmount).
		Add(t.PerceptionAmount)

	inv.Totals = t
	return nil
}
