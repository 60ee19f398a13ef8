package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	swap "irs-settlement/internal/swap/domain"
)

const dateLayout = "2006-01-02"

// StatementTotals sums the settled periods of an agreement.
type StatementTotals struct {
	FixedLegs    int64
	FloatingLegs int64
	// PaidByPayer is the signed net that moved from payer to receiver.
	PaidByPayer int64
}

// SummarizeSettlements computes statement totals.
func SummarizeSettlements(items []swap.PeriodSettlement) StatementTotals {
	var totals StatementTotals
	for _, item := range items {
		totals.FixedLegs += item.FixedLeg
		totals.FloatingLegs += item.FloatingLeg
		switch item.Direction {
		case swap.DirectionPayerToReceiver:
			totals.PaidByPayer += item.Amount
		case swap.DirectionReceiverToPayer:
			totals.PaidByPayer -= item.Amount
		}
	}
	return totals
}

func rate(agreement *swap.Agreement, value int64) string {
	return swap.FormatFixed(value, agreement.RatesDecimals()) + "%"
}

// BuildStatementPDF renders the settlement history of an agreement.
func BuildStatementPDF(agreement *swap.Agreement) ([]byte, error) {
	items := agreement.Settlements()
	totals := SummarizeSettlements(items)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Interest Rate Swap Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	header := []string{
		fmt.Sprintf("Agreement: %s", agreement.ID()),
		fmt.Sprintf("Fixed-rate payer: %s", agreement.FixedInterestPayer().Hex()),
		fmt.Sprintf("Floating-rate payer: %s", agreement.FloatingInterestPayer().Hex()),
		fmt.Sprintf("Asset: %s", agreement.AssetContract().Hex()),
		fmt.Sprintf("Notional: %d", agreement.NotionalAmount()),
		fmt.Sprintf("Fixed rate: %s  Spread: %s  Benchmark: %s", rate(agreement, agreement.SwapRate()), rate(agreement, agreement.Spread()), agreement.Benchmark()),
		fmt.Sprintf("Term: %s to %s (%s)", agreement.StartingDate().Format(dateLayout), agreement.MaturityDate().Format(dateLayout), agreement.DayCount()),
		fmt.Sprintf("Status: %s  Remaining periods: %d", agreement.Status(), agreement.RemainingPeriods()),
	}
	if agreement.Status() == swap.StatusTerminated {
		header = append(header, fmt.Sprintf("Terminated: %s by %s", agreement.TerminatedAt().Format(time.RFC3339), agreement.TerminatedBy().Hex()))
	}
	for _, line := range header {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total fixed legs: %d  Total floating legs: %d  Net paid by payer: %d", totals.FixedLegs, totals.FloatingLegs, totals.PaidByPayer))
	pdf.Ln(8)

	columns := []struct {
		title string
		width float64
	}{
		{"Payment date", 30},
		{"Floating rate", 30},
		{"Fixed leg", 35},
		{"Floating leg", 35},
		{"Amount", 35},
		{"Direction", 45},
		{"Settled by", 65},
	}
	pdf.SetFont("Arial", "B", 9)
	for _, col := range columns {
		pdf.CellFormat(col.width, 6, col.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, item := range items {
		cells := []string{
			item.PaymentDate.Format(dateLayout),
			rate(agreement, item.FloatingRate),
			fmt.Sprintf("%d", item.FixedLeg),
			fmt.Sprintf("%d", item.FloatingLeg),
			fmt.Sprintf("%d", item.Amount),
			item.Direction.String(),
			item.SettledBy.Hex(),
		}
		for i, cell := range cells {
			align := "R"
			if i == 0 || i >= 5 {
				align = "L"
			}
			pdf.CellFormat(columns[i].width, 6, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders the settlement history as a workbook with a
// summary sheet and one row per settled period.
func BuildStatementXLSX(agreement *swap.Agreement) ([]byte, error) {
	items := agreement.Settlements()
	totals := SummarizeSettlements(items)

	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "settlements"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Agreement", agreement.ID()},
		{"Fixed-rate payer", agreement.FixedInterestPayer().Hex()},
		{"Floating-rate payer", agreement.FloatingInterestPayer().Hex()},
		{"Asset", agreement.AssetContract().Hex()},
		{"Notional", agreement.NotionalAmount()},
		{"Fixed rate", rate(agreement, agreement.SwapRate())},
		{"Spread", rate(agreement, agreement.Spread())},
		{"Benchmark", agreement.Benchmark()},
		{"Day count", string(agreement.DayCount())},
		{"Starting date", agreement.StartingDate().Format(dateLayout)},
		{"Maturity date", agreement.MaturityDate().Format(dateLayout)},
		{"Status", string(agreement.Status())},
		{"Remaining periods", agreement.RemainingPeriods()},
		{"Total fixed legs", totals.FixedLegs},
		{"Total floating legs", totals.FloatingLegs},
		{"Net paid by payer", totals.PaidByPayer},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Interest Rate Swap Statement")
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	titles := []string{"Payment date", "Period start", "Period end", "Benchmark", "Floating rate", "Quote source", "Fixed leg", "Floating leg", "Amount", "Direction", "From", "To", "Settled by", "Settled at"}
	for i, title := range titles {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, title)
	}
	for r, item := range items {
		values := []any{
			item.PaymentDate.Format(dateLayout),
			item.PeriodStart.Format(dateLayout),
			item.PeriodEnd.Format(dateLayout),
			rate(agreement, item.Benchmark),
			rate(agreement, item.FloatingRate),
			item.QuoteSource,
			item.FixedLeg,
			item.FloatingLeg,
			item.Amount,
			item.Direction.String(),
			item.From.Hex(),
			item.To.Hex(),
			item.SettledBy.Hex(),
			item.SettledAt.UTC().Format(time.RFC3339),
		}
		for c, value := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(itemsSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
